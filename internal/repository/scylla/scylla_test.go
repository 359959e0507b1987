package scylla

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements(schemaCQL)

	assert.Len(t, stmts, 4)
	for _, s := range stmts {
		assert.True(t, strings.HasPrefix(s, "CREATE TABLE IF NOT EXISTS"), s)
	}
}

func TestSessionKey(t *testing.T) {
	assert.Equal(t, "mock-session-1", sessionKey("mock-session-1", "p1"))
	assert.Equal(t, "anon:p1", sessionKey("", "p1"))
}

func TestStatements_UniquenessUsesLWT(t *testing.T) {
	assert.Contains(t, statements.InsertProofBySession, "IF NOT EXISTS")
	assert.Contains(t, statements.InsertOwner, "IF NOT EXISTS")
	assert.NotContains(t, statements.InsertAttempt, "IF NOT EXISTS")
}
