package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsSafeIdentifier(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected bool
	}{
		{name: "mock_session", input: "mock-session-4f1c", expected: true},
		{name: "provider_uuid", input: "7b1c2d3e-0000-4000-8000-000000000000", expected: true},
		{name: "empty", input: "", expected: false},
		{name: "script_tag", input: "<script>", expected: false},
		{name: "template_braces", input: "a{b}", expected: false},
		{name: "spaces", input: "a b", expected: false},
		{name: "word_containing_script", input: "description", expected: true},
		{name: "word_containing_onload", input: "download-onload-1", expected: true},
		{name: "too_long", input: strings.Repeat("a", 129), expected: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, IsSafeIdentifier(tc.input))
		})
	}
}
