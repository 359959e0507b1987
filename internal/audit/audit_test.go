package audit

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zksteam-api/internal/models"
	"zksteam-api/internal/ratelimit"
)

type recordingSink struct {
	name string
	err  error

	mu     sync.Mutex
	events []models.ProofEvent
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Publish(_ context.Context, ev models.ProofEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

type fakeProducer struct {
	topic   string
	key     []byte
	value   []byte
	headers map[string]string
}

func (p *fakeProducer) ProduceMessage(_ context.Context, topic string, key, value []byte, headers map[string]string) error {
	p.topic, p.key, p.value, p.headers = topic, key, value, headers
	return nil
}

type fakeIndexer struct {
	index string
	id    string
	doc   interface{}
}

func (i *fakeIndexer) IndexDocument(_ context.Context, index, id string, doc interface{}) error {
	i.index, i.id, i.doc = index, id, doc
	return nil
}

type fakeInserter struct {
	execs   []string
	queries []string
	rows    [][]interface{}
	err     error
}

func (f *fakeInserter) Exec(_ context.Context, query string, _ ...interface{}) error {
	f.execs = append(f.execs, query)
	return f.err
}

func (f *fakeInserter) BatchInsert(_ context.Context, query string, data [][]interface{}) error {
	f.queries = append(f.queries, query)
	f.rows = append(f.rows, data...)
	return f.err
}

func TestFanoutPublish(t *testing.T) {
	t.Run("stamps_id_and_time", func(t *testing.T) {
		sink := &recordingSink{name: "a"}
		f := NewFanout(sink, nil)
		fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		f.now = func() time.Time { return fixed }

		require.NoError(t, f.Publish(context.Background(), models.ProofEvent{EventType: models.ProofEventVerified}))
		require.Len(t, sink.events, 1)
		assert.NotEmpty(t, sink.events[0].EventID)
		assert.Equal(t, fixed, sink.events[0].OccurredAt)
		assert.Equal(t, 1, f.Len())
	})

	t.Run("joins_sink_errors", func(t *testing.T) {
		boom := errors.New("boom")
		ok := &recordingSink{name: "ok"}
		bad := &recordingSink{name: "bad", err: boom}
		f := NewFanout(ok, bad)

		err := f.Publish(context.Background(), models.ProofEvent{EventID: "e1"})
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "bad")
		assert.Len(t, ok.events, 1)
	})

	t.Run("no_sinks", func(t *testing.T) {
		assert.NoError(t, NewFanout().Publish(context.Background(), models.ProofEvent{}))
	})
}

func TestKafkaSink(t *testing.T) {
	p := &fakeProducer{}
	s := NewKafkaSink(p, "zkp.proof-events")

	ev := models.ProofEvent{EventID: "e1", EventType: models.ProofEventRejected, SessionID: "s1"}
	require.NoError(t, s.Publish(context.Background(), ev))

	assert.Equal(t, "zkp.proof-events", p.topic)
	assert.Equal(t, "s1", string(p.key))
	assert.Equal(t, "proof.rejected", p.headers["event_type"])

	var decoded models.ProofEvent
	require.NoError(t, json.Unmarshal(p.value, &decoded))
	assert.Equal(t, ev.EventID, decoded.EventID)

	require.NoError(t, s.Publish(context.Background(), models.ProofEvent{EventID: "e2"}))
	assert.Equal(t, "e2", string(p.key))
}

func TestElasticsearchSink(t *testing.T) {
	idx := &fakeIndexer{}
	s := NewElasticsearchSink(idx, "zkp-proof-events")
	require.NoError(t, s.Publish(context.Background(), models.ProofEvent{EventID: "e1"}))
	assert.Equal(t, "zkp-proof-events", idx.index)
	assert.Equal(t, "e1", idx.id)

	// plain indexers have nothing to create
	assert.NoError(t, s.EnsureIndex(context.Background()))
}

type creatingIndexer struct {
	fakeIndexer
	mapping string
}

func (i *creatingIndexer) EnsureIndex(_ context.Context, index, mapping string) error {
	i.index, i.mapping = index, mapping
	return nil
}

func TestElasticsearchSink_EnsureIndex(t *testing.T) {
	idx := &creatingIndexer{}
	s := NewElasticsearchSink(idx, "zkp-proof-events")

	require.NoError(t, s.EnsureIndex(context.Background()))
	assert.Equal(t, "zkp-proof-events", idx.index)
	assert.True(t, json.Valid([]byte(idx.mapping)))
	assert.Contains(t, idx.mapping, `"sessionId"`)
}

func TestClickHouseSinks(t *testing.T) {
	db := &fakeInserter{}
	events := NewClickHouseSink(db, "zkp_events")
	stats := NewClickHouseStats(db, "zkp_rate_limit_events")

	require.NoError(t, events.EnsureTable(context.Background()))
	require.NoError(t, stats.EnsureTable(context.Background()))
	require.Len(t, db.execs, 2)
	assert.Contains(t, db.execs[0], "CREATE TABLE IF NOT EXISTS zkp_events")
	assert.Contains(t, db.execs[1], "CREATE TABLE IF NOT EXISTS zkp_rate_limit_events")

	require.NoError(t, events.Publish(context.Background(), models.ProofEvent{EventID: "e1", Verified: true}))
	require.NoError(t, stats.Record(context.Background(), ratelimit.StatsEvent{Limiter: "proof_verify", Allowed: false}))

	assert.Equal(t, []string{"INSERT INTO zkp_events", "INSERT INTO zkp_rate_limit_events"}, db.queries)
	require.Len(t, db.rows, 2)
	assert.Equal(t, "e1", db.rows[0][0])
	assert.Equal(t, "proof_verify", db.rows[1][0])

	db.err = errors.New("down")
	assert.Error(t, events.Publish(context.Background(), models.ProofEvent{}))
	assert.Error(t, events.EnsureTable(context.Background()))
}
