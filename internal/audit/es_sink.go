package audit

import (
	"context"

	"zksteam-api/internal/models"
)

type documentIndexer interface {
	IndexDocument(ctx context.Context, index, id string, document interface{}) error
}

type indexCreator interface {
	EnsureIndex(ctx context.Context, index, mapping string) error
}

const proofEventMapping = `{
  "mappings": {
    "properties": {
      "eventId":    {"type": "keyword"},
      "eventType":  {"type": "keyword"},
      "sessionId":  {"type": "keyword"},
      "provider":   {"type": "keyword"},
      "proofId":    {"type": "keyword"},
      "verified":   {"type": "boolean"},
      "reason":     {"type": "keyword"},
      "occurredAt": {"type": "date"}
    }
  }
}`

// ElasticsearchSink indexes each event under its EventID, so retries overwrite
// rather than duplicate.
type ElasticsearchSink struct {
	indexer documentIndexer
	index   string
}

func NewElasticsearchSink(indexer documentIndexer, index string) *ElasticsearchSink {
	return &ElasticsearchSink{indexer: indexer, index: index}
}

func (s *ElasticsearchSink) Name() string { return "elasticsearch" }

func (s *ElasticsearchSink) Publish(ctx context.Context, ev models.ProofEvent) error {
	return s.indexer.IndexDocument(ctx, s.index, ev.EventID, ev)
}

// EnsureIndex creates the event index with keyword mappings when the indexer
// supports it.
func (s *ElasticsearchSink) EnsureIndex(ctx context.Context) error {
	creator, ok := s.indexer.(indexCreator)
	if !ok {
		return nil
	}
	return creator.EnsureIndex(ctx, s.index, proofEventMapping)
}
