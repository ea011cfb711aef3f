package evidence

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantStore is the production Evidence Store backend: a thin wrapper around
// the Qdrant gRPC client. It never runs embedding itself — callers supply the
// dense vector; the embedding model stays an external collaborator ("the
// embedding model" is an external collaborator).
type QdrantStore struct {
	Client *qdrant.Client
	// UseWiderText prefers the windowed `wider_text` payload field over the
	// raw chunk text when present (the text_window_splitter setting).
	UseWiderText bool
}

// NewQdrantStore dials a Qdrant instance at host:port.
func NewQdrantStore(host string, port int, useTLS bool) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: dial: %w", err)
	}
	return &QdrantStore{Client: client}, nil
}

// Search implements Store.Search against a single named collection.
func (s *QdrantStore) Search(ctx context.Context, collection string, vector []float32, queryText string, topK int) ([]Item, error) {
	if s == nil || s.Client == nil {
		return nil, fmt.Errorf("qdrant: client not configured")
	}
	if topK <= 0 {
		topK = 10
	}
	limit := uint64(topK)
	points, err := s.Client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: query %s: %w", collection, err)
	}

	out := make([]Item, 0, len(points))
	for _, p := range points {
		payload := p.GetPayload()
		item := Item{
			SourceID:   pointIDString(p.GetId()),
			Score:      float64(p.GetScore()),
			Provenance: ProvenanceLocal,
			Extra:      map[string]string{"collection": collection},
		}
		if payload != nil {
			if v, ok := payload["title"]; ok {
				item.Title = v.GetStringValue()
			}
			if v, ok := payload["url"]; ok {
				item.URL = v.GetStringValue()
			} else if v, ok := payload["file_path"]; ok {
				item.URL = v.GetStringValue()
			}
			if v, ok := payload["text"]; ok {
				item.Text = v.GetStringValue()
			}
			if v, ok := payload["wider_text"]; ok && v.GetStringValue() != "" {
				item.Extra["wider_text"] = v.GetStringValue()
				if s.UseWiderText {
					item.Text = v.GetStringValue()
				}
			}
		}
		_ = queryText // query text is carried for back ends that rerank by it; unused here.
		out = append(out, item)
	}
	return out, nil
}

func pointIDString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if n := id.GetNum(); n != 0 {
		return fmt.Sprintf("%d", n)
	}
	return id.GetUuid()
}
