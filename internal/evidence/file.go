package evidence

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"regexp"
	"strings"
)

// FileStore loads candidate documents from a local JSON file for offline and
// test use, matching by loose token overlap against the query text. The JSON
// format is an array of {"source_id","title","url","text"} objects.
type FileStore struct {
	Path string
}

func (f *FileStore) Search(_ context.Context, collection string, _ []float32, queryText string, topK int) ([]Item, error) {
	if strings.TrimSpace(f.Path) == "" {
		return nil, errors.New("evidence: file store path is empty")
	}
	b, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, err
	}
	var raw []Item
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(queryText))
	out := make([]Item, 0, len(raw))
	for _, it := range raw {
		if it.URL == "" || it.Text == "" {
			continue
		}
		if q == "" || matchesByTokens(q, it.Title+"\n"+it.Text) {
			it.Provenance = ProvenanceLocal
			if it.Extra == nil {
				it.Extra = map[string]string{}
			}
			it.Extra["collection"] = collection
			out = append(out, it)
			if topK > 0 && len(out) >= topK {
				break
			}
		}
	}
	return out, nil
}

var tokenSplitter = regexp.MustCompile(`[^a-z0-9]+`)

// matchesByTokens performs a loose token-based match: true when at least two
// meaningful tokens (length >= 3) from the query appear in the text.
func matchesByTokens(query, text string) bool {
	text = strings.ToLower(text)
	qTokens := tokenSplitter.Split(query, -1)
	meaningful := 0
	for _, tok := range qTokens {
		if len(tok) < 3 {
			continue
		}
		if strings.Contains(text, tok) {
			meaningful++
			if meaningful >= 2 {
				return true
			}
		}
	}
	return false
}
