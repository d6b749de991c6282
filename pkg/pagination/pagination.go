package pagination

import (
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/angelmondragon/tillpoint-terminal/pkg/docstore"
)

const (
	// DefaultLimit is the standard page size when a limit is not provided.
	DefaultLimit = 25
	// MaxLimit caps how many documents any listing can request.
	MaxLimit = 100
)

// Params holds cursor pagination inputs from controllers or services.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor marks a position in the (UpdatedAt desc, ID desc) listing order.
type Cursor struct {
	UpdatedAt time.Time
	ID        string
}

// NormalizeLimit enforces the configured default and maximum limits.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// EncodeCursor builds a base64 cursor string from the provided values.
func EncodeCursor(cursor Cursor) string {
	payload := fmt.Sprintf("%s|%s", cursor.UpdatedAt.UTC().Format(time.RFC3339Nano), cursor.ID)
	return base64.StdEncoding.EncodeToString([]byte(payload))
}

// ParseCursor decodes the cursor string back into its components. An empty
// string means "start from the top" and yields a nil cursor.
func ParseCursor(value string) (*Cursor, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return nil, fmt.Errorf("invalid cursor format")
	}

	t, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return nil, fmt.Errorf("invalid cursor timestamp: %w", err)
	}
	return &Cursor{
		UpdatedAt: t,
		ID:        parts[1],
	}, nil
}

// Page is one slice of a document listing plus the cursor for the next one.
// NextCursor is empty on the final page.
type Page struct {
	Documents  []docstore.Document
	NextCursor string
}

// Paginate sorts documents newest-first and returns the page after the
// cursor. The full candidate set fits in memory on a terminal, so paging
// happens after the store query rather than inside it.
func Paginate(docs []docstore.Document, params Params) (*Page, error) {
	cursor, err := ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	limit := NormalizeLimit(params.Limit)

	sorted := make([]docstore.Document, len(docs))
	copy(sorted, docs)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].UpdatedAt.Equal(sorted[j].UpdatedAt) {
			return sorted[i].UpdatedAt.After(sorted[j].UpdatedAt)
		}
		return sorted[i].ID > sorted[j].ID
	})

	start := 0
	if cursor != nil {
		for start < len(sorted) {
			doc := sorted[start]
			start++
			if doc.UpdatedAt.Equal(cursor.UpdatedAt) && doc.ID == cursor.ID {
				break
			}
		}
	}

	end := start + limit
	if end > len(sorted) {
		end = len(sorted)
	}
	page := &Page{Documents: sorted[start:end]}
	if end < len(sorted) && len(page.Documents) > 0 {
		last := page.Documents[len(page.Documents)-1]
		page.NextCursor = EncodeCursor(Cursor{UpdatedAt: last.UpdatedAt, ID: last.ID})
	}
	return page, nil
}
