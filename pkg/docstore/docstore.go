package docstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/angelmondragon/tillpoint-terminal/pkg/enums"
)

// Document is the envelope every replicated record travels in. Type and
// Status are lifted out of the body because they are the indexed fields the
// store can select on.
type Document struct {
	ID        string          `json:"id"`
	Rev       string          `json:"rev"`
	Type      enums.DocType   `json:"type"`
	Status    string          `json:"status,omitempty"`
	Deleted   bool            `json:"deleted,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
	Body      json.RawMessage `json:"body"`
}

// Selector is an equality match over the indexed fields.
type Selector struct {
	Type   enums.DocType
	Status string
}

// Matches reports whether the document satisfies the selector.
func (s Selector) Matches(doc Document) bool {
	if s.Type != "" && doc.Type != s.Type {
		return false
	}
	if s.Status != "" && doc.Status != s.Status {
		return false
	}
	return true
}

// Store is the document storage contract shared by the embedded terminal
// replica, the remote authoritative store, and the in-memory test double.
//
// Put applies optimistic concurrency: the document's Rev must match the
// stored revision (empty Rev inserts); a stale revision fails with a
// CONFLICT error and the caller is expected to refetch and retry.
type Store interface {
	Get(ctx context.Context, id string) (*Document, error)
	Put(ctx context.Context, doc Document) (*Document, error)
	Find(ctx context.Context, sel Selector) ([]Document, error)
	AllDocs(ctx context.Context) ([]Document, error)
	EnsureIndexes(ctx context.Context) error
}

// Replica extends Store with the surface the synchronizer needs on the
// local side: a change cursor for the push leg and a replication write that
// adopts the remote revision verbatim instead of minting a new one.
type Replica interface {
	Store
	Pinger
	Changes(ctx context.Context, since int64) ([]Document, int64, error)
	Apply(ctx context.Context, doc Document) error
}

// Pinger is the health-check surface both stores expose.
type Pinger interface {
	Ping(ctx context.Context) error
}
