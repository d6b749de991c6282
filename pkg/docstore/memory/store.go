// Package memory provides an in-memory document store used by tests and by
// dev mode when no on-disk database is wanted. Semantics mirror the SQLite
// replica, revision tokens included.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/angelmondragon/tillpoint-terminal/pkg/docstore"
	pkgerrors "github.com/angelmondragon/tillpoint-terminal/pkg/errors"
)

type Store struct {
	mu   sync.RWMutex
	docs map[string]docstore.Document
	seqs map[string]int64
	seq  int64

	// FailPuts forces Put to fail; tests use it to simulate a broken disk.
	FailPuts bool
}

var _ docstore.Replica = (*Store)(nil)

func New() *Store {
	return &Store{
		docs: make(map[string]docstore.Document),
		seqs: make(map[string]int64),
	}
}

func (s *Store) Get(ctx context.Context, id string) (*docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[id]
	if !ok || doc.Deleted {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "document not found")
	}
	out := doc
	return &out, nil
}

func (s *Store) Put(ctx context.Context, doc docstore.Document) (*docstore.Document, error) {
	if doc.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "document id required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailPuts {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "put disabled")
	}

	existing, exists := s.docs[doc.ID]
	if doc.Rev == "" && exists {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "document already exists")
	}
	if doc.Rev != "" {
		if !exists {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "document not found")
		}
		if existing.Rev != doc.Rev {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "stale document revision")
		}
	}

	doc.Rev = docstore.NextRev(doc.Rev)
	doc.UpdatedAt = time.Now().UTC()
	s.seq++
	s.docs[doc.ID] = doc
	s.seqs[doc.ID] = s.seq

	out := doc
	return &out, nil
}

func (s *Store) Find(ctx context.Context, sel docstore.Selector) ([]docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []docstore.Document
	for _, doc := range s.docs {
		if doc.Deleted {
			continue
		}
		if sel.Matches(doc) {
			out = append(out, doc)
		}
	}
	sortByID(out)
	return out, nil
}

func (s *Store) AllDocs(ctx context.Context) ([]docstore.Document, error) {
	return s.Find(ctx, docstore.Selector{})
}

func (s *Store) Changes(ctx context.Context, since int64) ([]docstore.Document, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type change struct {
		doc docstore.Document
		seq int64
	}
	var changes []change
	last := since
	for id, seq := range s.seqs {
		if seq <= since {
			continue
		}
		changes = append(changes, change{doc: s.docs[id], seq: seq})
		if seq > last {
			last = seq
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].seq < changes[j].seq })

	out := make([]docstore.Document, 0, len(changes))
	for _, c := range changes {
		out = append(out, c.doc)
	}
	return out, last, nil
}

func (s *Store) Apply(ctx context.Context, doc docstore.Document) error {
	if doc.ID == "" || doc.Rev == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "replication write requires id and rev")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.docs[doc.ID]; ok {
		if docstore.RevGeneration(doc.Rev) <= docstore.RevGeneration(existing.Rev) {
			return nil
		}
	}
	doc.UpdatedAt = time.Now().UTC()
	s.docs[doc.ID] = doc
	// Replicated writes stay clean; only local puts feed the change cursor.
	s.seqs[doc.ID] = 0
	return nil
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// Len reports the number of live documents, for test assertions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, doc := range s.docs {
		if !doc.Deleted {
			count++
		}
	}
	return count
}

func sortByID(docs []docstore.Document) {
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
}
