package invoices

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/tillpoint-terminal/pkg/docstore"
	pkgerrors "github.com/angelmondragon/tillpoint-terminal/pkg/errors"
)

const (
	keyDraftQueue  = "pos:draft_queue"
	keyDraftPrefix = "draft:"
	draftMarker    = "DRAFT"
)

// Draft is a parked sale. It lives only in the terminal's session storage
// and is never written to the document store, so it never replicates.
type Draft struct {
	ID      string    `json:"id"`
	SavedAt time.Time `json:"saved_at"`
	Cart    Cart      `json:"cart"`
}

// parseDraftID validates the store/terminal/DRAFT/timestamp/suffix shape.
// IDs arrive from storage and from API callers, so malformed input is a
// validation error, not a panic.
func parseDraftID(id string) error {
	parts := strings.Split(id, "/")
	if len(parts) != 5 || parts[2] != draftMarker {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("malformed draft id %q", id))
	}
	for _, part := range parts {
		if part == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("malformed draft id %q", id))
		}
	}
	return nil
}

// SaveDraft parks the current cart in the local draft queue and clears the
// register for the next sale. Saving a resumed draft reuses its id.
func (m *Manager) SaveDraft(ctx context.Context) (*Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cart.Empty() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot save an empty cart")
	}

	id := m.cart.DraftID
	if id == "" {
		terminal := m.sess.Terminal()
		id = fmt.Sprintf("%s/%s/%s/%s/%s",
			terminal.StoreCode, terminal.TerminalCode, draftMarker,
			m.now().UTC().Format("20060102150405"), m.randSuffix())
	}
	m.cart.DraftID = id

	draft := Draft{ID: id, SavedAt: m.now().UTC(), Cart: m.cart.clone()}
	encoded, err := json.Marshal(draft)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding draft")
	}
	if err := m.storage.Set(ctx, keyDraftPrefix+id, string(encoded)); err != nil {
		return nil, err
	}
	if err := m.enqueueDraft(ctx, id); err != nil {
		return nil, err
	}

	m.cart = Cart{}
	if err := m.sess.ClearContinuingDraft(ctx); err != nil && m.logg != nil {
		m.logg.Warn(ctx, "clearing continuing-draft marker failed")
	}

	if m.logg != nil {
		m.logg.Info(m.logg.WithField(ctx, "draft_id", id), "sale parked as draft")
	}
	return &draft, nil
}

// ResumeDraft restores a parked sale into the cart. Each line's catalog
// record is re-fetched for fresh display info; a catalog miss keeps the
// draft's stored copy rather than failing the resume.
func (m *Manager) ResumeDraft(ctx context.Context, id string) (*Cart, error) {
	if err := parseDraftID(id); err != nil {
		return nil, err
	}

	raw, err := m.storage.Get(ctx, keyDraftPrefix+id)
	if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("draft %q not found", id))
	}
	if err != nil {
		return nil, err
	}

	var draft Draft
	if err := json.Unmarshal([]byte(raw), &draft); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding stored draft")
	}

	cart := draft.Cart
	cart.DraftID = id
	for i := range cart.Lines {
		doc, err := m.local.Get(ctx, cart.Lines[i].ItemID)
		if err != nil {
			continue
		}
		item, err := docstore.DecodeItem(doc)
		if err != nil {
			continue
		}
		cart.Lines[i].ItemName = item.Name
		cart.Lines[i].UOM = item.UOM
	}

	m.mu.Lock()
	m.cart = cart
	m.mu.Unlock()

	if err := m.sess.MarkContinuingDraft(ctx, id); err != nil {
		return nil, err
	}

	snapshot := cart.clone()
	return &snapshot, nil
}

// ListDrafts returns the parked sales still queued on this terminal.
func (m *Manager) ListDrafts(ctx context.Context) ([]Draft, error) {
	ids, err := m.draftQueue(ctx)
	if err != nil {
		return nil, err
	}

	drafts := make([]Draft, 0, len(ids))
	for _, id := range ids {
		raw, err := m.storage.Get(ctx, keyDraftPrefix+id)
		if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var draft Draft
		if err := json.Unmarshal([]byte(raw), &draft); err != nil {
			if m.logg != nil {
				m.logg.Warn(m.logg.WithField(ctx, "draft_id", id), "skipping corrupt draft entry")
			}
			continue
		}
		drafts = append(drafts, draft)
	}
	return drafts, nil
}

// Cancel discards the in-progress sale. A cart resumed from a draft also
// drops its queue entry; the replicated store is never touched.
func (m *Manager) Cancel(ctx context.Context) error {
	m.mu.Lock()
	draftID := m.cart.DraftID
	m.cart = Cart{}
	m.mu.Unlock()

	if draftID != "" {
		if err := m.removeDraft(ctx, draftID); err != nil {
			return err
		}
	}
	return m.sess.ClearContinuingDraft(ctx)
}

// CancelDraft removes a parked sale from the queue without resuming it.
func (m *Manager) CancelDraft(ctx context.Context, id string) error {
	if err := parseDraftID(id); err != nil {
		return err
	}
	return m.removeDraft(ctx, id)
}

func (m *Manager) enqueueDraft(ctx context.Context, id string) error {
	ids, err := m.draftQueue(ctx)
	if err != nil {
		return err
	}
	for _, existing := range ids {
		if existing == id {
			return nil
		}
	}
	return m.writeDraftQueue(ctx, append(ids, id))
}

func (m *Manager) removeDraft(ctx context.Context, id string) error {
	ids, err := m.draftQueue(ctx)
	if err != nil {
		return err
	}
	kept := ids[:0]
	for _, existing := range ids {
		if existing != id {
			kept = append(kept, existing)
		}
	}
	if err := m.writeDraftQueue(ctx, kept); err != nil {
		return err
	}
	if err := m.storage.Delete(ctx, keyDraftPrefix+id); err != nil {
		return err
	}
	return nil
}

func (m *Manager) draftQueue(ctx context.Context) ([]string, error) {
	raw, err := m.storage.Get(ctx, keyDraftQueue)
	if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding draft queue")
	}
	return ids, nil
}

func (m *Manager) writeDraftQueue(ctx context.Context, ids []string) error {
	encoded, err := json.Marshal(ids)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding draft queue")
	}
	return m.storage.Set(ctx, keyDraftQueue, string(encoded))
}
