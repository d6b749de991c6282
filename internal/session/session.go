// Package session holds the per-terminal POS state: the resolved profile,
// the price list entries it sells against, and the durable flags that must
// survive a restart. It replaces a hidden global with an explicit object
// injected into whoever needs pricing or profile context.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tillpoint-terminal/internal/pricing"
	"github.com/angelmondragon/tillpoint-terminal/pkg/config"
	"github.com/angelmondragon/tillpoint-terminal/pkg/docstore"
	"github.com/angelmondragon/tillpoint-terminal/pkg/enums"
	pkgerrors "github.com/angelmondragon/tillpoint-terminal/pkg/errors"
	"github.com/angelmondragon/tillpoint-terminal/pkg/kv"
	"github.com/angelmondragon/tillpoint-terminal/pkg/logger"
)

const (
	keyProfileDoc      = "pos:profile_doc"
	keyProfileExternal = "pos:profile_external_id"
	keyContinuingDraft = "pos:continuing_draft"
	keyShiftOpen       = "pos:shift_open"
)

// Session is the process-wide POS state for one terminal. Mutable fields
// are mutex-guarded because HTTP handlers reach it concurrently.
type Session struct {
	mu       sync.RWMutex
	local    docstore.Store
	storage  kv.Store
	logg     *logger.Logger
	terminal config.TerminalConfig

	profile *docstore.POSProfile
	entries []docstore.PriceListEntry
}

// Params collects the session dependencies.
type Params struct {
	Local    docstore.Store
	Storage  kv.Store
	Logger   *logger.Logger
	Terminal config.TerminalConfig
}

// New builds a session with the required dependencies.
func New(params Params) (*Session, error) {
	if params.Local == nil {
		return nil, fmt.Errorf("local document store required")
	}
	if params.Storage == nil {
		return nil, fmt.Errorf("session storage required")
	}
	return &Session{
		local:    params.Local,
		storage:  params.Storage,
		logg:     params.Logger,
		terminal: params.Terminal,
	}, nil
}

// InitializePOSData resolves the active profile from the argument or from
// persisted session state, loads the profile's price list entries, and
// persists the resolution. A missing profile selection is a hard
// configuration error, never silently defaulted.
func (s *Session) InitializePOSData(ctx context.Context, profileName string) error {
	name := profileName
	if name == "" {
		stored, err := s.storage.Get(ctx, keyProfileExternal)
		switch {
		case pkgerrors.Is(err, pkgerrors.CodeNotFound):
			return pkgerrors.New(pkgerrors.CodeConfiguration,
				"no POS profile selected: pass a profile name or configure the terminal before selling")
		case err != nil:
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading persisted profile")
		}
		name = stored
	}

	profile, err := s.loadProfile(ctx, name)
	if err != nil {
		return err
	}

	entries, err := s.loadPriceEntries(ctx, profile.PriceList)
	if err != nil {
		return err
	}

	encoded, err := json.Marshal(profile)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding resolved profile")
	}
	if err := s.storage.Set(ctx, keyProfileDoc, string(encoded)); err != nil {
		return err
	}
	if err := s.storage.Set(ctx, keyProfileExternal, profile.ExternalID); err != nil {
		return err
	}

	s.mu.Lock()
	s.profile = profile
	s.entries = entries
	s.mu.Unlock()

	if s.logg != nil {
		ctx = s.logg.WithProfileID(ctx, profile.ExternalID)
		ctx = s.logg.WithFields(ctx, map[string]any{
			"price_list":    profile.PriceList,
			"price_entries": len(entries),
		})
		s.logg.Info(ctx, "pos profile initialized")
	}
	return nil
}

// SwitchPOSProfile re-runs initialization against a different profile.
func (s *Session) SwitchPOSProfile(ctx context.Context, name string) error {
	if name == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "profile name required")
	}
	return s.InitializePOSData(ctx, name)
}

// Reset clears the persisted profile selection (logout). The invoice
// sequence counter deliberately survives a reset.
func (s *Session) Reset(ctx context.Context) error {
	for _, key := range []string{keyProfileDoc, keyProfileExternal, keyContinuingDraft, keyShiftOpen} {
		if err := s.storage.Delete(ctx, key); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.profile = nil
	s.entries = nil
	s.mu.Unlock()

	if s.logg != nil {
		s.logg.Info(ctx, "pos session reset")
	}
	return nil
}

// ItemPrice is the outcome of a register price lookup.
type ItemPrice struct {
	ItemID        string          `json:"item_id"`
	ItemName      string          `json:"item_name"`
	Price         decimal.Decimal `json:"price"`
	FromPriceList bool            `json:"from_price_list"`
	Note          string          `json:"note,omitempty"`
}

// GetItemPrice resolves the selling price for an item. When an item code
// is supplied it is tried first; an invalid code result falls through to
// the id lookup. With no price list entry in force the item's base rate
// applies.
func (s *Session) GetItemPrice(ctx context.Context, itemID, itemCode string) (*ItemPrice, error) {
	s.mu.RLock()
	profile := s.profile
	entries := append([]docstore.PriceListEntry(nil), s.entries...)
	s.mu.RUnlock()

	if profile == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConfiguration, "POS data not initialized: select a profile first")
	}

	item, err := s.resolveItem(ctx, itemID, itemCode)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	resolution := pricing.Resolve(item.ID, entries, now)
	if resolution.Valid {
		return &ItemPrice{
			ItemID:        item.ID,
			ItemName:      item.Name,
			Price:         resolution.Price,
			FromPriceList: true,
			Note:          resolution.Note,
		}, nil
	}

	return &ItemPrice{
		ItemID:   item.ID,
		ItemName: item.Name,
		Price:    item.BaseRate,
		Note:     "base rate: " + resolution.Note,
	}, nil
}

// Profile returns a copy of the resolved profile, or nil before init.
func (s *Session) Profile() *docstore.POSProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.profile == nil {
		return nil
	}
	copied := *s.profile
	return &copied
}

// PriceEntries returns a copy of the entries loaded for the profile.
func (s *Session) PriceEntries() []docstore.PriceListEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]docstore.PriceListEntry(nil), s.entries...)
}

// SequenceNo reads the per-terminal invoice counter. Zero when unset.
func (s *Session) SequenceNo(ctx context.Context) (int64, error) {
	raw, err := s.storage.Get(ctx, s.sequenceKey())
	if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading sequence counter")
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "corrupt sequence counter")
	}
	return value, nil
}

// SetSequenceNo persists the counter. Only the invoice manager calls this,
// strictly after a confirmed store write.
func (s *Session) SetSequenceNo(ctx context.Context, value int64) error {
	return s.storage.Set(ctx, s.sequenceKey(), strconv.FormatInt(value, 10))
}

// MarkContinuingDraft records that the register is resuming a saved sale.
func (s *Session) MarkContinuingDraft(ctx context.Context, draftID string) error {
	return s.storage.Set(ctx, keyContinuingDraft, draftID)
}

// ContinuingDraft returns the draft being resumed, or empty.
func (s *Session) ContinuingDraft(ctx context.Context) string {
	value, err := s.storage.Get(ctx, keyContinuingDraft)
	if err != nil {
		return ""
	}
	return value
}

// ClearContinuingDraft drops the resume marker.
func (s *Session) ClearContinuingDraft(ctx context.Context) error {
	return s.storage.Delete(ctx, keyContinuingDraft)
}

// Terminal exposes the store/terminal identity for id minting.
func (s *Session) Terminal() config.TerminalConfig {
	return s.terminal
}

func (s *Session) loadProfile(ctx context.Context, name string) (*docstore.POSProfile, error) {
	docs, err := s.local.Find(ctx, docstore.Selector{Type: enums.DocTypePOSProfile})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading pos profiles")
	}

	for i := range docs {
		profile, err := docstore.DecodePOSProfile(&docs[i])
		if err != nil {
			if s.logg != nil {
				s.logg.Warn(s.logg.WithField(ctx, "doc_id", docs[i].ID), "skipping malformed pos profile")
			}
			continue
		}
		if profile.ExternalID == name || profile.Name == name {
			return profile, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound,
		fmt.Sprintf("POS profile %q not found on this terminal; sync the terminal or check the name", name))
}

func (s *Session) loadPriceEntries(ctx context.Context, priceList string) ([]docstore.PriceListEntry, error) {
	docs, err := s.local.Find(ctx, docstore.Selector{Type: enums.DocTypePriceListEntry})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading price list entries")
	}

	var entries []docstore.PriceListEntry
	for i := range docs {
		entry, err := docstore.DecodePriceListEntry(&docs[i])
		if err != nil {
			if s.logg != nil {
				s.logg.Warn(s.logg.WithField(ctx, "doc_id", docs[i].ID), "skipping malformed price list entry")
			}
			continue
		}
		if entry.PriceList == priceList {
			entries = append(entries, *entry)
		}
	}
	return entries, nil
}

func (s *Session) resolveItem(ctx context.Context, itemID, itemCode string) (*docstore.Item, error) {
	if itemCode != "" {
		docs, err := s.local.Find(ctx, docstore.Selector{Type: enums.DocTypeItem})
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "scanning items by code")
		}
		for i := range docs {
			item, err := docstore.DecodeItem(&docs[i])
			if err != nil {
				continue
			}
			if item.Code == itemCode {
				return item, nil
			}
		}
		// Fall through to the id lookup: a stale or mistyped code must not
		// fail the sale when the id is known.
	}

	if itemID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id or code required")
	}

	doc, err := s.local.Get(ctx, itemID)
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("item %q not found", itemID))
		}
		return nil, err
	}
	return docstore.DecodeItem(doc)
}

func (s *Session) sequenceKey() string {
	return fmt.Sprintf("pos:sequence:%s:%s", s.terminal.StoreCode, s.terminal.TerminalCode)
}
