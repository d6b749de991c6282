// Package invoices drives the sale lifecycle: an in-memory cart, parked
// drafts in session storage, and the exactly-once conversion of a sale
// into a numbered, immutable invoice document.
package invoices

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tillpoint-terminal/internal/session"
	"github.com/angelmondragon/tillpoint-terminal/pkg/docstore"
	"github.com/angelmondragon/tillpoint-terminal/pkg/enums"
	pkgerrors "github.com/angelmondragon/tillpoint-terminal/pkg/errors"
	"github.com/angelmondragon/tillpoint-terminal/pkg/kv"
	"github.com/angelmondragon/tillpoint-terminal/pkg/logger"
	"github.com/angelmondragon/tillpoint-terminal/pkg/pagination"
)

const invoiceSchemaVersion = 1

// Pusher pushes local changes to the remote store. Submission uses it as
// a best-effort secondary step; its failure never reverses the sale.
type Pusher interface {
	Push(ctx context.Context) error
}

// Manager owns the cart and the invoice lifecycle for one terminal.
type Manager struct {
	mu      sync.Mutex
	cart    Cart
	local   docstore.Store
	sess    *session.Session
	storage kv.Store
	logg    *logger.Logger
	pusher  Pusher
	taxRate decimal.Decimal

	pushTimeout time.Duration
	now         func() time.Time
	randSuffix  func() string
}

// Params collects the manager dependencies. Pusher is optional; without
// it submitted invoices wait for the next scheduled sync.
type Params struct {
	Local       docstore.Store
	Session     *session.Session
	Storage     kv.Store
	Logger      *logger.Logger
	Pusher      Pusher
	TaxRate     decimal.Decimal
	PushTimeout time.Duration
}

// New builds an invoice manager.
func New(params Params) (*Manager, error) {
	if params.Local == nil {
		return nil, fmt.Errorf("local document store required")
	}
	if params.Session == nil {
		return nil, fmt.Errorf("session required")
	}
	if params.Storage == nil {
		return nil, fmt.Errorf("session storage required")
	}

	pushTimeout := params.PushTimeout
	if pushTimeout <= 0 {
		pushTimeout = 15 * time.Second
	}
	return &Manager{
		local:       params.Local,
		sess:        params.Session,
		storage:     params.Storage,
		logg:        params.Logger,
		pusher:      params.Pusher,
		taxRate:     params.TaxRate,
		pushTimeout: pushTimeout,
		now:         time.Now,
		randSuffix: func() string {
			buf := make([]byte, 3)
			rand.Read(buf)
			return hex.EncodeToString(buf)
		},
	}, nil
}

// InvoiceNumber is the identity minted for a sale at checkout.
type InvoiceNumber struct {
	InvoiceID     string `json:"invoice_id"`
	ExternalID    string `json:"external_id"`
	DisplayNumber string `json:"display_number"`
	SequenceNo    int64  `json:"sequence_no"`
	IsFromDraft   bool   `json:"is_from_draft"`
}

// GenerateInvoiceNumber previews the next invoice identity without
// consuming it. The counter advances only after a confirmed store write.
func (m *Manager) GenerateInvoiceNumber(ctx context.Context) (*InvoiceNumber, error) {
	current, err := m.sess.SequenceNo(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	fromDraft := m.cart.DraftID != ""
	m.mu.Unlock()

	return m.numberFor(current+1, fromDraft), nil
}

func (m *Manager) numberFor(seq int64, fromDraft bool) *InvoiceNumber {
	terminal := m.sess.Terminal()
	return &InvoiceNumber{
		InvoiceID:     fmt.Sprintf("%s/%s/%05d", terminal.StoreCode, terminal.TerminalCode, seq),
		ExternalID:    fmt.Sprintf("INV-%s-%s-%05d", terminal.StoreCode, terminal.TerminalCode, seq),
		DisplayNumber: fmt.Sprintf("%s-%s-%05d", terminal.StoreCode, terminal.TerminalCode, seq),
		SequenceNo:    seq,
		IsFromDraft:   fromDraft,
	}
}

// Submit converts the cart into a Submitted invoice document, exactly
// once. The local write is the transaction boundary: the sequence counter
// advances and the cart clears only after the store confirms the write,
// and the follow-up push to the remote is best-effort.
func (m *Manager) Submit(ctx context.Context) (*docstore.Invoice, error) {
	m.mu.Lock()
	cart := m.cart.clone()
	m.mu.Unlock()

	if err := m.validateSubmission(&cart); err != nil {
		return nil, err
	}

	// A draft already converted on this terminal resolves to its existing
	// invoice instead of minting a second number.
	if cart.DraftID != "" {
		if existing, err := m.findSubmittedForDraft(ctx, cart.DraftID); err != nil {
			return nil, err
		} else if existing != nil {
			if err := m.finishSubmission(ctx, cart.DraftID); err != nil {
				return nil, err
			}
			return existing, nil
		}
	}

	current, err := m.sess.SequenceNo(ctx)
	if err != nil {
		return nil, err
	}
	number := m.numberFor(current+1, cart.DraftID != "")

	invoice := m.buildInvoice(&cart, number)
	doc, err := docstore.NewDocument(invoice.ID, enums.DocTypeInvoice, invoice)
	if err != nil {
		return nil, err
	}

	if err := m.writeWithRetry(ctx, doc); err != nil {
		// Cart stays intact so the cashier can retry the checkout.
		return nil, err
	}

	if err := m.sess.SetSequenceNo(ctx, number.SequenceNo); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persisting sequence counter")
	}
	if err := m.finishSubmission(ctx, cart.DraftID); err != nil {
		return nil, err
	}

	if m.logg != nil {
		ctx = m.logg.WithFields(ctx, map[string]any{
			"invoice_id":  invoice.ID,
			"sequence_no": number.SequenceNo,
			"total":       invoice.TotalAmount.String(),
		})
		m.logg.Info(ctx, "invoice submitted")
	}

	m.pushAsync(ctx, invoice.ID)
	return &invoice, nil
}

func (m *Manager) validateSubmission(cart *Cart) error {
	if cart.Empty() {
		return pkgerrors.New(pkgerrors.CodeValidation, "cannot submit an empty cart")
	}
	if cart.CustomerID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer required")
	}
	for _, line := range cart.Lines {
		if line.Rate.IsNegative() {
			return pkgerrors.New(pkgerrors.CodeValidation, "line rate cannot be negative").
				WithDetails(map[string]any{"item_id": line.ItemID, "rate": line.Rate.String()})
		}
	}
	if cart.PaymentMethod == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment method required")
	}
	if m.sess.Profile() == nil {
		return pkgerrors.New(pkgerrors.CodeConfiguration, "POS data not initialized")
	}

	totals := cart.Totals(m.taxRate)
	if totals.Total.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "discount exceeds sale total")
	}
	if cart.PaymentMethod == enums.PaymentMethodCash && cart.CashReceived.LessThan(totals.Total) {
		return pkgerrors.New(pkgerrors.CodeValidation, "cash received is less than the amount due")
	}
	return nil
}

func (m *Manager) buildInvoice(cart *Cart, number *InvoiceNumber) docstore.Invoice {
	totals := cart.Totals(m.taxRate)

	lines := make([]docstore.InvoiceLine, len(cart.Lines))
	for i, line := range cart.Lines {
		lines[i] = docstore.InvoiceLine{
			ItemID:   line.ItemID,
			ItemName: line.ItemName,
			UOM:      line.UOM,
			Qty:      line.Qty,
			Rate:     line.Rate,
			Amount:   line.Amount(),
		}
	}

	creator := m.sess.Terminal().TerminalCode
	if profile := m.sess.Profile(); profile != nil {
		creator = profile.ExternalID + "@" + creator
	}

	now := m.now().UTC()
	return docstore.Invoice{
		ID:           number.InvoiceID,
		Status:       enums.InvoiceStatusSubmitted,
		CustomerID:   cart.CustomerID,
		CustomerName: cart.CustomerName,
		Lines:        lines,
		Taxes: []docstore.TaxLine{{
			Description: "sales tax",
			Rate:        m.taxRate,
			Amount:      totals.Tax,
		}},
		Discount:      cart.Discount,
		PaymentMethod: cart.PaymentMethod,
		CashReceived:  cart.CashReceived,
		Subtotal:      totals.Subtotal,
		TaxTotal:      totals.Tax,
		TotalAmount:   totals.Total,
		PaidAmount:    totals.Total,
		SequenceNo:    number.SequenceNo,
		ExternalID:    number.ExternalID,
		FromDraftID:   cart.DraftID,
		AuditRef:      uuid.NewString(),
		SchemaVersion: invoiceSchemaVersion,
		CreatedBy:     creator,
		CreatedAt:     now,
		SubmittedAt:   now,
	}
}

// writeWithRetry performs the submit write, carrying forward the current
// revision when the document already exists and retrying once after a
// stale-revision conflict. Conflicts are refetch-and-retry, never a
// silent overwrite.
func (m *Manager) writeWithRetry(ctx context.Context, doc docstore.Document) error {
	if existing, err := m.local.Get(ctx, doc.ID); err == nil {
		doc.Rev = existing.Rev
	} else if !pkgerrors.Is(err, pkgerrors.CodeNotFound) {
		return err
	}

	_, err := m.local.Put(ctx, doc)
	if err == nil {
		return nil
	}
	if !pkgerrors.Is(err, pkgerrors.CodeConflict) {
		return err
	}

	refreshed, getErr := m.local.Get(ctx, doc.ID)
	if getErr != nil {
		return err
	}
	doc.Rev = refreshed.Rev
	_, err = m.local.Put(ctx, doc)
	return err
}

// findSubmittedForDraft looks for an invoice already minted from a draft.
func (m *Manager) findSubmittedForDraft(ctx context.Context, draftID string) (*docstore.Invoice, error) {
	docs, err := m.local.Find(ctx, docstore.Selector{
		Type:   enums.DocTypeInvoice,
		Status: string(enums.InvoiceStatusSubmitted),
	})
	if err != nil {
		return nil, err
	}
	for i := range docs {
		invoice, err := docstore.DecodeInvoice(&docs[i])
		if err != nil {
			continue
		}
		if invoice.FromDraftID == draftID {
			return invoice, nil
		}
	}
	return nil, nil
}

// finishSubmission clears the cart and retires the consumed draft entry.
func (m *Manager) finishSubmission(ctx context.Context, draftID string) error {
	if draftID != "" {
		if err := m.removeDraft(ctx, draftID); err != nil {
			return err
		}
	}
	if err := m.sess.ClearContinuingDraft(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	m.cart = Cart{}
	m.mu.Unlock()
	return nil
}

func (m *Manager) pushAsync(ctx context.Context, invoiceID string) {
	if m.pusher == nil {
		return
	}
	go func() {
		pushCtx, cancel := context.WithTimeout(context.Background(), m.pushTimeout)
		defer cancel()
		if err := m.pusher.Push(pushCtx); err != nil && m.logg != nil {
			lctx := m.logg.WithFields(context.Background(), map[string]any{
				"invoice_id": invoiceID,
				"error":      err.Error(),
			})
			m.logg.Warn(lctx, "post-submit push failed; invoice remains queued locally")
		}
	}()
}

// Invoice fetches a submitted invoice by id, for receipts and reprints.
func (m *Manager) Invoice(ctx context.Context, id string) (*docstore.Invoice, error) {
	doc, err := m.local.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return docstore.DecodeInvoice(doc)
}

// InvoicePage is one page of the submitted-invoice history.
type InvoicePage struct {
	Invoices   []*docstore.Invoice `json:"invoices"`
	NextCursor string              `json:"next_cursor,omitempty"`
}

// ListInvoices pages through submitted invoices newest-first, for the
// end-of-day review screen.
func (m *Manager) ListInvoices(ctx context.Context, params pagination.Params) (*InvoicePage, error) {
	docs, err := m.local.Find(ctx, docstore.Selector{
		Type:   enums.DocTypeInvoice,
		Status: string(enums.InvoiceStatusSubmitted),
	})
	if err != nil {
		return nil, err
	}

	page, err := pagination.Paginate(docs, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid pagination cursor")
	}

	out := &InvoicePage{
		Invoices:   make([]*docstore.Invoice, 0, len(page.Documents)),
		NextCursor: page.NextCursor,
	}
	for i := range page.Documents {
		invoice, err := docstore.DecodeInvoice(&page.Documents[i])
		if err != nil {
			return nil, err
		}
		out.Invoices = append(out.Invoices, invoice)
	}
	return out, nil
}
