package docstore

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tillpoint-terminal/pkg/enums"
	pkgerrors "github.com/angelmondragon/tillpoint-terminal/pkg/errors"
)

var validate = validator.New()

// Item is a sellable catalog record.
type Item struct {
	ID        string          `json:"id" validate:"required"`
	Name      string          `json:"name" validate:"required"`
	Code      string          `json:"code,omitempty"`
	Category  string          `json:"category,omitempty"`
	UOM       string          `json:"uom,omitempty"`
	BaseRate  decimal.Decimal `json:"base_rate"`
	Available bool            `json:"available"`
}

// Customer holds the contact fields the register needs.
type Customer struct {
	ID    string `json:"id" validate:"required"`
	Name  string `json:"name" validate:"required"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// PriceListEntry is a time-bounded price for an item on a named price list.
// Zero-valued bounds are open; both open means always valid.
type PriceListEntry struct {
	ID        string          `json:"id" validate:"required"`
	ItemID    string          `json:"item_id" validate:"required"`
	PriceList string          `json:"price_list" validate:"required"`
	Rate      decimal.Decimal `json:"rate"`
	ValidFrom time.Time       `json:"valid_from,omitzero"`
	ValidTo   time.Time       `json:"valid_to,omitzero"`
}

// POSProfile carries the register-level permissions and the price list the
// profile sells against.
type POSProfile struct {
	ID                 string `json:"id" validate:"required"`
	ExternalID         string `json:"external_id" validate:"required"`
	Name               string `json:"name"`
	PriceList          string `json:"price_list"`
	AllowDiscountEdit  bool   `json:"allow_discount_edit"`
	AllowRateEdit      bool   `json:"allow_rate_edit"`
	AllowOffers        bool   `json:"allow_offers"`
	AllowNegativeStock bool   `json:"allow_negative_stock"`
}

// InvoiceLine is one sold item. Amount is always Rate multiplied by Qty.
type InvoiceLine struct {
	ItemID   string          `json:"item_id" validate:"required"`
	ItemName string          `json:"item_name"`
	UOM      string          `json:"uom,omitempty"`
	Qty      decimal.Decimal `json:"qty"`
	Rate     decimal.Decimal `json:"rate"`
	Amount   decimal.Decimal `json:"amount"`
}

// TaxLine is one computed tax component on an invoice.
type TaxLine struct {
	Description string          `json:"description"`
	Rate        decimal.Decimal `json:"rate"`
	Amount      decimal.Decimal `json:"amount"`
}

// Invoice is the persisted sale document, draft or submitted.
type Invoice struct {
	ID            string              `json:"id" validate:"required"`
	Status        enums.InvoiceStatus `json:"status" validate:"required"`
	CustomerID    string              `json:"customer_id"`
	CustomerName  string              `json:"customer_name"`
	Lines         []InvoiceLine       `json:"lines"`
	Taxes         []TaxLine           `json:"taxes,omitempty"`
	Discount      decimal.Decimal     `json:"discount"`
	PaymentMethod enums.PaymentMethod `json:"payment_method,omitempty"`
	CashReceived  decimal.Decimal     `json:"cash_received"`
	Subtotal      decimal.Decimal     `json:"subtotal"`
	TaxTotal      decimal.Decimal     `json:"tax_total"`
	TotalAmount   decimal.Decimal     `json:"total_amount"`
	PaidAmount    decimal.Decimal     `json:"paid_amount"`
	SequenceNo    int64               `json:"sequence_no,omitempty"`
	ExternalID    string              `json:"external_id,omitempty"`
	FromDraftID   string              `json:"from_draft_id,omitempty"`
	AuditRef      string              `json:"audit_ref,omitempty"`
	SchemaVersion int                 `json:"schema_version"`
	CreatedBy     string              `json:"created_by,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	SubmittedAt   time.Time           `json:"submitted_at,omitzero"`
}

var docTypeByPayload = map[enums.DocType]func() any{
	enums.DocTypeItem:           func() any { return &Item{} },
	enums.DocTypeCustomer:       func() any { return &Customer{} },
	enums.DocTypePriceListEntry: func() any { return &PriceListEntry{} },
	enums.DocTypePOSProfile:     func() any { return &POSProfile{} },
	enums.DocTypeInvoice:        func() any { return &Invoice{} },
}

// NewDocument wraps a typed payload into a Document envelope, validating it
// at the boundary. Status is lifted from invoice payloads so the
// (type, status) index stays meaningful.
func NewDocument(id string, docType enums.DocType, payload any) (Document, error) {
	if !docType.IsValid() {
		return Document{}, pkgerrors.New(pkgerrors.CodeValidation, "unknown document type")
	}
	if err := validate.Struct(payload); err != nil {
		return Document{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "document failed validation")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Document{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding document body")
	}
	doc := Document{
		ID:   id,
		Type: docType,
		Body: body,
	}
	if inv, ok := payload.(*Invoice); ok {
		doc.Status = inv.Status.String()
	}
	return doc, nil
}

// DecodeBody unmarshals and validates a document body into its typed
// variant based on the Type discriminator. The caller asserts the concrete
// type from the returned value.
func DecodeBody(doc *Document) (any, error) {
	if doc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "nil document")
	}
	factory, ok := docTypeByPayload[doc.Type]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown document type")
	}
	payload := factory()
	if err := json.Unmarshal(doc.Body, payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decoding document body")
	}
	if err := validate.Struct(payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "document failed validation")
	}
	return payload, nil
}

// DecodeItem reads an item document.
func DecodeItem(doc *Document) (*Item, error) {
	payload, err := decodeAs(doc, enums.DocTypeItem)
	if err != nil {
		return nil, err
	}
	return payload.(*Item), nil
}

// DecodeCustomer reads a customer document.
func DecodeCustomer(doc *Document) (*Customer, error) {
	payload, err := decodeAs(doc, enums.DocTypeCustomer)
	if err != nil {
		return nil, err
	}
	return payload.(*Customer), nil
}

// DecodePriceListEntry reads a price list entry document.
func DecodePriceListEntry(doc *Document) (*PriceListEntry, error) {
	payload, err := decodeAs(doc, enums.DocTypePriceListEntry)
	if err != nil {
		return nil, err
	}
	return payload.(*PriceListEntry), nil
}

// DecodePOSProfile reads a POS profile document.
func DecodePOSProfile(doc *Document) (*POSProfile, error) {
	payload, err := decodeAs(doc, enums.DocTypePOSProfile)
	if err != nil {
		return nil, err
	}
	return payload.(*POSProfile), nil
}

// DecodeInvoice reads an invoice document.
func DecodeInvoice(doc *Document) (*Invoice, error) {
	payload, err := decodeAs(doc, enums.DocTypeInvoice)
	if err != nil {
		return nil, err
	}
	return payload.(*Invoice), nil
}

func decodeAs(doc *Document, want enums.DocType) (any, error) {
	if doc != nil && doc.Type != want {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "document type mismatch")
	}
	return DecodeBody(doc)
}
