package invoices

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tillpoint-terminal/pkg/docstore"
	"github.com/angelmondragon/tillpoint-terminal/pkg/enums"
	pkgerrors "github.com/angelmondragon/tillpoint-terminal/pkg/errors"
)

// CartLine is one item on the in-progress sale.
type CartLine struct {
	ItemID   string          `json:"item_id"`
	ItemName string          `json:"item_name"`
	UOM      string          `json:"uom,omitempty"`
	Qty      decimal.Decimal `json:"qty"`
	Rate     decimal.Decimal `json:"rate"`
}

// Amount is the extended line total, rounded to cents.
func (l CartLine) Amount() decimal.Decimal {
	return l.Rate.Mul(l.Qty).Round(2)
}

// Cart is the unpersisted in-progress sale. DraftID is set when the cart
// was resumed from (or saved as) a local draft.
type Cart struct {
	DraftID       string              `json:"draft_id,omitempty"`
	CustomerID    string              `json:"customer_id,omitempty"`
	CustomerName  string              `json:"customer_name,omitempty"`
	Lines         []CartLine          `json:"lines"`
	Discount      decimal.Decimal     `json:"discount"`
	PaymentMethod enums.PaymentMethod `json:"payment_method,omitempty"`
	CashReceived  decimal.Decimal     `json:"cash_received"`
}

// Totals are the register-facing amounts for a cart.
type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

// Empty reports whether the cart has no lines.
func (c *Cart) Empty() bool {
	return len(c.Lines) == 0
}

func (c *Cart) clone() Cart {
	copied := *c
	copied.Lines = append([]CartLine(nil), c.Lines...)
	return copied
}

// Totals computes subtotal, tax on the subtotal, and the amount due.
func (c *Cart) Totals(taxRate decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, line := range c.Lines {
		subtotal = subtotal.Add(line.Amount())
	}
	tax := subtotal.Mul(taxRate).Round(2)
	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Total:    subtotal.Add(tax).Sub(c.Discount),
	}
}

// AddItem prices an item through the session and adds it to the cart,
// merging onto an existing line when the item and rate match.
func (m *Manager) AddItem(ctx context.Context, itemID, itemCode string, qty decimal.Decimal) (*Cart, error) {
	if qty.LessThanOrEqual(decimal.Zero) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	price, err := m.sess.GetItemPrice(ctx, itemID, itemCode)
	if err != nil {
		return nil, err
	}

	item, uom := price.ItemName, ""
	if doc, err := m.local.Get(ctx, price.ItemID); err == nil {
		if decoded, err := docstore.DecodeItem(doc); err == nil {
			uom = decoded.UOM
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.cart.Lines {
		line := &m.cart.Lines[i]
		if line.ItemID == price.ItemID && line.Rate.Equal(price.Price) {
			line.Qty = line.Qty.Add(qty)
			cart := m.cart.clone()
			return &cart, nil
		}
	}

	m.cart.Lines = append(m.cart.Lines, CartLine{
		ItemID:   price.ItemID,
		ItemName: item,
		UOM:      uom,
		Qty:      qty,
		Rate:     price.Price,
	})
	cart := m.cart.clone()
	return &cart, nil
}

// SetQty replaces a line's quantity; zero or negative removes the line.
func (m *Manager) SetQty(ctx context.Context, itemID string, qty decimal.Decimal) (*Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.cart.Lines {
		if m.cart.Lines[i].ItemID != itemID {
			continue
		}
		if qty.LessThanOrEqual(decimal.Zero) {
			m.cart.Lines = append(m.cart.Lines[:i], m.cart.Lines[i+1:]...)
		} else {
			m.cart.Lines[i].Qty = qty
		}
		cart := m.cart.clone()
		return &cart, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "item not in cart")
}

// SetCustomer resolves the customer from the local store and attaches it.
func (m *Manager) SetCustomer(ctx context.Context, customerID string) error {
	doc, err := m.local.Get(ctx, customerID)
	if err != nil {
		return err
	}
	customer, err := docstore.DecodeCustomer(doc)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cart.CustomerID = customer.ID
	m.cart.CustomerName = customer.Name
	return nil
}

// SetDiscount applies an absolute discount. The active profile must allow
// discount edits.
func (m *Manager) SetDiscount(ctx context.Context, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "discount cannot be negative")
	}
	profile := m.sess.Profile()
	if profile == nil {
		return pkgerrors.New(pkgerrors.CodeConfiguration, "POS data not initialized")
	}
	if !profile.AllowDiscountEdit && amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "profile does not allow discount changes")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cart.Discount = amount
	return nil
}

// SetPayment records the tender for the sale.
func (m *Manager) SetPayment(ctx context.Context, method enums.PaymentMethod, cashReceived decimal.Decimal) error {
	if !method.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown payment method")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cart.PaymentMethod = method
	m.cart.CashReceived = cashReceived
	return nil
}

// Cart returns a snapshot of the in-progress sale and its totals.
func (m *Manager) Cart() (Cart, Totals) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cart := m.cart.clone()
	return cart, cart.Totals(m.taxRate)
}
