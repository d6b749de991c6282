package controllers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tillpoint-terminal/api/responses"
	"github.com/angelmondragon/tillpoint-terminal/api/validators"
	"github.com/angelmondragon/tillpoint-terminal/internal/invoices"
	"github.com/angelmondragon/tillpoint-terminal/pkg/enums"
	pkgerrors "github.com/angelmondragon/tillpoint-terminal/pkg/errors"
	"github.com/angelmondragon/tillpoint-terminal/pkg/logger"
)

type cartView struct {
	Cart   invoices.Cart   `json:"cart"`
	Totals invoices.Totals `json:"totals"`
}

func viewOf(cart invoices.Cart, totals invoices.Totals) cartView {
	return cartView{Cart: cart, Totals: totals}
}

// CartView returns the in-progress sale and its totals.
func CartView(mgr *invoices.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cart, totals := mgr.Cart()
		responses.WriteSuccess(w, viewOf(cart, totals))
	}
}

type cartAddRequest struct {
	ItemID   string          `json:"item_id"`
	ItemCode string          `json:"item_code"`
	Qty      decimal.Decimal `json:"qty" validate:"required"`
}

// CartAddItem prices an item and adds it to the sale.
func CartAddItem(mgr *invoices.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body cartAddRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if body.ItemID == "" && body.ItemCode == "" {
			err := pkgerrors.New(pkgerrors.CodeValidation, "item_id or item_code is required")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if _, err := mgr.AddItem(r.Context(), body.ItemID, body.ItemCode, body.Qty); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cart, totals := mgr.Cart()
		responses.WriteSuccess(w, viewOf(cart, totals))
	}
}

type cartQtyRequest struct {
	ItemID string          `json:"item_id" validate:"required"`
	Qty    decimal.Decimal `json:"qty"`
}

// CartSetQty changes a line's quantity; zero removes the line.
func CartSetQty(mgr *invoices.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body cartQtyRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if _, err := mgr.SetQty(r.Context(), body.ItemID, body.Qty); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cart, totals := mgr.Cart()
		responses.WriteSuccess(w, viewOf(cart, totals))
	}
}

type cartCustomerRequest struct {
	CustomerID string `json:"customer_id" validate:"required"`
}

// CartSetCustomer attaches a customer from the local catalog.
func CartSetCustomer(mgr *invoices.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body cartCustomerRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := mgr.SetCustomer(r.Context(), body.CustomerID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cart, totals := mgr.Cart()
		responses.WriteSuccess(w, viewOf(cart, totals))
	}
}

type cartDiscountRequest struct {
	Discount decimal.Decimal `json:"discount"`
}

// CartSetDiscount applies an absolute discount, permission allowing.
func CartSetDiscount(mgr *invoices.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body cartDiscountRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := mgr.SetDiscount(r.Context(), body.Discount); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cart, totals := mgr.Cart()
		responses.WriteSuccess(w, viewOf(cart, totals))
	}
}

type cartPaymentRequest struct {
	Method       string          `json:"method" validate:"required,oneof=cash card qr"`
	CashReceived decimal.Decimal `json:"cash_received"`
}

// CartSetPayment records the tender.
func CartSetPayment(mgr *invoices.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body cartPaymentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		method, err := enums.ParsePaymentMethod(body.Method)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
			return
		}

		if err := mgr.SetPayment(r.Context(), method, body.CashReceived); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cart, totals := mgr.Cart()
		responses.WriteSuccess(w, viewOf(cart, totals))
	}
}

// CartCancel discards the in-progress sale and its draft-queue entry.
func CartCancel(mgr *invoices.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := mgr.Cancel(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "cancelled"})
	}
}
