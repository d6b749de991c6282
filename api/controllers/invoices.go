package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/tillpoint-terminal/api/responses"
	"github.com/angelmondragon/tillpoint-terminal/api/validators"
	"github.com/angelmondragon/tillpoint-terminal/internal/invoices"
	"github.com/angelmondragon/tillpoint-terminal/pkg/logger"
	"github.com/angelmondragon/tillpoint-terminal/pkg/pagination"
)

// InvoiceSubmit converts the cart into a numbered Submitted invoice.
func InvoiceSubmit(mgr *invoices.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		invoice, err := mgr.Submit(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, invoice)
	}
}

// InvoiceNumberPreview shows the next invoice identity without minting it.
func InvoiceNumberPreview(mgr *invoices.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		number, err := mgr.GenerateInvoiceNumber(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, number)
	}
}

// InvoiceList pages through submitted invoices, newest first.
func InvoiceList(mgr *invoices.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", 0, 0, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := mgr.ListInvoices(r.Context(), pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// InvoiceGet fetches a submitted invoice for receipts and reprints.
func InvoiceGet(mgr *invoices.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		invoice, err := mgr.Invoice(r.Context(), chi.URLParam(r, "*"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, invoice)
	}
}
