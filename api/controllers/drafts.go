package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/tillpoint-terminal/api/responses"
	"github.com/angelmondragon/tillpoint-terminal/internal/invoices"
	"github.com/angelmondragon/tillpoint-terminal/pkg/logger"
)

// DraftSave parks the current sale in the local draft queue.
func DraftSave(mgr *invoices.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		draft, err := mgr.SaveDraft(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, draft)
	}
}

// DraftList returns the parked sales on this terminal.
func DraftList(mgr *invoices.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		drafts, err := mgr.ListDrafts(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"drafts": drafts})
	}
}

// DraftResume restores a parked sale into the cart.
func DraftResume(mgr *invoices.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cart, err := mgr.ResumeDraft(r.Context(), chi.URLParam(r, "*"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"cart": cart})
	}
}

// DraftCancel removes a parked sale without resuming it.
func DraftCancel(mgr *invoices.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "*")
		if err := mgr.CancelDraft(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "removed", "draft_id": id})
	}
}
