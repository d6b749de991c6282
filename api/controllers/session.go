package controllers

import (
	"net/http"

	"github.com/angelmondragon/tillpoint-terminal/api/responses"
	"github.com/angelmondragon/tillpoint-terminal/api/validators"
	"github.com/angelmondragon/tillpoint-terminal/internal/session"
	pkgerrors "github.com/angelmondragon/tillpoint-terminal/pkg/errors"
	"github.com/angelmondragon/tillpoint-terminal/pkg/logger"
)

type sessionInitRequest struct {
	ProfileName string `json:"profile_name"`
}

// SessionInit resolves the POS profile and loads its price list. With an
// empty profile name the persisted selection is reused.
func SessionInit(sess *session.Session, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body sessionInitRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := sess.InitializePOSData(r.Context(), body.ProfileName); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"profile": sess.Profile()})
	}
}

type sessionSwitchRequest struct {
	ProfileName string `json:"profile_name" validate:"required"`
}

// SessionSwitch re-runs initialization against a different profile.
func SessionSwitch(sess *session.Session, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body sessionSwitchRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := sess.SwitchPOSProfile(r.Context(), body.ProfileName); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"profile": sess.Profile()})
	}
}

// SessionReset clears the persisted profile selection (logout).
func SessionReset(sess *session.Session, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := sess.Reset(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "reset"})
	}
}

// SessionProfile returns the currently resolved profile.
func SessionProfile(sess *session.Session, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profile := sess.Profile()
		if profile == nil {
			err := pkgerrors.New(pkgerrors.CodeConfiguration, "POS data not initialized")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"profile": profile})
	}
}

// PriceLookup resolves the selling price for an item by id or code.
func PriceLookup(sess *session.Session, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID := validators.SanitizeString(r.URL.Query().Get("item_id"), 128)
		itemCode := validators.SanitizeString(r.URL.Query().Get("item_code"), 128)
		if itemID == "" && itemCode == "" {
			err := pkgerrors.New(pkgerrors.CodeValidation, "item_id or item_code is required")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		price, err := sess.GetItemPrice(r.Context(), itemID, itemCode)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, price)
	}
}
