package controllers

import (
	"net/http"

	"github.com/angelmondragon/tillpoint-terminal/api/responses"
	"github.com/angelmondragon/tillpoint-terminal/api/validators"
	"github.com/angelmondragon/tillpoint-terminal/internal/syncer"
	"github.com/angelmondragon/tillpoint-terminal/pkg/enums"
	pkgerrors "github.com/angelmondragon/tillpoint-terminal/pkg/errors"
	"github.com/angelmondragon/tillpoint-terminal/pkg/logger"
)

// SyncStatus reports the synchronizer's current state and connectivity.
func SyncStatus(s *syncer.Syncer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		localOK, remoteOK := s.TestConnection(r.Context())
		responses.WriteSuccess(w, map[string]any{
			"status": s.Status(),
			"local":  localOK,
			"remote": remoteOK,
		})
	}
}

type syncTriggerRequest struct {
	Direction string `json:"direction" validate:"required,oneof=pull push both"`
}

// SyncTrigger starts a sync run in the requested direction. A run already
// in flight surfaces as a state conflict, not a second run.
func SyncTrigger(s *syncer.Syncer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body syncTriggerRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		direction, err := enums.ParseSyncDirection(body.Direction)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid direction"))
			return
		}

		result := s.PerformSync(r.Context(), direction)
		if !result.Success {
			responses.WriteError(r.Context(), logg, w, result.Err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
