package controllers

import (
	"net/http"

	"github.com/angelmondragon/tillpoint-terminal/api/responses"
	"github.com/angelmondragon/tillpoint-terminal/pkg/config"
	"github.com/angelmondragon/tillpoint-terminal/pkg/docstore"
)

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-TillPoint-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports readiness. The terminal is ready when its local
// store answers; the remote being down is normal offline operation.
func HealthReady(cfg *config.Config, local docstore.Pinger, remote docstore.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-TillPoint-Env", cfg.App.Env)

		status := map[string]string{"status": "ready", "local": "ok", "remote": "unconfigured"}
		if local == nil || local.Ping(r.Context()) != nil {
			status["status"] = "degraded"
			status["local"] = "unreachable"
			responses.WriteSuccessStatus(w, http.StatusServiceUnavailable, status)
			return
		}
		if remote != nil {
			if remote.Ping(r.Context()) == nil {
				status["remote"] = "ok"
			} else {
				status["remote"] = "offline"
			}
		}
		responses.WriteSuccess(w, status)
	}
}
