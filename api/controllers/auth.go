package controllers

import (
	"net/http"

	"github.com/angelmondragon/tillpoint-terminal/api/responses"
	"github.com/angelmondragon/tillpoint-terminal/api/validators"
	"github.com/angelmondragon/tillpoint-terminal/internal/authclient"
	pkgerrors "github.com/angelmondragon/tillpoint-terminal/pkg/errors"
	"github.com/angelmondragon/tillpoint-terminal/pkg/logger"
)

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// AuthLogin proxies a cashier login to the back-office auth service and
// returns the verified identity plus its bearer token.
func AuthLogin(auth *authclient.Client, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if auth == nil {
			err := pkgerrors.New(pkgerrors.CodeConfiguration, "auth service not configured on this terminal")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body loginRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		identity, err := auth.Login(r.Context(), authclient.Credentials{
			Username: body.Username,
			Password: body.Password,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		w.Header().Set("X-TillPoint-Token", identity.Token)
		responses.WriteSuccess(w, map[string]*authclient.Identity{"identity": identity})
	}
}
