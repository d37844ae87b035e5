package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"durga.org/internal/auth"
)

type tokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type passwordRequest struct {
	Password string `json:"password"`
}

func (a *API) handleToken(w http.ResponseWriter, r *http.Request) {
	if !a.authn.Enabled() {
		a.handleError(w, r, auth.ErrNotImplemented)
		return
	}
	var req tokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	token, expiresAt, err := a.authn.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: token, TokenType: "Bearer", ExpiresAt: expiresAt})
}

// setPassword lets identities change their own password; admins may change anyone's.
func (a *API) setPassword(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if auth.Actor(r.Context()) != id && !auth.HasRole(r.Context(), adminRole) {
		writeError(w, r, http.StatusForbidden, "forbidden")
		return
	}
	if !a.authn.Enabled() {
		a.handleError(w, r, auth.ErrNotImplemented)
		return
	}
	var req passwordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.authn.SetPassword(r.Context(), id, req.Password); err != nil {
		a.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
