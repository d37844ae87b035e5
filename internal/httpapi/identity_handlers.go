package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"durga.org/internal/auth"
	"durga.org/internal/directory"
	"durga.org/internal/summary"
)

type grantRequest struct {
	ExpiresAt *time.Time `json:"expires_at"`
}

func (a *API) listIdentities(w http.ResponseWriter, r *http.Request) {
	p, err := pageFromQuery(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	inactive, err := boolQuery(r, "include_inactive")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	page, err := a.views.IdentityPage(r.Context(), directory.IdentityQuery{
		Page:            p,
		Search:          r.URL.Query().Get("search"),
		IncludeInactive: inactive != nil && *inactive,
	})
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (a *API) getIdentity(w http.ResponseWriter, r *http.Request) {
	detail, err := a.views.IdentityDetail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (a *API) createIdentity(w http.ResponseWriter, r *http.Request) {
	var in directory.IdentityInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	out, err := a.svc.CreateIdentity(r.Context(), in, auth.Actor(r.Context()))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	a.created(w, "/v1/identities/"+out.ID, out)
}

func (a *API) updateIdentity(w http.ResponseWriter, r *http.Request) {
	var upd directory.IdentityUpdate
	if err := decodeJSON(r, &upd); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	out, err := a.svc.UpdateIdentity(r.Context(), chi.URLParam(r, "id"), upd, auth.Actor(r.Context()))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) deleteIdentity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.EqualFold(id, auth.Actor(r.Context())) {
		writeError(w, r, http.StatusConflict, "identities cannot delete themselves")
		return
	}
	if err := a.svc.DeleteIdentity(r.Context(), id, auth.Actor(r.Context())); err != nil {
		a.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) identityRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := a.svc.EffectiveRoles(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": roles})
}

func (a *API) identityGrants(w http.ResponseWriter, r *http.Request) {
	grants, err := a.svc.IdentityGrants(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": grants})
}

func (a *API) identityTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := a.svc.IdentityTeams(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	refs := make([]summary.NamedRef, 0, len(teams))
	for _, t := range teams {
		refs = append(refs, summary.NamedRef{ID: t.ID, Name: t.Name})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": refs})
}

func (a *API) grantRole(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var opts []directory.GrantOption
	if req.ExpiresAt != nil {
		opts = append(opts, directory.WithExpiry(*req.ExpiresAt))
	}
	err := a.svc.GrantRole(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "roleID"), auth.Actor(r.Context()), opts...)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) revokeRole(w http.ResponseWriter, r *http.Request) {
	err := a.svc.RevokeRole(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "roleID"), auth.Actor(r.Context()))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
