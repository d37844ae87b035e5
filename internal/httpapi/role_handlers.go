package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"durga.org/internal/auth"
	"durga.org/internal/directory"
	"durga.org/internal/summary"
)

func (a *API) listRoles(w http.ResponseWriter, r *http.Request) {
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
	system, err := boolQuery(r, "system")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	page, err := a.views.RolePage(r.Context(), directory.RoleQuery{
		Page:            p,
		Search:          r.URL.Query().Get("search"),
		IncludeInactive: inactive != nil && *inactive,
		System:          system,
	})
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (a *API) getRole(w http.ResponseWriter, r *http.Request) {
	detail, err := a.views.RoleDetail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (a *API) roleHolders(w http.ResponseWriter, r *http.Request) {
	holders, err := a.svc.IdentitiesInRole(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	refs := make([]summary.IdentityRef, 0, len(holders))
	for _, i := range holders {
		refs = append(refs, summary.Ref(i))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": refs})
}

func (a *API) createRole(w http.ResponseWriter, r *http.Request) {
	var in directory.RoleInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	out, err := a.svc.CreateRole(r.Context(), in, auth.Actor(r.Context()))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	a.created(w, "/v1/roles/"+out.ID, out)
}

func (a *API) updateRole(w http.ResponseWriter, r *http.Request) {
	var upd directory.RoleUpdate
	if err := decodeJSON(r, &upd); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	out, err := a.svc.UpdateRole(r.Context(), chi.URLParam(r, "id"), upd, auth.Actor(r.Context()))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) deleteRole(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.DeleteRole(r.Context(), chi.URLParam(r, "id"), auth.Actor(r.Context())); err != nil {
		a.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
