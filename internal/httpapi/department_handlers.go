package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"durga.org/internal/auth"
	"durga.org/internal/directory"
	"durga.org/internal/summary"
)

func (a *API) listDepartments(w http.ResponseWriter, r *http.Request) {
	p, err := pageFromQuery(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	page, err := a.views.DepartmentList(r.Context(), directory.DepartmentQuery{
		Page:   p,
		Search: r.URL.Query().Get("search"),
	})
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (a *API) getDepartment(w http.ResponseWriter, r *http.Request) {
	detail, err := a.views.DepartmentDetail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (a *API) departmentTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := a.svc.DepartmentTeams(r.Context(), chi.URLParam(r, "id"))
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

func (a *API) createDepartment(w http.ResponseWriter, r *http.Request) {
	var in directory.DepartmentInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	out, err := a.svc.CreateDepartment(r.Context(), in, auth.Actor(r.Context()))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	a.created(w, "/v1/departments/"+out.ID, out)
}

func (a *API) updateDepartment(w http.ResponseWriter, r *http.Request) {
	var upd directory.DepartmentUpdate
	if err := decodeJSON(r, &upd); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	out, err := a.svc.UpdateDepartment(r.Context(), chi.URLParam(r, "id"), upd, auth.Actor(r.Context()))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) deleteDepartment(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.DeleteDepartment(r.Context(), chi.URLParam(r, "id"), auth.Actor(r.Context())); err != nil {
		a.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) assignDepartmentManager(w http.ResponseWriter, r *http.Request) {
	a.assignPointer(a.svc.AssignDepartmentManager)(w, r)
}

func (a *API) clearDepartmentManager(w http.ResponseWriter, r *http.Request) {
	a.clearPointer(a.svc.ClearDepartmentManager)(w, r)
}
