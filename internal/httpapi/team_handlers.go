package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"durga.org/internal/auth"
	"durga.org/internal/directory"
)

type pointerRequest struct {
	IdentityID string `json:"identity_id"`
}

func (a *API) listTeams(w http.ResponseWriter, r *http.Request) {
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
	page, err := a.views.TeamList(r.Context(), directory.TeamQuery{
		Page:            p,
		Search:          r.URL.Query().Get("search"),
		IncludeInactive: inactive != nil && *inactive,
		DepartmentID:    r.URL.Query().Get("department_id"),
	})
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (a *API) getTeam(w http.ResponseWriter, r *http.Request) {
	detail, err := a.views.TeamDetail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (a *API) teamMembers(w http.ResponseWriter, r *http.Request) {
	members, err := a.views.TeamMembers(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": members})
}

func (a *API) createTeam(w http.ResponseWriter, r *http.Request) {
	var in directory.TeamInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	out, err := a.svc.CreateTeam(r.Context(), in, auth.Actor(r.Context()))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	a.created(w, "/v1/teams/"+out.ID, out)
}

func (a *API) updateTeam(w http.ResponseWriter, r *http.Request) {
	var upd directory.TeamUpdate
	if err := decodeJSON(r, &upd); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	out, err := a.svc.UpdateTeam(r.Context(), chi.URLParam(r, "id"), upd, auth.Actor(r.Context()))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) deleteTeam(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.DeleteTeam(r.Context(), chi.URLParam(r, "id"), auth.Actor(r.Context())); err != nil {
		a.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) joinTeam(w http.ResponseWriter, r *http.Request) {
	err := a.svc.JoinTeam(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "identityID"), auth.Actor(r.Context()))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) leaveTeam(w http.ResponseWriter, r *http.Request) {
	err := a.svc.LeaveTeam(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "identityID"), auth.Actor(r.Context()))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type assignFunc func(ctx context.Context, targetID, identityID, by string) error

type clearFunc func(ctx context.Context, targetID, by string) error

// assignPointer serves PUT on leader and manager sub-resources.
func (a *API) assignPointer(assign assignFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req pointerRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := assign(r.Context(), chi.URLParam(r, "id"), req.IdentityID, auth.Actor(r.Context())); err != nil {
			a.handleError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (a *API) clearPointer(unset clearFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := unset(r.Context(), chi.URLParam(r, "id"), auth.Actor(r.Context())); err != nil {
			a.handleError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (a *API) assignTeamLeader(w http.ResponseWriter, r *http.Request) {
	a.assignPointer(a.svc.AssignTeamLeader)(w, r)
}

func (a *API) clearTeamLeader(w http.ResponseWriter, r *http.Request) {
	a.clearPointer(a.svc.ClearTeamLeader)(w, r)
}

func (a *API) assignTeamManager(w http.ResponseWriter, r *http.Request) {
	a.assignPointer(a.svc.AssignTeamManager)(w, r)
}

func (a *API) clearTeamManager(w http.ResponseWriter, r *http.Request) {
	a.clearPointer(a.svc.ClearTeamManager)(w, r)
}

func (a *API) divergences(w http.ResponseWriter, r *http.Request) {
	items, err := a.views.Divergences(r.Context())
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
