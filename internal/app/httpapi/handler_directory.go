package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/coopfund/backoffice/internal/app/domain/cooperative"
	"github.com/coopfund/backoffice/internal/httputil"
)

func (h *handler) listCooperatives(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := cooperative.Filter{
		Type:     cooperative.Type(q.Get("type")),
		Status:   cooperative.Status(q.Get("status")),
		ParentID: q.Get("parent_id"),
		Search:   q.Get("q"),
	}
	coops, err := h.app.Cooperatives.List(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, coops)
}

func (h *handler) createCooperative(w http.ResponseWriter, r *http.Request) {
	var coop cooperative.Cooperative
	if err := httputil.DecodeJSON(r.Body, &coop); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	created, err := h.app.Cooperatives.Create(r.Context(), coop)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *handler) getCooperative(w http.ResponseWriter, r *http.Request) {
	coop, err := h.app.Cooperatives.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, coop)
}

func (h *handler) updateCooperative(w http.ResponseWriter, r *http.Request) {
	var coop cooperative.Cooperative
	if err := httputil.DecodeJSON(r.Body, &coop); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	coop.ID = mux.Vars(r)["id"]
	updated, err := h.app.Cooperatives.Update(r.Context(), coop)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (h *handler) deleteCooperative(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Cooperatives.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) archiveCooperative(w http.ResponseWriter, r *http.Request) {
	coop, err := h.app.Cooperatives.Archive(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, coop)
}

func (h *handler) restoreCooperative(w http.ResponseWriter, r *http.Request) {
	coop, err := h.app.Cooperatives.Restore(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, coop)
}

func (h *handler) listChildren(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := h.app.Cooperatives.Get(r.Context(), id); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	children, err := h.app.Cooperatives.Children(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, children)
}

func (h *handler) listMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.app.Cooperatives.ListMembers(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, members)
}

func (h *handler) addMember(w http.ResponseWriter, r *http.Request) {
	var m cooperative.Member
	if err := httputil.DecodeJSON(r.Body, &m); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	m.CooperativeID = mux.Vars(r)["id"]
	created, err := h.app.Cooperatives.AddMember(r.Context(), m)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *handler) updateMember(w http.ResponseWriter, r *http.Request) {
	var m cooperative.Member
	if err := httputil.DecodeJSON(r.Body, &m); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	m.ID = mux.Vars(r)["id"]
	updated, err := h.app.Cooperatives.UpdateMember(r.Context(), m)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (h *handler) removeMember(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Cooperatives.RemoveMember(r.Context(), mux.Vars(r)["id"]); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
