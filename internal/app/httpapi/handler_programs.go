package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/coopfund/backoffice/internal/app/domain/checklist"
	"github.com/coopfund/backoffice/internal/app/domain/program"
	"github.com/coopfund/backoffice/internal/httputil"
)

func (h *handler) listPrograms(w http.ResponseWriter, r *http.Request) {
	progs, err := h.app.Programs.List(r.Context(), httputil.QueryBool(r, "active"))
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, progs)
}

func (h *handler) createProgram(w http.ResponseWriter, r *http.Request) {
	var p program.Program
	if err := httputil.DecodeJSON(r.Body, &p); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	created, err := h.app.Programs.Create(r.Context(), p)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *handler) getProgram(w http.ResponseWriter, r *http.Request) {
	p, err := h.app.Programs.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *handler) updateProgram(w http.ResponseWriter, r *http.Request) {
	var p program.Program
	if err := httputil.DecodeJSON(r.Body, &p); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	p.ID = mux.Vars(r)["id"]
	updated, err := h.app.Programs.Update(r.Context(), p)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (h *handler) deleteProgram(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Programs.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) activateProgram(w http.ResponseWriter, r *http.Request) {
	h.setProgramActive(w, r, true)
}

func (h *handler) deactivateProgram(w http.ResponseWriter, r *http.Request) {
	h.setProgramActive(w, r, false)
}

func (h *handler) setProgramActive(w http.ResponseWriter, r *http.Request, active bool) {
	p, err := h.app.Programs.SetActive(r.Context(), mux.Vars(r)["id"], active)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *handler) listChecklists(w http.ResponseWriter, r *http.Request) {
	items, err := h.app.Checklists.List(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, items)
}

func (h *handler) createChecklist(w http.ResponseWriter, r *http.Request) {
	var c checklist.Checklist
	if err := httputil.DecodeJSON(r.Body, &c); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	c.ProgramID = mux.Vars(r)["id"]
	created, err := h.app.Checklists.Create(r.Context(), c)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *handler) getChecklist(w http.ResponseWriter, r *http.Request) {
	c, err := h.app.Checklists.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *handler) updateChecklist(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	existing, err := h.app.Checklists.Get(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	var c checklist.Checklist
	if err := httputil.DecodeJSON(r.Body, &c); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	c.ID = id
	c.ProgramID = existing.ProgramID
	updated, err := h.app.Checklists.Update(r.Context(), c)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (h *handler) deleteChecklist(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Checklists.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
