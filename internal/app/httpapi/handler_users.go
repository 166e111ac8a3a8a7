package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/coopfund/backoffice/internal/app/domain/user"
	svcerrors "github.com/coopfund/backoffice/internal/errors"
	"github.com/coopfund/backoffice/internal/httputil"
	"github.com/coopfund/backoffice/internal/middleware"
)

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := httputil.DecodeJSON(r.Body, &payload); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	result, err := h.app.Users.Login(r.Context(), payload.Email, payload.Password)
	if err != nil {
		h.log.WithContext(r.Context()).WithField("email", payload.Email).Warn("login rejected")
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	u, err := h.app.Users.Get(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, u)
}

func (h *handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.app.Users.List(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, users)
}

func (h *handler) createUser(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name     string    `json:"name"`
		Email    string    `json:"email"`
		Password string    `json:"password"`
		Role     user.Role `json:"role"`
	}
	if err := httputil.DecodeJSON(r.Body, &payload); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	u, err := h.app.Users.Create(r.Context(), payload.Name, payload.Email, payload.Password, payload.Role)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, u)
}

func (h *handler) getUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.app.Users.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, u)
}

func (h *handler) updateUser(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name   *string    `json:"name"`
		Role   *user.Role `json:"role"`
		Active *bool      `json:"active"`
	}
	if err := httputil.DecodeJSON(r.Body, &payload); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	u, err := h.app.Users.Update(r.Context(), mux.Vars(r)["id"], payload.Name, payload.Role, payload.Active)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, u)
}

func (h *handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == middleware.GetUserID(r.Context()) {
		httputil.WriteError(w, r, svcerrors.Conflict("you cannot delete your own account"))
		return
	}
	if err := h.app.Users.Delete(r.Context(), id); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// setPassword is open to admins and to the user themself.
func (h *handler) setPassword(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id != middleware.GetUserID(r.Context()) && middleware.GetUserRole(r.Context()) != user.RoleAdmin {
		httputil.WriteError(w, r, svcerrors.Forbidden("only admins can change other users' passwords"))
		return
	}
	var payload struct {
		Password string `json:"password"`
	}
	if err := httputil.DecodeJSON(r.Body, &payload); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if err := h.app.Users.SetPassword(r.Context(), id, payload.Password); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	limit, err := httputil.QueryInt(r, "limit", 100)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	items, err := h.app.Notifications.List(r.Context(), middleware.GetUserID(r.Context()), httputil.QueryBool(r, "unread"), limit)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, items)
}

func (h *handler) markRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.app.Notifications.MarkRead(r.Context(), middleware.GetUserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, n)
}

func (h *handler) markAllRead(w http.ResponseWriter, r *http.Request) {
	count, err := h.app.Notifications.MarkAllRead(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int{"updated": count})
}

func (h *handler) deleteNotification(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Notifications.Delete(r.Context(), middleware.GetUserID(r.Context()), mux.Vars(r)["id"]); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
