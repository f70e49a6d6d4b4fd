package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"bayanat/internal/user"
	"bayanat/pkg/platform/httputil"
)

func (h *Handler) registerUsers(r chi.Router) {
	r.Post("/users", h.handleSaveUser)
	r.Put("/users/{id}", h.handleSaveUser)
}

func (h *Handler) handleSaveUser(w http.ResponseWriter, r *http.Request) {
	id, err := optionalID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req user.SaveRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	req.ID = id
	saved, err := h.Users.Save(r.Context(), req)
	if err != nil {
		h.fail(w, r, "failed to save user", err)
		return
	}
	httputil.WriteJSON(w, created(id), saved.Model().Dict())
}
