package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"bayanat/internal/entity/models"
	dErrors "bayanat/pkg/domain-errors"
	"bayanat/pkg/platform/httputil"
)

func (h *Handler) registerFields(r chi.Router) {
	r.Route("/fields", func(r chi.Router) {
		r.Post("/", h.handleCreateField)
		r.Get("/{class}", h.handleListFields)
		r.Get("/{class}/history", h.handleFormHistory)
		r.Put("/{class}/order", h.handleReorderFields)
		r.Route("/id/{id}", func(r chi.Router) {
			r.Put("/", h.handleUpdateField)
			r.Get("/inspect", h.handleInspectField)
			r.Post("/activate", h.handleSetFieldActive(true))
			r.Post("/deactivate", h.handleSetFieldActive(false))
		})
	})
}

func (h *Handler) handleCreateField(w http.ResponseWriter, r *http.Request) {
	var f models.DynamicField
	if err := httputil.DecodeJSON(r, &f); err != nil {
		httputil.WriteError(w, err)
		return
	}
	f.ID = 0
	if err := h.Fields.Create(r.Context(), &f); err != nil {
		h.fail(w, r, "failed to create dynamic field", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, f)
}

func (h *Handler) handleListFields(w http.ResponseWriter, r *http.Request) {
	class, err := pathClass(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	fields, err := h.Fields.List(r.Context(), class)
	if err != nil {
		h.fail(w, r, "failed to list dynamic fields", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": fields})
}

func (h *Handler) handleFormHistory(w http.ResponseWriter, r *http.Request) {
	class, err := pathClass(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	rows, err := h.Fields.FormHistory(r.Context(), class)
	if err != nil {
		h.fail(w, r, "failed to load form history", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": rows})
}

type reorderRequest struct {
	IDs []int `json:"ids"`
}

func (req *reorderRequest) Validate() error {
	if len(req.IDs) == 0 {
		return dErrors.New(dErrors.CodeValidation, "ids are required")
	}
	return nil
}

func (h *Handler) handleReorderFields(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	class, err := pathClass(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[reorderRequest](w, r, h.logger, ctx, requestID(r))
	if !ok {
		return
	}
	if err := h.Fields.Reorder(ctx, class, req.IDs); err != nil {
		h.fail(w, r, "failed to reorder dynamic fields", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleUpdateField(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var patch models.DynamicField
	if err := httputil.DecodeJSON(r, &patch); err != nil {
		httputil.WriteError(w, err)
		return
	}
	f, err := h.Fields.Update(r.Context(), id, &patch)
	if err != nil {
		h.fail(w, r, "failed to update dynamic field", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, f)
}

func (h *Handler) handleInspectField(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	got, err := h.Fields.Inspect(r.Context(), id)
	if err != nil {
		h.fail(w, r, "failed to inspect dynamic field", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, got)
}

func (h *Handler) handleSetFieldActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		set := h.Fields.Deactivate
		if active {
			set = h.Fields.Activate
		}
		if err := set(r.Context(), id); err != nil {
			h.fail(w, r, "failed to change dynamic field state", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
