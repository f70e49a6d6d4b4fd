package httptransport

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"bayanat/internal/entity/models"
	"bayanat/internal/entity/serializer"
	"bayanat/internal/entity/service"
	"bayanat/internal/ratelimit"
	"bayanat/internal/relation"
	"bayanat/internal/search"
	dErrors "bayanat/pkg/domain-errors"
	"bayanat/pkg/platform/httputil"
)

// maxSearchExpand bounds how many search hits are serialized inline.
const maxSearchExpand = 200

func (h *Handler) registerEntities(r chi.Router) {
	r.Route("/{class}", func(r chi.Router) {
		r.With(h.limit(ratelimit.ClassWrite)).Post("/", h.handleIngest)
		if h.Search != nil {
			r.Post("/search", h.handleSearch)
		}
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Get("/history", h.handleHistory)

			w := r.With(h.limit(ratelimit.ClassWrite))
			w.Put("/", h.handleIngest)
			w.Delete("/", h.handleDelete)
			w.Put("/review", h.handleReview)
			w.Put("/assign", h.handleAssign)
			w.Post("/relations", h.handleRelate)
			w.Delete("/relations/{other}/{otherID}", h.handleUnrelate)
		})
	})
}

func upsertOptions(r *http.Request) []service.UpsertOption {
	if v := r.URL.Query().Get("create_revision"); v != "" && !queryBool(r, "create_revision") {
		return []service.UpsertOption{service.WithoutCascade()}
	}
	return nil
}

// handleGet returns the entity view. A caller without read access receives the
// restricted stub with 200.
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	class, id, err := pathEntity(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	opts, err := serializer.ParseOptions(r.URL.Query().Get("mode"), queryBool(r, "skip_relations"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, err.Error()))
		return
	}
	d, err := h.Entities.Get(r.Context(), class, id, opts)
	if err != nil {
		h.fail(w, r, "failed to load entity", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

// handleIngest serves both POST /{class} (create) and PUT /{class}/{id} (update).
func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	class, err := pathClass(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	id := 0
	status := http.StatusCreated
	if chi.URLParam(r, "id") != "" {
		if id, err = pathID(r, "id"); err != nil {
			httputil.WriteError(w, err)
			return
		}
		status = http.StatusOK
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, httputil.MaxBodyBytes))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "failed to read request body"))
		return
	}
	saved, err := h.Entities.Ingest(ctx, class, id, payload, upsertOptions(r)...)
	if err != nil {
		h.fail(w, r, "entity ingest failed", err)
		return
	}
	d, err := h.Entities.Get(ctx, class, saved, serializer.Full)
	if err != nil {
		h.fail(w, r, "failed to load saved entity", err)
		return
	}
	httputil.WriteJSON(w, status, d)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	class, id, err := pathEntity(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.Entities.Delete(r.Context(), class, id); err != nil {
		h.fail(w, r, "entity delete failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleReview(w http.ResponseWriter, r *http.Request) {
	class, id, err := pathEntity(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req models.ReviewRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.Entities.Review(r.Context(), class, id, req); err != nil {
		h.fail(w, r, "entity review failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request) {
	class, id, err := pathEntity(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req models.AssignRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.Entities.Assign(r.Context(), class, id, req); err != nil {
		h.fail(w, r, "entity assignment failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	class, id, err := pathEntity(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	rows, err := h.Entities.History(r.Context(), class, id)
	if err != nil {
		h.fail(w, r, "failed to load history", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": rows})
}

type relateRequest struct {
	Class       models.Class `json:"class"`
	ID          int          `json:"id" validate:"gt=0"`
	RelatedAs   models.Codes `json:"related_as"`
	Probability *int         `json:"probability" validate:"omitempty,min=0,max=3"`
	Comment     string       `json:"comment"`
}

func (req *relateRequest) Validate() error {
	if !req.Class.Primary() {
		return dErrors.Newf(dErrors.CodeValidation, "unknown entity class %q", req.Class)
	}
	return models.Validate(req)
}

func (h *Handler) handleRelate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	class, id, err := pathEntity(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[relateRequest](w, r, h.logger, ctx, requestID(r))
	if !ok {
		return
	}

	from := relation.Ref{Class: class, ID: id}
	attrs := relation.AttrsFrom(models.RelationInput{RelatedAs: req.RelatedAs, Probability: req.Probability, Comment: req.Comment})
	var change relation.Change
	switch req.Class {
	case models.ClassBulletin:
		change, err = h.Entities.RelateBulletin(ctx, from, req.ID, attrs, upsertOptions(r)...)
	case models.ClassActor:
		change, err = h.Entities.RelateActor(ctx, from, req.ID, attrs, upsertOptions(r)...)
	default:
		change, err = h.Entities.RelateIncident(ctx, from, req.ID, attrs, upsertOptions(r)...)
	}
	if err != nil {
		h.fail(w, r, "relate failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, changeResponse(change))
}

func (h *Handler) handleUnrelate(w http.ResponseWriter, r *http.Request) {
	class, id, err := pathEntity(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	other := models.Class(chi.URLParam(r, "other"))
	if !other.Primary() {
		httputil.WriteError(w, dErrors.Newf(dErrors.CodeNotFound, "unknown entity class %q", other))
		return
	}
	otherID, err := pathID(r, "otherID")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	change, err := h.Entities.Unrelate(r.Context(), relation.Ref{Class: class, ID: id},
		relation.Ref{Class: other, ID: otherID}, upsertOptions(r)...)
	if err != nil {
		h.fail(w, r, "unrelate failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, changeResponse(change))
}

func changeResponse(c relation.Change) map[string]any {
	return map[string]any{
		"kind":        c.Kind.Name,
		"counterpart": c.Counterpart.String(),
		"outcome":     c.Outcome.String(),
	}
}

// handleSearch returns matching ids. With ?mode the first hits are serialized inline.
func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	class, err := pathClass(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var f search.Filter
	if err := httputil.DecodeJSON(r, &f); err != nil {
		httputil.WriteError(w, err)
		return
	}
	ids, err := h.Search.Search(ctx, class, f)
	if err != nil {
		h.fail(w, r, "search failed", err)
		return
	}
	resp := map[string]any{"ids": ids, "count": len(ids)}

	if mode := r.URL.Query().Get("mode"); mode != "" {
		opts, err := serializer.ParseOptions(mode, true)
		if err != nil {
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, err.Error()))
			return
		}
		items := make([]models.Dict, 0, min(len(ids), maxSearchExpand))
		for _, id := range ids[:min(len(ids), maxSearchExpand)] {
			d, err := h.Entities.Get(ctx, class, id, opts)
			if err != nil {
				h.fail(w, r, "failed to load search hit", err)
				return
			}
			items = append(items, d)
		}
		resp["items"] = items
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
