package httptransport

import (
	"net/http"
	"strconv"

	"bayanat/internal/access"
	"bayanat/internal/graphcache"
	dErrors "bayanat/pkg/domain-errors"
	"bayanat/pkg/platform/httputil"
)

// handleGraph returns the relation graph around an entity, served from the caller's
// cache entry when the same query was asked last.
func (h *Handler) handleGraph(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := access.FromContext(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	class, id, err := pathEntity(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	q := graphcache.Query{Class: class, ID: id}
	if d := r.URL.Query().Get("depth"); d != "" {
		if q.Depth, err = strconv.Atoi(d); err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid depth"))
			return
		}
	}

	raw, hit, err := h.Graphs.Graph(ctx, caller.UserID, q, h.GraphBuilder)
	if err != nil {
		h.fail(w, r, "failed to build graph", err)
		return
	}
	if hit {
		w.Header().Set("X-Cache", "hit")
	} else {
		w.Header().Set("X-Cache", "miss")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func (h *Handler) handleGraphReset(w http.ResponseWriter, r *http.Request) {
	caller, ok := access.FromContext(r.Context())
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	if err := h.Graphs.Invalidate(r.Context(), caller.UserID); err != nil {
		h.fail(w, r, "failed to clear graph cache", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
