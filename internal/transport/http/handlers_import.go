package httptransport

import (
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"

	"bayanat/internal/importer"
	"bayanat/internal/ratelimit"
	dErrors "bayanat/pkg/domain-errors"
	"bayanat/pkg/platform/httputil"
)

// maxUploadBytes bounds an uploaded CSV file.
const maxUploadBytes = 64 << 20

func (h *Handler) registerImports(r chi.Router) {
	r.Route("/imports", func(r chi.Router) {
		r.Get("/{id}", h.handleImportLog)

		r = r.With(h.limit(ratelimit.ClassImport))
		r.Post("/labels", h.handleTreeImport(h.Importer.ImportLabels))
		r.Post("/sources", h.handleTreeImport(h.Importer.ImportSources))
		r.Post("/locations", h.handleTreeImport(h.Importer.ImportLocations))
		r.Post("/actors", h.handleActorImport)
	})
}

type treeImport func(ctx context.Context, fileName string, r io.Reader) (*importer.Result, error)

// uploadedFile returns the multipart "file" part.
func uploadedFile(w http.ResponseWriter, r *http.Request) (multipart.File, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	f, hdr, err := r.FormFile("file")
	if err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeBadRequest, "a CSV file is required in the file field")
	}
	return f, hdr.Filename, nil
}

func (h *Handler) handleTreeImport(run treeImport) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, name, err := uploadedFile(w, r)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		defer f.Close()

		res, err := run(r.Context(), name, f)
		if err != nil {
			h.fail(w, r, "import failed", err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, res)
	}
}

// handleActorImport takes the CSV in "file" and the column mapping as JSON in "mapping".
func (h *Handler) handleActorImport(w http.ResponseWriter, r *http.Request) {
	f, name, err := uploadedFile(w, r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	defer f.Close()

	var m importer.Mapping
	if err := json.Unmarshal([]byte(r.FormValue("mapping")), &m); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "mapping must be a JSON object"))
		return
	}
	res, err := h.Importer.ImportActors(r.Context(), name, f, m)
	if err != nil {
		h.fail(w, r, "actor import failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleImportLog(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	l, err := h.Importer.Log(r.Context(), id)
	if err != nil {
		h.fail(w, r, "failed to load import log", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, l)
}
