package httptransport

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"bayanat/internal/access"
	"bayanat/internal/entity/models"
	"bayanat/internal/taxonomy"
	dErrors "bayanat/pkg/domain-errors"
	"bayanat/pkg/platform/httputil"
)

func (h *Handler) registerTaxonomy(r chi.Router) {
	r.Route("/taxonomy", func(r chi.Router) {
		r.Get("/{tree}/children", h.handleChildren)
		r.Post("/labels", h.handleSaveLabel)
		r.Put("/labels/{id}", h.handleSaveLabel)
		r.Post("/sources", h.handleSaveSource)
		r.Put("/sources/{id}", h.handleSaveSource)

		r.Post("/locations", h.handleSaveLocation)
		r.Post("/locations/regenerate", h.handleRegenerateLocations)
		r.Get("/locations/{id}", h.handleGetLocation)
		r.Put("/locations/{id}", h.handleSaveLocation)
		r.Get("/locations/{id}/subtree", h.handleSubtree)

		r.Get("/admin-levels", h.handleAdminLevels)
		r.Post("/admin-levels", h.handleSaveAdminLevel)

		r.Get("/vocab/{name}", h.handleListVocab)
		r.Post("/vocab/{name}", h.handleSaveVocab)
		r.Put("/vocab/{name}/{id}", h.handleSaveVocab)
		r.Delete("/vocab/{name}/{id}", h.handleDeleteVocab)

		if h.RelationInfo != nil {
			r.Get("/relation-info/{name}", h.handleListRelationInfo)
			r.Post("/relation-info/{name}", h.handleSaveRelationInfo)
			r.Put("/relation-info/{name}/{id}", h.handleSaveRelationInfo)
		}
	})
}

// optionalID reads {id} when the route has one; zero means create.
func optionalID(r *http.Request) (int, error) {
	if chi.URLParam(r, "id") == "" {
		return 0, nil
	}
	return pathID(r, "id")
}

func created(id int) int {
	if id == 0 {
		return http.StatusCreated
	}
	return http.StatusOK
}

func (h *Handler) handleChildren(w http.ResponseWriter, r *http.Request) {
	tree := taxonomy.Tree(chi.URLParam(r, "tree"))
	switch tree {
	case taxonomy.TreeLabel, taxonomy.TreeSource, taxonomy.TreeLocation:
	default:
		httputil.WriteError(w, dErrors.Newf(dErrors.CodeNotFound, "unknown tree %q", tree))
		return
	}
	var parent *int
	if r.URL.Query().Get("parent") != "" {
		id, err := queryID(r, "parent")
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		parent = &id
	}
	nodes, err := h.Taxonomy.Children(r.Context(), tree, parent)
	if err != nil {
		h.fail(w, r, "failed to list children", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": nodes})
}

func (h *Handler) handleSaveLabel(w http.ResponseWriter, r *http.Request) {
	id, err := optionalID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var l models.Label
	if err := httputil.DecodeJSON(r, &l); err != nil {
		httputil.WriteError(w, err)
		return
	}
	l.ID = id
	if err := h.Taxonomy.SaveLabel(r.Context(), &l); err != nil {
		h.fail(w, r, "failed to save label", err)
		return
	}
	httputil.WriteJSON(w, created(id), l)
}

func (h *Handler) handleSaveSource(w http.ResponseWriter, r *http.Request) {
	id, err := optionalID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var src models.Source
	if err := httputil.DecodeJSON(r, &src); err != nil {
		httputil.WriteError(w, err)
		return
	}
	src.ID = id
	if err := h.Taxonomy.SaveSource(r.Context(), &src); err != nil {
		h.fail(w, r, "failed to save source", err)
		return
	}
	httputil.WriteJSON(w, created(id), src)
}

type locationRequest struct {
	Title          string   `json:"title"`
	TitleAr        string   `json:"title_ar"`
	Description    string   `json:"description"`
	LocationTypeID *int     `json:"location_type_id"`
	AdminLevelID   *int     `json:"admin_level_id"`
	Lat            *float64 `json:"lat"`
	Lng            *float64 `json:"lng"`
	PostalCode     string   `json:"postal_code"`
	CountryID      *int     `json:"country_id"`
	ParentID       *int     `json:"parent_id"`
	Tags           []string `json:"tags"`
}

func (req *locationRequest) location(id int) *models.Location {
	return &models.Location{
		ID: id, Title: req.Title, TitleAr: req.TitleAr, Description: req.Description,
		LocationTypeID: req.LocationTypeID, AdminLevelID: req.AdminLevelID,
		Lat: req.Lat, Lng: req.Lng, PostalCode: strings.TrimSpace(req.PostalCode),
		CountryID: req.CountryID, ParentID: req.ParentID, Tags: models.NormalizeTags(req.Tags),
	}
}

func (h *Handler) handleSaveLocation(w http.ResponseWriter, r *http.Request) {
	id, err := optionalID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req locationRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	l := req.location(id)
	if err := h.Taxonomy.SaveLocation(r.Context(), l); err != nil {
		h.fail(w, r, "failed to save location", err)
		return
	}
	httputil.WriteJSON(w, created(id), l.Dict())
}

func (h *Handler) handleGetLocation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	l, err := h.Taxonomy.GetLocation(r.Context(), id)
	if err != nil {
		h.fail(w, r, "failed to load location", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, l.Dict())
}

func (h *Handler) handleSubtree(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	ids, err := h.Taxonomy.Subtree(r.Context(), id)
	if err != nil {
		h.fail(w, r, "failed to load subtree", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"ids": ids})
}

func (h *Handler) handleRegenerateLocations(w http.ResponseWriter, r *http.Request) {
	if !access.Allowed(r.Context(), access.PermManageTaxonomy) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "caller may not manage locations"))
		return
	}
	n, err := h.Taxonomy.RegenerateAllFullLocations(r.Context())
	if err != nil {
		h.fail(w, r, "failed to regenerate locations", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int{"changed": n})
}

func (h *Handler) handleAdminLevels(w http.ResponseWriter, r *http.Request) {
	levels, err := h.Taxonomy.AdminLevels(r.Context())
	if err != nil {
		h.fail(w, r, "failed to list admin levels", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": levels})
}

func (h *Handler) handleSaveAdminLevel(w http.ResponseWriter, r *http.Request) {
	var lvl models.AdminLevel
	if err := httputil.DecodeJSON(r, &lvl); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.Taxonomy.SaveAdminLevel(r.Context(), &lvl); err != nil {
		h.fail(w, r, "failed to save admin level", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, lvl)
}

func (h *Handler) handleListVocab(w http.ResponseWriter, r *http.Request) {
	items, err := h.Taxonomy.ListVocab(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.fail(w, r, "failed to list vocabulary", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) handleSaveVocab(w http.ResponseWriter, r *http.Request) {
	id, err := optionalID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var item models.VocabItem
	if err := httputil.DecodeJSON(r, &item); err != nil {
		httputil.WriteError(w, err)
		return
	}
	item.ID = id
	if err := h.Taxonomy.SaveVocab(r.Context(), chi.URLParam(r, "name"), &item); err != nil {
		h.fail(w, r, "failed to save vocabulary item", err)
		return
	}
	httputil.WriteJSON(w, created(id), item)
}

func (h *Handler) handleDeleteVocab(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.Taxonomy.DeleteVocab(r.Context(), chi.URLParam(r, "name"), id); err != nil {
		h.fail(w, r, "failed to delete vocabulary item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListRelationInfo(w http.ResponseWriter, r *http.Request) {
	items, err := h.RelationInfo.ListInfo(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.fail(w, r, "failed to list relation info", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) handleSaveRelationInfo(w http.ResponseWriter, r *http.Request) {
	id, err := optionalID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var info models.RelationInfo
	if err := httputil.DecodeJSON(r, &info); err != nil {
		httputil.WriteError(w, err)
		return
	}
	info.ID = id
	if err := h.RelationInfo.SaveInfo(r.Context(), chi.URLParam(r, "name"), &info); err != nil {
		h.fail(w, r, "failed to save relation info", err)
		return
	}
	httputil.WriteJSON(w, created(id), info)
}
