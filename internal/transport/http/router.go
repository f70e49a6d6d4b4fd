// Package httptransport exposes the core over a thin JSON API. Handlers decode, call a
// service and encode; access decisions and validation live in the services.
package httptransport

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bayanat/internal/access"
	"bayanat/internal/dynamicfield"
	"bayanat/internal/entity/models"
	"bayanat/internal/entity/serializer"
	"bayanat/internal/entity/service"
	"bayanat/internal/graphcache"
	"bayanat/internal/importer"
	"bayanat/internal/platform/metrics"
	"bayanat/internal/platform/middleware"
	"bayanat/internal/ratelimit"
	"bayanat/internal/relation"
	"bayanat/internal/search"
	"bayanat/internal/taxonomy"
	"bayanat/internal/user"
	dErrors "bayanat/pkg/domain-errors"
	"bayanat/pkg/platform/httputil"
	"bayanat/pkg/requestcontext"
)

//go:generate mockgen -destination=mocks/mocks.go -package=mocks bayanat/internal/transport/http Entities,Searcher,Graphs

// Entities is the entity surface used by the API.
type Entities interface {
	Get(ctx context.Context, class models.Class, id int, opts serializer.Options) (models.Dict, error)
	Ingest(ctx context.Context, class models.Class, id int, payload []byte, opts ...service.UpsertOption) (int, error)
	Review(ctx context.Context, class models.Class, id int, req models.ReviewRequest) error
	Assign(ctx context.Context, class models.Class, id int, req models.AssignRequest) error
	Delete(ctx context.Context, class models.Class, id int) error
	History(ctx context.Context, class models.Class, id int) ([]models.Dict, error)
	RelateBulletin(ctx context.Context, from relation.Ref, id int, attrs relation.Attrs, opts ...service.UpsertOption) (relation.Change, error)
	RelateActor(ctx context.Context, from relation.Ref, id int, attrs relation.Attrs, opts ...service.UpsertOption) (relation.Change, error)
	RelateIncident(ctx context.Context, from relation.Ref, id int, attrs relation.Attrs, opts ...service.UpsertOption) (relation.Change, error)
	Unrelate(ctx context.Context, from, to relation.Ref, opts ...service.UpsertOption) (relation.Change, error)
}

type Searcher interface {
	Search(ctx context.Context, class models.Class, f search.Filter) ([]int, error)
}

type Taxonomy interface {
	SaveLabel(ctx context.Context, l *models.Label) error
	SaveSource(ctx context.Context, src *models.Source) error
	SaveLocation(ctx context.Context, l *models.Location) error
	GetLocation(ctx context.Context, id int) (*models.Location, error)
	Subtree(ctx context.Context, locationID int) ([]int, error)
	Children(ctx context.Context, tree taxonomy.Tree, parent *int) ([]taxonomy.Node, error)
	RegenerateAllFullLocations(ctx context.Context) (int, error)
	AdminLevels(ctx context.Context) ([]models.AdminLevel, error)
	SaveAdminLevel(ctx context.Context, lvl *models.AdminLevel) error
	ListVocab(ctx context.Context, name string) ([]models.VocabItem, error)
	SaveVocab(ctx context.Context, name string, item *models.VocabItem) error
	DeleteVocab(ctx context.Context, name string, id int) error
}

type RelationInfo interface {
	ListInfo(ctx context.Context, name string) ([]models.RelationInfo, error)
	SaveInfo(ctx context.Context, name string, info *models.RelationInfo) error
}

type Fields interface {
	Create(ctx context.Context, f *models.DynamicField) error
	Update(ctx context.Context, id int, patch *models.DynamicField) (*models.DynamicField, error)
	Activate(ctx context.Context, id int) error
	Deactivate(ctx context.Context, id int) error
	Reorder(ctx context.Context, class models.Class, ids []int) error
	List(ctx context.Context, class models.Class) ([]models.DynamicField, error)
	FormHistory(ctx context.Context, class models.Class) ([]models.DynamicFormSnapshot, error)
	Inspect(ctx context.Context, id int) (*dynamicfield.Inspection, error)
}

type Importer interface {
	ImportLabels(ctx context.Context, fileName string, r io.Reader) (*importer.Result, error)
	ImportSources(ctx context.Context, fileName string, r io.Reader) (*importer.Result, error)
	ImportLocations(ctx context.Context, fileName string, r io.Reader) (*importer.Result, error)
	ImportActors(ctx context.Context, fileName string, r io.Reader, m importer.Mapping) (*importer.Result, error)
	Log(ctx context.Context, id int) (*importer.Log, error)
}

type Graphs interface {
	Graph(ctx context.Context, userID int, q graphcache.Query, b *graphcache.Builder) (json.RawMessage, bool, error)
	Invalidate(ctx context.Context, userID int) error
}

type Users interface {
	Save(ctx context.Context, req user.SaveRequest) (*user.User, error)
}

// HealthCheck reports whether a backing service is reachable.
type HealthCheck func(ctx context.Context) error

// Deps are the services the API fronts. Nil services leave their routes unmounted.
type Deps struct {
	Entities     Entities
	Search       Searcher
	Taxonomy     Taxonomy
	RelationInfo RelationInfo
	Fields       Fields
	Importer     Importer
	Graphs       Graphs
	GraphBuilder *graphcache.Builder
	Users        Users

	JWT     middleware.JWTValidator
	Callers middleware.CallerLoader
	Limiter *ratelimit.Limiter
	Health  map[string]HealthCheck
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Handler holds the dependencies of every route.
type Handler struct {
	Deps
	logger *slog.Logger
}

func NewHandler(deps Deps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Deps: deps, logger: logger}
}

// NewRouter wires all public endpoints.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(h.logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Trace(routePattern))
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(h.logger))
	r.Use(middleware.RequestTime)
	r.Use(middleware.Latency(h.Metrics, routePattern))

	r.Get("/healthz", h.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(chimw.Timeout(2 * time.Minute))
		r.Use(middleware.RequireAuth(h.JWT, h.Callers, h.logger))
		h.Register(r)
	})
	return r
}

// Register mounts the API routes on r. Authentication is the caller's concern.
func (h *Handler) Register(r chi.Router) {
	if h.Entities != nil {
		h.registerEntities(r)
	}
	if h.Taxonomy != nil {
		h.registerTaxonomy(r)
	}
	if h.Fields != nil {
		h.registerFields(r)
	}
	if h.Importer != nil {
		h.registerImports(r)
	}
	if h.Users != nil {
		h.registerUsers(r)
	}
	if h.Graphs != nil && h.GraphBuilder != nil {
		r.Get("/graph/{class}/{id}", h.handleGraph)
		r.Delete("/graph", h.handleGraphReset)
	}
}

// limit throttles a route group by class; without a limiter it is a no-op.
func (h *Handler) limit(class ratelimit.Class) func(http.Handler) http.Handler {
	if h.Limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return h.Limiter.Middleware(class)
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.Health))
	for name, check := range h.Health {
		if err := check(ctx); err != nil {
			h.logger.WarnContext(ctx, "health check failed", "check", name, "error", err)
			checks[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "up"
	}
	httputil.WriteJSON(w, status, map[string]any{"status": http.StatusText(status), "checks": checks})
}

// fail logs err at a level matching its code and writes the error response.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	ctx := r.Context()
	attrs := []any{"error", err, "path", r.URL.Path, "request_id", requestID(r)}
	if c, ok := access.FromContext(ctx); ok {
		attrs = append(attrs, "user_id", c.UserID)
	}
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.WarnContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}

func pathClass(r *http.Request) (models.Class, error) {
	c := models.Class(chi.URLParam(r, "class"))
	if !c.Primary() {
		return "", dErrors.Newf(dErrors.CodeNotFound, "unknown entity class %q", c)
	}
	return c, nil
}

func pathID(r *http.Request, name string) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || id <= 0 {
		return 0, dErrors.Newf(dErrors.CodeBadRequest, "invalid %s", name)
	}
	return id, nil
}

// pathEntity reads the {class}/{id} pair.
func pathEntity(r *http.Request) (models.Class, int, error) {
	class, err := pathClass(r)
	if err != nil {
		return "", 0, err
	}
	id, err := pathID(r, "id")
	if err != nil {
		return "", 0, err
	}
	return class, id, nil
}

func requestID(r *http.Request) string {
	return requestcontext.RequestID(r.Context())
}

func queryBool(r *http.Request, name string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return b
}

func queryID(r *http.Request, name string) (int, error) {
	id, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || id <= 0 {
		return 0, dErrors.Newf(dErrors.CodeBadRequest, "invalid %s", name)
	}
	return id, nil
}
