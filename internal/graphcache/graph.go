package graphcache

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"bayanat/internal/entity/models"
	"bayanat/internal/relation"
	dErrors "bayanat/pkg/domain-errors"
)

// MaxDepth bounds how many relation hops a graph query may follow.
const MaxDepth = 3

// Query asks for the relation graph around one entity.
type Query struct {
	Class models.Class `json:"class"`
	ID    int          `json:"id"`
	Depth int          `json:"depth"`
}

// Validate checks the root class and clamps depth into 1..MaxDepth.
func (q *Query) Validate() error {
	if !q.Class.Primary() {
		return dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unknown entity class %q", q.Class))
	}
	if q.ID <= 0 {
		return dErrors.New(dErrors.CodeValidation, "graph root id is required")
	}
	q.Depth = min(max(q.Depth, 1), MaxDepth)
	return nil
}

// Node is one entity in a graph. Restricted nodes are shown but not expanded.
type Node struct {
	Class      models.Class `json:"class"`
	ID         int          `json:"id"`
	Restricted bool         `json:"restricted,omitempty"`
}

// Link is one relation edge between two nodes.
type Link struct {
	Kind        string `json:"kind"`
	From        string `json:"from"`
	To          string `json:"to"`
	RelatedAs   any    `json:"related_as"`
	Probability *int   `json:"probability"`
}

// Graph is the rendered result.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Links []Link `json:"links"`
}

// Relations lists an entity's edges toward one class.
type Relations interface {
	ListFor(ctx context.Context, self relation.Ref, other models.Class) (relation.Kind, []models.Edge, error)
}

// Readability tells whether the caller may read an entity.
type Readability interface {
	Readable(ctx context.Context, class models.Class, id int) (bool, error)
}

// Builder walks relations breadth-first from a root entity.
type Builder struct {
	relations Relations
	access    Readability
}

func NewBuilder(relations Relations, access Readability) *Builder {
	return &Builder{relations: relations, access: access}
}

// Build renders the graph for q. The root must be readable.
func (b *Builder) Build(ctx context.Context, q Query) (*Graph, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	root := relation.Ref{Class: q.Class, ID: q.ID}
	ok, err := b.access.Readable(ctx, root.Class, root.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, dErrors.New(dErrors.CodeForbidden, fmt.Sprintf("caller may not read %s", root))
	}

	g := &Graph{Nodes: []Node{{Class: root.Class, ID: root.ID}}, Links: []Link{}}
	seen := map[relation.Ref]bool{root: true}
	linked := make(map[string]bool)
	frontier := []relation.Ref{root}
	for depth := 0; depth < q.Depth && len(frontier) > 0; depth++ {
		var next []relation.Ref
		for _, self := range frontier {
			for _, other := range models.PrimaryClasses {
				kind, edges, err := b.relations.ListFor(ctx, self, other)
				if err != nil {
					return nil, err
				}
				for n := range edges {
					e := &edges[n]
					peer := kind.Counterpart(e, self)
					key := linkKey(kind.Name, self, peer)
					if !linked[key] {
						linked[key] = true
						g.Links = append(g.Links, Link{
							Kind: kind.Name, From: self.String(), To: peer.String(),
							RelatedAs: kind.RelatedAsValue(e.RelatedAs), Probability: e.Probability,
						})
					}
					if seen[peer] {
						continue
					}
					seen[peer] = true
					readable, err := b.access.Readable(ctx, peer.Class, peer.ID)
					if err != nil {
						return nil, err
					}
					g.Nodes = append(g.Nodes, Node{Class: peer.Class, ID: peer.ID, Restricted: !readable})
					if readable {
						next = append(next, peer)
					}
				}
			}
		}
		frontier = next
	}
	return g, nil
}

// linkKey identifies an edge regardless of the side it was reached from.
func linkKey(kind string, a, b relation.Ref) string {
	ends := []string{a.String(), b.String()}
	slices.Sort(ends)
	return kind + "|" + ends[0] + "|" + ends[1]
}

// Graph returns the caller's graph for q through the cache.
func (s *Service) Graph(ctx context.Context, userID int, q Query, b *Builder) (json.RawMessage, bool, error) {
	if err := q.Validate(); err != nil {
		return nil, false, err
	}
	return s.GetOrBuild(ctx, userID, q, func(ctx context.Context) (json.RawMessage, error) {
		g, err := b.Build(ctx, q)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(g)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode graph")
		}
		return raw, nil
	})
}
