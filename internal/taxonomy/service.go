// Package taxonomy maintains the label, source and location trees and the flat
// dictionaries entities reference.
package taxonomy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/facette/natsort"

	"bayanat/internal/access"
	"bayanat/internal/entity/models"
	"bayanat/internal/revision"
	dErrors "bayanat/pkg/domain-errors"
	"bayanat/pkg/platform/sentinel"
)

// Store is the persistence the taxonomy service needs.
type Store interface {
	Descends(ctx context.Context, tree Tree, id, candidate int) (bool, error)
	Children(ctx context.Context, tree Tree, parent *int) ([]Node, error)

	GetLabel(ctx context.Context, id int, forUpdate bool) (*models.Label, error)
	LabelChildren(ctx context.Context, id int) ([]models.Label, error)
	InsertLabel(ctx context.Context, l *models.Label) error
	UpdateLabel(ctx context.Context, l *models.Label) error

	GetSource(ctx context.Context, id int) (*models.Source, error)
	InsertSource(ctx context.Context, src *models.Source) error
	UpdateSource(ctx context.Context, src *models.Source) error

	GetLocation(ctx context.Context, id int) (*models.Location, error)
	InsertLocation(ctx context.Context, l *models.Location) error
	UpdateLocation(ctx context.Context, l *models.Location) error
	RefreshIDTrees(ctx context.Context, root int) ([]int, error)
	RefreshAllIDTrees(ctx context.Context) (int, error)
	RefreshFullLocations(ctx context.Context, ids []int, includePostalCode bool) (int, error)
	Subtree(ctx context.Context, id int) ([]int, error)

	AdminLevels(ctx context.Context) ([]models.AdminLevel, error)
	SaveAdminLevel(ctx context.Context, lvl *models.AdminLevel) error

	ListVocab(ctx context.Context, table string) ([]models.VocabItem, error)
	SaveVocab(ctx context.Context, table string, item *models.VocabItem) error
	DeleteVocab(ctx context.Context, table string, id int) error
}

// TxRunner runs fn inside one database transaction.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Snapshotter appends history rows.
type Snapshotter interface {
	Snapshot(ctx context.Context, class models.Class, id int, cause revision.Cause) (*models.HistoryRow, error)
}

// Service validates and writes taxonomy trees.
type Service struct {
	store             Store
	tx                TxRunner
	history           Snapshotter
	includePostalCode bool
	logger            *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithPostalCodes appends postal codes to full_location.
func WithPostalCodes(include bool) Option {
	return func(s *Service) { s.includePostalCode = include }
}

// WithHistory records location snapshots.
func WithHistory(h Snapshotter) Option {
	return func(s *Service) { s.history = h }
}

func NewService(store Store, tx TxRunner, opts ...Option) *Service {
	s := &Service{store: store, tx: tx, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func requireManage(ctx context.Context) error {
	if !access.Allowed(ctx, access.PermManageTaxonomy) {
		return dErrors.New(dErrors.CodeForbidden, "caller may not change taxonomies")
	}
	return nil
}

// SaveLabel creates (ID == 0) or updates a label. The parent may not be the label or
// one of its descendants. Flags are clamped to the parent's, and a changed label
// re-clamps its whole subtree.
func (s *Service) SaveLabel(ctx context.Context, l *models.Label) error {
	if err := requireManage(ctx); err != nil {
		return err
	}
	l.Title = strings.TrimSpace(l.Title)
	if l.Title == "" {
		return dErrors.New(dErrors.CodeValidation, "label title is required")
	}
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if l.ParentID != nil {
			if err := s.checkParent(ctx, TreeLabel, l.ID, *l.ParentID); err != nil {
				return err
			}
			parent, err := s.store.GetLabel(ctx, *l.ParentID, false)
			if err != nil {
				return translate(err, "parent label")
			}
			l.ClampTo(parent)
		}
		if l.ID == 0 {
			if err := s.store.InsertLabel(ctx, l); err != nil {
				return translate(err, "label")
			}
			return nil
		}
		if _, err := s.store.GetLabel(ctx, l.ID, true); err != nil {
			return translate(err, "label")
		}
		if err := s.store.UpdateLabel(ctx, l); err != nil {
			return translate(err, "label")
		}
		return s.clampSubtree(ctx, l)
	})
}

func (s *Service) clampSubtree(ctx context.Context, root *models.Label) error {
	queue := []*models.Label{root}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]
		children, err := s.store.LabelChildren(ctx, parent.ID)
		if err != nil {
			return translate(err, "label")
		}
		for i := range children {
			child := &children[i]
			before := *child
			child.ClampTo(parent)
			if *child != before {
				if err := s.store.UpdateLabel(ctx, child); err != nil {
					return translate(err, "label")
				}
			}
			queue = append(queue, child)
		}
	}
	return nil
}

// SaveSource creates (ID == 0) or updates a source.
func (s *Service) SaveSource(ctx context.Context, src *models.Source) error {
	if err := requireManage(ctx); err != nil {
		return err
	}
	src.Title = strings.TrimSpace(src.Title)
	if src.Title == "" {
		return dErrors.New(dErrors.CodeValidation, "source title is required")
	}
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if src.ParentID != nil {
			if err := s.checkParent(ctx, TreeSource, src.ID, *src.ParentID); err != nil {
				return err
			}
			if _, err := s.store.GetSource(ctx, *src.ParentID); err != nil {
				return translate(err, "parent source")
			}
		}
		if src.ID == 0 {
			return translate(s.store.InsertSource(ctx, src), "source")
		}
		return translate(s.store.UpdateSource(ctx, src), "source")
	})
}

// SaveLocation creates (ID == 0) or updates a location, rebuilds id_tree and
// full_location for it and its descendants, and records a location snapshot.
func (s *Service) SaveLocation(ctx context.Context, l *models.Location) error {
	if err := requireManage(ctx); err != nil {
		return err
	}
	l.Title = strings.TrimSpace(l.Title)
	if l.Title == "" {
		return dErrors.New(dErrors.CodeValidation, "location title is required")
	}
	if (l.Lat == nil) != (l.Lng == nil) {
		return dErrors.New(dErrors.CodeValidation, "location needs both lat and lng")
	}
	if p := l.Point(); p != nil && !p.Valid() {
		return dErrors.New(dErrors.CodeValidation, "location coordinates out of range")
	}
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if l.ParentID != nil {
			if err := s.checkParent(ctx, TreeLocation, l.ID, *l.ParentID); err != nil {
				return err
			}
			if _, err := s.store.GetLocation(ctx, *l.ParentID); err != nil {
				return translate(err, "parent location")
			}
		}
		var err error
		if l.ID == 0 {
			err = s.store.InsertLocation(ctx, l)
		} else {
			err = s.store.UpdateLocation(ctx, l)
		}
		if err != nil {
			return translate(err, "location")
		}

		ids, err := s.store.RefreshIDTrees(ctx, l.ID)
		if err != nil {
			return translate(err, "location")
		}
		if _, err := s.store.RefreshFullLocations(ctx, ids, s.includePostalCode); err != nil {
			return translate(err, "location")
		}
		if s.history != nil {
			if _, err := s.history.Snapshot(ctx, models.ClassLocation, l.ID, revision.CauseDirect); err != nil {
				return err
			}
		}
		fresh, err := s.store.GetLocation(ctx, l.ID)
		if err != nil {
			return translate(err, "location")
		}
		*l = *fresh
		s.logger.InfoContext(ctx, "location saved",
			"id", l.ID,
			"subtree", len(ids),
			"user_id", access.ActingUserID(ctx),
		)
		return nil
	})
}

// GetLocation loads one location.
func (s *Service) GetLocation(ctx context.Context, id int) (*models.Location, error) {
	l, err := s.store.GetLocation(ctx, id)
	if err != nil {
		return nil, translate(err, "location")
	}
	return l, nil
}

// LocationSnapshot serializes a location for its history.
func (s *Service) LocationSnapshot(ctx context.Context, id int) (models.Dict, error) {
	l, err := s.GetLocation(ctx, id)
	if err != nil {
		return nil, err
	}
	return l.Dict(), nil
}

// RegenerateAllFullLocations rebuilds id_tree and full_location for every location.
// Running it twice converges: the second run changes nothing.
func (s *Service) RegenerateAllFullLocations(ctx context.Context) (int, error) {
	var changed int
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.store.RefreshAllIDTrees(ctx); err != nil {
			return translate(err, "location")
		}
		n, err := s.store.RefreshFullLocations(ctx, nil, s.includePostalCode)
		if err != nil {
			return translate(err, "location")
		}
		changed = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.InfoContext(ctx, "full locations regenerated", "changed", changed)
	return changed, nil
}

// Subtree returns the location and all its descendants.
func (s *Service) Subtree(ctx context.Context, locationID int) ([]int, error) {
	ids, err := s.store.Subtree(ctx, locationID)
	if err != nil {
		return nil, translate(err, "location")
	}
	return ids, nil
}

// Children lists a node's children in natural title order.
func (s *Service) Children(ctx context.Context, tree Tree, parent *int) ([]Node, error) {
	nodes, err := s.store.Children(ctx, tree, parent)
	if err != nil {
		return nil, translate(err, string(tree))
	}
	slices.SortStableFunc(nodes, func(a, b Node) int {
		switch {
		case natsort.Compare(a.Title, b.Title):
			return -1
		case natsort.Compare(b.Title, a.Title):
			return 1
		}
		return a.ID - b.ID
	})
	return nodes, nil
}

// AdminLevels lists admin levels in display order.
func (s *Service) AdminLevels(ctx context.Context) ([]models.AdminLevel, error) {
	levels, err := s.store.AdminLevels(ctx)
	if err != nil {
		return nil, translate(err, "admin level")
	}
	return levels, nil
}

// SaveAdminLevel writes an admin level and regenerates every full_location, since
// display order drives the breadcrumb.
func (s *Service) SaveAdminLevel(ctx context.Context, lvl *models.AdminLevel) error {
	if err := requireManage(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(lvl.Title) == "" {
		return dErrors.New(dErrors.CodeValidation, "admin level title is required")
	}
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.SaveAdminLevel(ctx, lvl); err != nil {
			return translate(err, "admin level")
		}
		_, err := s.RegenerateAllFullLocations(ctx)
		return err
	})
}

// ListVocab lists a dictionary.
func (s *Service) ListVocab(ctx context.Context, name string) ([]models.VocabItem, error) {
	if err := checkVocab(name); err != nil {
		return nil, err
	}
	items, err := s.store.ListVocab(ctx, name)
	if err != nil {
		return nil, translate(err, name)
	}
	return items, nil
}

// SaveVocab creates (ID == 0) or updates a dictionary row.
func (s *Service) SaveVocab(ctx context.Context, name string, item *models.VocabItem) error {
	if err := requireManage(ctx); err != nil {
		return err
	}
	if err := checkVocab(name); err != nil {
		return err
	}
	item.Title = strings.TrimSpace(item.Title)
	if err := models.Validate(item); err != nil {
		return err
	}
	return translate(s.store.SaveVocab(ctx, name, item), name)
}

// DeleteVocab removes an unreferenced dictionary row.
func (s *Service) DeleteVocab(ctx context.Context, name string, id int) error {
	if err := requireManage(ctx); err != nil {
		return err
	}
	if err := checkVocab(name); err != nil {
		return err
	}
	return translate(s.store.DeleteVocab(ctx, name, id), name)
}

func checkVocab(name string) error {
	if !slices.Contains(Vocabularies, name) {
		return dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("unknown vocabulary %q", name))
	}
	return nil
}

// checkParent rejects a parent equal to the node or inside the node's subtree.
func (s *Service) checkParent(ctx context.Context, tree Tree, id, parent int) error {
	if id == 0 {
		return nil
	}
	if parent == id {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s cannot be its own parent", tree))
	}
	cycle, err := s.store.Descends(ctx, tree, id, parent)
	if err != nil {
		return translate(err, string(tree))
	}
	if cycle {
		return dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("%s %d is a descendant of %d and cannot be its parent", tree, parent, id))
	}
	return nil
}

func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case dErrors.Coded(err):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, what+" not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, what+" with this title already exists under the same parent")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.New(dErrors.CodeValidation, what+" violates a constraint")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save "+what)
}
