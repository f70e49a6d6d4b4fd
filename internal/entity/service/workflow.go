package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"bayanat/internal/access"
	"bayanat/internal/entity/models"
	"bayanat/internal/relation"
	"bayanat/internal/revision"
	dErrors "bayanat/pkg/domain-errors"
	"bayanat/pkg/requestcontext"
)

// Review writes review, review_action and status together and snapshots the entity.
func (s *Service) Review(ctx context.Context, class models.Class, id int, req models.ReviewRequest) error {
	ctx, span := tracer.Start(ctx, "entity.Review")
	defer span.End()
	if err := models.Validate(req); err != nil {
		return err
	}
	ctx = requestcontext.EnsureTime(ctx)
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.authorize(ctx, class, id); err != nil {
			return err
		}
		if err := s.store.UpdateReview(ctx, class, id, req); err != nil {
			return translate(err, class, id)
		}
		_, err := s.recorder.Snapshot(ctx, class, id, revision.CauseDirect)
		return err
	})
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "entity reviewed",
		"class", class, "id", id, "status", req.Status, "user_id", access.ActingUserID(ctx))
	return nil
}

// Assign changes the assignee and peer reviewers. Assigned users must exist.
func (s *Service) Assign(ctx context.Context, class models.Class, id int, req models.AssignRequest) error {
	ctx, span := tracer.Start(ctx, "entity.Assign")
	defer span.End()
	ctx = requestcontext.EnsureTime(ctx)
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		scope, err := s.store.Scope(ctx, class, id)
		if err != nil {
			return translate(err, class, id)
		}
		if err := s.policy.CanAssign(ctx, scope, req.Targets()); err != nil {
			return dErrors.Wrap(err, dErrors.CodeForbidden, fmt.Sprintf("cannot assign %s %d", class, id))
		}
		r := &models.Record{
			ID:                   id,
			AssignedToID:         scope.AssignedToID,
			FirstPeerReviewerID:  scope.FirstPeerReviewerID,
			SecondPeerReviewerID: scope.SecondPeerReviewerID,
		}
		req.ApplyTo(r)
		if err := s.store.UpdateAssignment(ctx, class, r); err != nil {
			return translate(err, class, 0)
		}
		_, err = s.recorder.Snapshot(ctx, class, id, revision.CauseDirect)
		return err
	})
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "entity assigned",
		"class", class, "id", id, "targets", req.Targets(), "user_id", access.ActingUserID(ctx))
	return nil
}

// Delete soft-deletes the entity. Its edges stay in place.
func (s *Service) Delete(ctx context.Context, class models.Class, id int) error {
	ctx, span := tracer.Start(ctx, "entity.Delete")
	defer span.End()
	ctx = requestcontext.EnsureTime(ctx)
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.authorize(ctx, class, id); err != nil {
			return err
		}
		if err := s.store.SoftDelete(ctx, class, id); err != nil {
			return translate(err, class, id)
		}
		_, err := s.recorder.Snapshot(ctx, class, id, revision.CauseDirect)
		return err
	})
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "entity deleted", "class", class, "id", id, "user_id", access.ActingUserID(ctx))
	return nil
}

// RelateBulletin upserts the edge from → bulletin id.
func (s *Service) RelateBulletin(ctx context.Context, from relation.Ref, id int, attrs relation.Attrs, opts ...UpsertOption) (relation.Change, error) {
	return s.relate(ctx, from, relation.Ref{Class: models.ClassBulletin, ID: id}, attrs, opts)
}

// RelateActor upserts the edge from → actor id.
func (s *Service) RelateActor(ctx context.Context, from relation.Ref, id int, attrs relation.Attrs, opts ...UpsertOption) (relation.Change, error) {
	return s.relate(ctx, from, relation.Ref{Class: models.ClassActor, ID: id}, attrs, opts)
}

// RelateIncident upserts the edge from → incident id.
func (s *Service) RelateIncident(ctx context.Context, from relation.Ref, id int, attrs relation.Attrs, opts ...UpsertOption) (relation.Change, error) {
	return s.relate(ctx, from, relation.Ref{Class: models.ClassIncident, ID: id}, attrs, opts)
}

// Unrelate removes the edge between from and to.
func (s *Service) Unrelate(ctx context.Context, from, to relation.Ref, opts ...UpsertOption) (relation.Change, error) {
	return s.mutateEdge(ctx, "entity.Unrelate", from, to, opts, func(ctx context.Context) (relation.Change, error) {
		return s.relations.Unrelate(ctx, from, to)
	})
}

func (s *Service) relate(ctx context.Context, from, to relation.Ref, attrs relation.Attrs, opts []UpsertOption) (relation.Change, error) {
	return s.mutateEdge(ctx, "entity.Relate", from, to, opts, func(ctx context.Context) (relation.Change, error) {
		return s.relations.Relate(ctx, from, to, attrs)
	})
}

// mutateEdge applies one edge change and, when it changed anything, snapshots the
// acting entity and its counterpart in the same transaction.
func (s *Service) mutateEdge(ctx context.Context, name string, from, to relation.Ref, opts []UpsertOption,
	apply func(ctx context.Context) (relation.Change, error)) (relation.Change, error) {
	ctx, span := tracer.Start(ctx, name)
	defer span.End()
	span.SetAttributes(attribute.String("relation.from", from.String()), attribute.String("relation.to", to.String()))

	cfg := upsertConfig{cascade: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	ctx = requestcontext.EnsureTime(ctx)

	var change relation.Change
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.authorize(ctx, from.Class, from.ID); err != nil {
			return err
		}
		c, err := apply(ctx)
		if err != nil {
			return err
		}
		change = c
		if !c.Changed() {
			return nil
		}
		if _, err := s.recorder.Snapshot(ctx, from.Class, from.ID, revision.CauseDirect); err != nil {
			return err
		}
		if !cfg.cascade {
			return nil
		}
		cascade := s.recorder.NewCascade(from)
		cascade.Add(c)
		return cascade.Flush(ctx)
	})
	if err != nil {
		return relation.Change{}, err
	}
	return change, nil
}
