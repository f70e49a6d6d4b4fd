package revision

import (
	"context"

	"bayanat/internal/entity/models"
	"bayanat/internal/relation"
)

// Cascade collects the counterparts whose relation sets a mutation changed and records
// one snapshot per counterpart, however many of its edges changed.
type Cascade struct {
	recorder *Recorder
	origin   relation.Ref
	seen     map[relation.Ref]struct{}
	order    []relation.Ref
}

// NewCascade starts collecting counterparts of origin. The origin itself is never
// cascaded; it is snapshotted directly by the caller.
func (r *Recorder) NewCascade(origin relation.Ref) *Cascade {
	return &Cascade{
		recorder: r,
		origin:   origin,
		seen:     make(map[relation.Ref]struct{}),
	}
}

// Add queues the counterparts of changed edges.
func (c *Cascade) Add(changes ...relation.Change) {
	for _, ch := range changes {
		if ch.Changed() {
			c.AddRef(ch.Counterpart)
		}
	}
}

// AddRef queues one counterpart.
func (c *Cascade) AddRef(ref relation.Ref) {
	if ref == c.origin || !ref.Class.Primary() {
		return
	}
	if _, ok := c.seen[ref]; ok {
		return
	}
	c.seen[ref] = struct{}{}
	c.order = append(c.order, ref)
}

// Pending lists the queued counterparts in insertion order.
func (c *Cascade) Pending() []relation.Ref {
	return append([]relation.Ref(nil), c.order...)
}

// Flush records one snapshot per queued counterpart and empties the queue.
func (c *Cascade) Flush(ctx context.Context) error {
	for len(c.order) > 0 {
		ref := c.order[0]
		if _, err := c.recorder.Snapshot(ctx, ref.Class, ref.ID, CauseCascade); err != nil {
			return err
		}
		c.order = c.order[1:]
	}
	return nil
}

// Refs converts ids of one class into references.
func Refs(class models.Class, ids ...int) []relation.Ref {
	out := make([]relation.Ref, len(ids))
	for i, id := range ids {
		out[i] = relation.Ref{Class: class, ID: id}
	}
	return out
}
