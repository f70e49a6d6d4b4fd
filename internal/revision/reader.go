package revision

import (
	"context"

	"bayanat/internal/access"
	"bayanat/internal/entity/models"
	dErrors "bayanat/pkg/domain-errors"
)

// Reader lists history projected for the caller bound to the context.
type Reader struct {
	store Store
}

func NewReader(store Store) *Reader {
	return &Reader{store: store}
}

// List returns the subject's snapshots oldest first. Callers without
// view_full_history see only comments and status; callers without view_usernames see
// user-<id> in place of names. A context without a caller sees everything.
func (r *Reader) List(ctx context.Context, class models.Class, id int) ([]models.Dict, error) {
	rows, err := r.store.List(ctx, class, id)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load history")
	}
	out := make([]models.Dict, 0, len(rows))
	for _, row := range rows {
		var data models.Dict
		if err := row.Data.Decode(&data); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to decode history entry")
		}
		out = append(out, models.Dict{
			"id":         row.ID,
			"data":       access.ProjectHistory(ctx, data),
			"user":       access.MaskUser(ctx, row.User).Dict(),
			"created_at": models.FormatTimeValue(row.CreatedAt),
			"updated_at": models.FormatTimeValue(row.UpdatedAt),
		})
	}
	return out, nil
}
