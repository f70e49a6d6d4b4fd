package access

import (
	"context"
	"fmt"

	"bayanat/internal/entity/models"
)

// maskedUserFields are the snapshot keys whose user names are hidden without view_usernames.
var maskedUserFields = []string{"assigned_to", "first_peer_reviewer", "second_peer_reviewer"}

// ProjectHistory rewrites one snapshot for the caller bound to ctx. Without
// view_full_history only comments and status survive; without view_usernames (or
// admin) user names are replaced by user-<id>. Trusted contexts see everything.
func ProjectHistory(ctx context.Context, data models.Dict) models.Dict {
	c, ok := FromContext(ctx)
	if !ok {
		return data
	}
	if !c.Has(PermViewFullHistory) {
		return models.Dict{"comments": data["comments"], "status": data["status"]}
	}
	if c.Has(PermViewUsernames) {
		return data
	}
	out := make(models.Dict, len(data))
	for k, v := range data {
		out[k] = v
	}
	for _, key := range maskedUserFields {
		user, ok := out[key].(map[string]any)
		if !ok {
			continue
		}
		masked := make(map[string]any, len(user))
		for k, v := range user {
			masked[k] = v
		}
		label := fmt.Sprintf("user-%v", user["id"])
		masked["name"] = label
		masked["username"] = label
		out[key] = masked
	}
	return out
}

// MaskUser hides a history row author's identity from callers without view_usernames.
func MaskUser(ctx context.Context, u *models.UserRef) *models.UserRef {
	if u == nil {
		return nil
	}
	c, ok := FromContext(ctx)
	if !ok || c.Has(PermViewUsernames) {
		return u
	}
	label := fmt.Sprintf("user-%d", u.ID)
	return &models.UserRef{ID: u.ID, Username: label, Name: label}
}
