package service

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"bayanat/internal/entity/models"
	"bayanat/internal/entity/store"
	"bayanat/internal/relation"
	"bayanat/pkg/platform/sentinel"
)

// memStore keeps primary entities in memory. Children are recorded as written.
type memStore struct {
	nextID    map[models.Class]int
	bulletins map[int]models.Bulletin
	actors    map[int]models.Actor
	incidents map[int]models.Incident
	sets      map[string]map[int][]int
	events    map[relation.Ref][]models.Event
	medias    map[relation.Ref][]models.Media
	profiles  map[int][]store.ProfileChange
	dynamic   map[relation.Ref]map[string]any
}

func newMemStore() *memStore {
	return &memStore{
		nextID:    map[models.Class]int{},
		bulletins: map[int]models.Bulletin{},
		actors:    map[int]models.Actor{},
		incidents: map[int]models.Incident{},
		sets:      map[string]map[int][]int{},
		events:    map[relation.Ref][]models.Event{},
		medias:    map[relation.Ref][]models.Media{},
		profiles:  map[int][]store.ProfileChange{},
		dynamic:   map[relation.Ref]map[string]any{},
	}
}

func (m *memStore) record(class models.Class, id int) (*models.Record, bool) {
	switch class {
	case models.ClassBulletin:
		if b, ok := m.bulletins[id]; ok {
			return &b.Record, true
		}
	case models.ClassActor:
		if a, ok := m.actors[id]; ok {
			return &a.Record, true
		}
	case models.ClassIncident:
		if i, ok := m.incidents[id]; ok {
			return &i.Record, true
		}
	}
	return nil, false
}

func (m *memStore) fill(class models.Class, r *models.Record) {
	r.RoleIDs = slices.Clone(m.sets[store.RolesOf(class).Join][r.ID])
	r.Dynamic = m.dynamic[relation.Ref{Class: class, ID: r.ID}]
}

func notFound(class models.Class, id int) error {
	return fmt.Errorf("%s %d: %w", class, id, sentinel.ErrNotFound)
}

func (m *memStore) LoadBulletin(_ context.Context, id int, _ store.LoadOptions) (*models.Bulletin, error) {
	b, ok := m.bulletins[id]
	if !ok {
		return nil, notFound(models.ClassBulletin, id)
	}
	m.fill(models.ClassBulletin, &b.Record)
	return &b, nil
}

func (m *memStore) LoadActor(_ context.Context, id int, _ store.LoadOptions) (*models.Actor, error) {
	a, ok := m.actors[id]
	if !ok {
		return nil, notFound(models.ClassActor, id)
	}
	m.fill(models.ClassActor, &a.Record)
	return &a, nil
}

func (m *memStore) LoadIncident(_ context.Context, id int, _ store.LoadOptions) (*models.Incident, error) {
	i, ok := m.incidents[id]
	if !ok {
		return nil, notFound(models.ClassIncident, id)
	}
	m.fill(models.ClassIncident, &i.Record)
	return &i, nil
}

func (m *memStore) newID(class models.Class) int {
	m.nextID[class]++
	return m.nextID[class]
}

func (m *memStore) InsertBulletin(_ context.Context, b *models.Bulletin) error {
	b.ID = m.newID(models.ClassBulletin)
	m.bulletins[b.ID] = *b
	return nil
}

func (m *memStore) UpdateBulletin(_ context.Context, b *models.Bulletin) error {
	m.bulletins[b.ID] = *b
	return nil
}

func (m *memStore) InsertActor(_ context.Context, a *models.Actor) error {
	a.ID = m.newID(models.ClassActor)
	m.actors[a.ID] = *a
	return nil
}

func (m *memStore) UpdateActor(_ context.Context, a *models.Actor) error {
	m.actors[a.ID] = *a
	return nil
}

func (m *memStore) InsertIncident(_ context.Context, i *models.Incident) error {
	i.ID = m.newID(models.ClassIncident)
	m.incidents[i.ID] = *i
	return nil
}

func (m *memStore) UpdateIncident(_ context.Context, i *models.Incident) error {
	m.incidents[i.ID] = *i
	return nil
}

func (m *memStore) ReplaceSet(_ context.Context, c store.Collection, owner int, ids []int) error {
	if m.sets[c.Join] == nil {
		m.sets[c.Join] = map[int][]int{}
	}
	m.sets[c.Join][owner] = ids
	return nil
}

func (m *memStore) SyncEvents(_ context.Context, class models.Class, owner int, events []models.Event) error {
	m.events[relation.Ref{Class: class, ID: owner}] = events
	return nil
}

func (m *memStore) SyncMedias(_ context.Context, class models.Class, owner int, medias []models.Media, _ *int) error {
	m.medias[relation.Ref{Class: class, ID: owner}] = medias
	return nil
}

func (m *memStore) SyncGeoLocations(context.Context, int, []models.GeoLocation) error { return nil }

func (m *memStore) SyncProfiles(_ context.Context, actorID int, profiles []store.ProfileChange) error {
	m.profiles[actorID] = profiles
	return nil
}

func (m *memStore) WriteDynamic(_ context.Context, class models.Class, id int, values map[string]any) error {
	m.dynamic[relation.Ref{Class: class, ID: id}] = values
	return nil
}

func (m *memStore) Scope(_ context.Context, class models.Class, id int) (models.Scope, error) {
	r, ok := m.record(class, id)
	if !ok {
		return models.Scope{}, notFound(class, id)
	}
	m.fill(class, r)
	return r.Scope(), nil
}

func (m *memStore) Summaries(_ context.Context, class models.Class, ids []int) (map[int]*models.Summary, error) {
	out := map[int]*models.Summary{}
	for _, id := range ids {
		r, ok := m.record(class, id)
		if !ok {
			continue
		}
		m.fill(class, r)
		sum := &models.Summary{
			ID: id, Class: class, Status: r.Status, Deleted: r.Deleted, RoleIDs: models.Codes(r.RoleIDs),
			AssignedToID: r.AssignedToID, FirstPeerReviewerID: r.FirstPeerReviewerID,
			SecondPeerReviewerID: r.SecondPeerReviewerID,
		}
		switch class {
		case models.ClassActor:
			sum.Title = m.actors[id].Name
		case models.ClassBulletin:
			sum.Title = m.bulletins[id].Title
		case models.ClassIncident:
			sum.Title = m.incidents[id].Title
		}
		out[id] = sum
	}
	return out, nil
}

func (m *memStore) mutate(class models.Class, id int, fn func(r *models.Record)) error {
	switch class {
	case models.ClassBulletin:
		b, ok := m.bulletins[id]
		if !ok {
			return notFound(class, id)
		}
		fn(&b.Record)
		m.bulletins[id] = b
	case models.ClassActor:
		a, ok := m.actors[id]
		if !ok {
			return notFound(class, id)
		}
		fn(&a.Record)
		m.actors[id] = a
	case models.ClassIncident:
		i, ok := m.incidents[id]
		if !ok {
			return notFound(class, id)
		}
		fn(&i.Record)
		m.incidents[id] = i
	}
	return nil
}

func (m *memStore) SoftDelete(_ context.Context, class models.Class, id int) error {
	return m.mutate(class, id, func(r *models.Record) { r.Deleted = true })
}

func (m *memStore) UpdateReview(_ context.Context, class models.Class, id int, req models.ReviewRequest) error {
	return m.mutate(class, id, func(r *models.Record) {
		r.Review, r.ReviewAction, r.Status = req.Review, req.ReviewAction, req.Status
	})
}

func (m *memStore) UpdateAssignment(_ context.Context, class models.Class, rec *models.Record) error {
	return m.mutate(class, rec.ID, func(r *models.Record) {
		r.AssignedToID, r.FirstPeerReviewerID, r.SecondPeerReviewerID =
			rec.AssignedToID, rec.FirstPeerReviewerID, rec.SecondPeerReviewerID
	})
}

// memEdges implements relation.Store over memStore's entities.
type memEdges struct {
	entities *memStore
	rows     map[string]map[[2]int]models.Edge
}

func newMemEdges(entities *memStore) *memEdges {
	return &memEdges{entities: entities, rows: map[string]map[[2]int]models.Edge{}}
}

func (m *memEdges) table(k relation.Kind) map[[2]int]models.Edge {
	if m.rows[k.Name] == nil {
		m.rows[k.Name] = map[[2]int]models.Edge{}
	}
	return m.rows[k.Name]
}

func (m *memEdges) Get(_ context.Context, k relation.Kind, left, right int, _ bool) (*models.Edge, error) {
	e, ok := m.table(k)[[2]int{left, right}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &e, nil
}

func (m *memEdges) Insert(_ context.Context, k relation.Kind, e *models.Edge) (bool, error) {
	_, leftOK := m.entities.record(k.Left, e.LeftID)
	_, rightOK := m.entities.record(k.Right, e.RightID)
	if !leftOK || !rightOK {
		return false, sentinel.ErrNotFound
	}
	key := [2]int{e.LeftID, e.RightID}
	if _, ok := m.table(k)[key]; ok {
		return false, nil
	}
	m.table(k)[key] = *e
	return true, nil
}

func (m *memEdges) Update(_ context.Context, k relation.Kind, e *models.Edge) error {
	m.table(k)[[2]int{e.LeftID, e.RightID}] = *e
	return nil
}

func (m *memEdges) Delete(_ context.Context, k relation.Kind, left, right int) (bool, error) {
	key := [2]int{left, right}
	if _, ok := m.table(k)[key]; !ok {
		return false, nil
	}
	delete(m.table(k), key)
	return true, nil
}

func (m *memEdges) ListFor(_ context.Context, k relation.Kind, self relation.Ref) ([]models.Edge, error) {
	var out []models.Edge
	for _, e := range m.table(k) {
		switch {
		case k.Symmetric && (e.LeftID == self.ID || e.RightID == self.ID),
			!k.Symmetric && self.Class == k.Left && e.LeftID == self.ID,
			!k.Symmetric && self.Class == k.Right && e.RightID == self.ID:
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LeftID != out[j].LeftID {
			return out[i].LeftID < out[j].LeftID
		}
		return out[i].RightID < out[j].RightID
	})
	return out, nil
}

func (m *memEdges) UnknownCodes(context.Context, relation.Kind, models.Codes) ([]int, error) {
	return nil, nil
}

func (m *memEdges) MissingEntities(_ context.Context, c models.Class, ids []int) ([]int, error) {
	var missing []int
	for _, id := range ids {
		if _, ok := m.entities.record(c, id); !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (m *memEdges) ListInfo(context.Context, relation.Kind) ([]models.RelationInfo, error) {
	return nil, nil
}

func (m *memEdges) SaveInfo(context.Context, relation.Kind, *models.RelationInfo) error { return nil }

// memHistory implements revision.Store.
type memHistory struct {
	entities *memStore
	rows     map[relation.Ref][]models.HistoryRow
	nextID   int64
}

func newMemHistory(entities *memStore) *memHistory {
	return &memHistory{entities: entities, rows: map[relation.Ref][]models.HistoryRow{}}
}

func (m *memHistory) Lock(_ context.Context, class models.Class, id int) error {
	if _, ok := m.entities.record(class, id); !ok {
		return notFound(class, id)
	}
	return nil
}

func (m *memHistory) LastRevisionAt(_ context.Context, class models.Class, id int) (*time.Time, error) {
	rows := m.rows[relation.Ref{Class: class, ID: id}]
	if len(rows) == 0 {
		return nil, nil
	}
	t := rows[len(rows)-1].UpdatedAt
	return &t, nil
}

func (m *memHistory) Touch(_ context.Context, class models.Class, id int, at time.Time) error {
	return m.entities.mutate(class, id, func(r *models.Record) { r.UpdatedAt = at })
}

func (m *memHistory) Append(_ context.Context, class models.Class, row *models.HistoryRow) error {
	m.nextID++
	row.ID = m.nextID
	row.CreatedAt = row.UpdatedAt
	ref := relation.Ref{Class: class, ID: row.SubjectID}
	m.rows[ref] = append(m.rows[ref], *row)
	return nil
}

func (m *memHistory) List(_ context.Context, class models.Class, id int) ([]models.HistoryRow, error) {
	return m.rows[relation.Ref{Class: class, ID: id}], nil
}

func (m *memHistory) count(class models.Class, id int) int {
	return len(m.rows[relation.Ref{Class: class, ID: id}])
}

func (m *memHistory) latest(class models.Class, id int) models.Dict {
	rows := m.rows[relation.Ref{Class: class, ID: id}]
	var d models.Dict
	if len(rows) > 0 {
		_ = rows[len(rows)-1].Data.Decode(&d)
	}
	return d
}

// memFields serves a fixed set of active dynamic fields.
type memFields struct {
	fields   []models.DynamicField
	creating []bool
}

func (m *memFields) Active(_ context.Context, class models.Class) ([]models.DynamicField, error) {
	var out []models.DynamicField
	for _, f := range m.fields {
		if f.EntityType == class {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *memFields) Names(ctx context.Context, class models.Class) ([]string, error) {
	fields, _ := m.Active(ctx, class)
	var names []string
	for _, f := range fields {
		names = append(names, f.Name)
	}
	return names, nil
}

func (m *memFields) ValidateValues(_ context.Context, _ models.Class, payload map[string]json.RawMessage, creating bool) (map[string]any, error) {
	m.creating = append(m.creating, creating)
	out := map[string]any{}
	for k, raw := range payload {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		out[k] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out, nil
}

type passthroughTx struct{}

func (passthroughTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
