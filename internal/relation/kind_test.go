package relation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bayanat/internal/entity/models"
)

func TestKindFor(t *testing.T) {
	k, err := KindFor(models.ClassBulletin, models.ClassActor)
	require.NoError(t, err)
	assert.Equal(t, "atob", k.Name)

	k, err = KindFor(models.ClassActor, models.ClassIncident)
	require.NoError(t, err)
	assert.Equal(t, "itoa", k.Name)

	_, err = KindFor(models.ClassLocation, models.ClassActor)
	assert.Error(t, err)
}

func TestSymmetricEndpointsCanonical(t *testing.T) {
	a := Ref{Class: models.ClassActor, ID: 9}
	b := Ref{Class: models.ClassActor, ID: 4}

	l1, r1, err := ActorActor.Endpoints(a, b)
	require.NoError(t, err)
	l2, r2, err := ActorActor.Endpoints(b, a)
	require.NoError(t, err)

	assert.Equal(t, 4, l1)
	assert.Equal(t, 9, r1)
	assert.Equal(t, l1, l2)
	assert.Equal(t, r1, r2)
}

func TestCanonical(t *testing.T) {
	k, l, r, err := Canonical(Ref{Class: models.ClassIncident, ID: 3}, Ref{Class: models.ClassBulletin, ID: 8})
	require.NoError(t, err)
	assert.Equal(t, "itob", k.Name)
	assert.Equal(t, 3, l)
	assert.Equal(t, 8, r)

	_, _, _, err = Canonical(Ref{Class: models.ClassActor, ID: 1}, Ref{Class: models.ClassActor, ID: 1})
	assert.ErrorIs(t, err, ErrSelfRelation)
}

func TestSymmetricRejectsSelf(t *testing.T) {
	x := Ref{Class: models.ClassBulletin, ID: 3}
	_, _, err := BulletinBulletin.Endpoints(x, x)
	assert.ErrorIs(t, err, ErrSelfRelation)
}

func TestCrossEndpointsFollowColumns(t *testing.T) {
	actor := Ref{Class: models.ClassActor, ID: 2}
	bulletin := Ref{Class: models.ClassBulletin, ID: 2}

	l, r, err := ActorBulletin.Endpoints(bulletin, actor)
	require.NoError(t, err)
	assert.Equal(t, 2, l)
	assert.Equal(t, 2, r)

	edge := &models.Edge{LeftID: 2, RightID: 2}
	assert.Equal(t, bulletin, ActorBulletin.Counterpart(edge, actor))
	assert.Equal(t, actor, ActorBulletin.Counterpart(edge, bulletin))
}

func TestSymmetricCounterpart(t *testing.T) {
	edge := &models.Edge{LeftID: 1, RightID: 5}
	assert.Equal(t, 5, ActorActor.Counterpart(edge, Ref{Class: models.ClassActor, ID: 1}).ID)
	assert.Equal(t, 1, ActorActor.Counterpart(edge, Ref{Class: models.ClassActor, ID: 5}).ID)
}

func TestValidateAttrs(t *testing.T) {
	p := 4
	assert.Error(t, ActorActor.ValidateAttrs(Attrs{Probability: &p}))
	assert.Error(t, ActorActor.ValidateAttrs(Attrs{RelatedAs: models.Codes{1, 2}}))
	assert.NoError(t, ActorActor.ValidateAttrs(Attrs{RelatedAs: models.Codes{1, 1}}))
	assert.NoError(t, ActorBulletin.ValidateAttrs(Attrs{RelatedAs: models.Codes{1, 2}}))
}

func TestRelatedAsValue(t *testing.T) {
	assert.Equal(t, 3, ActorActor.RelatedAsValue(models.Codes{3}))
	assert.Nil(t, ActorActor.RelatedAsValue(nil))
	assert.Equal(t, []int{1, 2}, ActorBulletin.RelatedAsValue(models.Codes{1, 2}))
	assert.Equal(t, []int{}, IncidentActor.RelatedAsValue(nil))
}
