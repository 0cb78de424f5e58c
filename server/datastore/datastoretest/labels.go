package datastoretest

import (
	"context"
	"testing"

	"github.com/fleetdm/clientstore/server/fleet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLabels(t *testing.T, ds fleet.Datastore) {
	ctx := context.Background()
	svc := newService(ds)
	id := clientID(1)
	registerClient(t, svc, id)

	labels, err := svc.ReadClientLabels(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, labels)

	require.NoError(t, svc.AddClientLabels(ctx, id, "admin", []string{"prod", "db"}))
	require.NoError(t, svc.AddClientLabels(ctx, id, "alice", []string{"prod"}))
	// Adding the same label again is a no-op.
	require.NoError(t, svc.AddClientLabels(ctx, id, "admin", []string{"prod"}))

	labels, err = svc.ReadClientLabels(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []fleet.ClientLabel{
		{Owner: "admin", Name: "db"},
		{Owner: "admin", Name: "prod"},
		{Owner: "alice", Name: "prod"},
	}, labels)

	// Removal is scoped to the owner.
	require.NoError(t, svc.RemoveClientLabels(ctx, id, "admin", []string{"prod", "missing"}))
	labels, err = svc.ReadClientLabels(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []fleet.ClientLabel{
		{Owner: "admin", Name: "db"},
		{Owner: "alice", Name: "prod"},
	}, labels)

	require.NoError(t, svc.RemoveClientLabels(ctx, id, "bob", []string{"db"}))
	require.NoError(t, svc.RemoveClientLabels(ctx, id, "admin", nil))
	labels, err = svc.ReadClientLabels(ctx, id)
	require.NoError(t, err)
	assert.Len(t, labels, 2)

	// Label names are compared in their canonical form.
	require.NoError(t, svc.AddClientLabels(ctx, id, "admin", []string{"cafe\u0301"}))
	require.NoError(t, svc.RemoveClientLabels(ctx, id, "admin", []string{"caf\u00e9"}))
	labels, err = svc.ReadClientLabels(ctx, id)
	require.NoError(t, err)
	assert.Len(t, labels, 2)
}

func testLabelsUnknownClient(t *testing.T, ds fleet.Datastore) {
	ctx := context.Background()
	svc := newService(ds)
	id := clientID(5)

	err := svc.AddClientLabels(ctx, id, "admin", []string{"prod"})
	assert.True(t, fleet.IsUnknownClient(err), "%v", err)

	require.NoError(t, svc.RemoveClientLabels(ctx, id, "admin", []string{"prod"}))

	labels, err := svc.ReadClientLabels(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, labels)

	all, err := svc.ReadAllClientLabels(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func testReadAllClientLabels(t *testing.T, ds fleet.Datastore) {
	ctx := context.Background()
	svc := newService(ds)
	c1, c2, c3 := clientID(1), clientID(2), clientID(3)
	for _, id := range []string{c1, c2, c3} {
		registerClient(t, svc, id)
	}

	require.NoError(t, svc.AddClientLabels(ctx, c1, "admin", []string{"prod", "web"}))
	require.NoError(t, svc.AddClientLabels(ctx, c2, "admin", []string{"prod"}))
	require.NoError(t, svc.AddClientLabels(ctx, c2, "bob", []string{"prod"}))

	all, err := svc.ReadAllClientLabels(ctx)
	require.NoError(t, err)
	assert.Equal(t, []fleet.ClientLabel{
		{Owner: "admin", Name: "prod"},
		{Owner: "admin", Name: "web"},
		{Owner: "bob", Name: "prod"},
	}, all)

	byClient, err := svc.MultiReadClientLabels(ctx, []string{c1, c2, c3})
	require.NoError(t, err)
	assert.Len(t, byClient[c1], 2)
	assert.Len(t, byClient[c2], 2)
	assert.Empty(t, byClient[c3])
}
