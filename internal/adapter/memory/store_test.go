package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"post-responder/internal/common"
	"post-responder/internal/domain"
)

func TestStore_Classification(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	record, err := store.GetClassification(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, record)

	require.NoError(t, store.UpsertClassification(ctx, "t1", true))

	record, err = store.GetClassification(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.True(t, record.RequiresResponse)
}

func TestStore_UpsertItemKeepsFirstVersion(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	require.NoError(t, store.UpsertItem(ctx, &domain.Item{ID: "t1", Title: "first"}))
	require.NoError(t, store.UpsertItem(ctx, &domain.Item{ID: "t1", Title: "second"}))
	assert.Error(t, store.UpsertItem(ctx, &domain.Item{}))

	item, ok := store.Item("t1")
	require.True(t, ok)
	assert.Equal(t, "first", item.Title)
}

func TestStore_ResponseReservation(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	reserve := func(token string) error {
		return store.InsertResponse(ctx, &domain.ResponseRecord{
			ItemID: "t1", ProfileID: "p1", Status: domain.ResponseReserved, Token: token,
		})
	}

	require.NoError(t, reserve("a"))
	assert.ErrorIs(t, reserve("b"), common.ErrAlreadyResponded)

	reply := &domain.Reply{ID: "c1", CreatedAt: time.Now()}
	assert.ErrorIs(t, store.ConfirmResponse(ctx, "t1", "p1", "b", reply), common.ErrReservationLost)
	require.NoError(t, store.ConfirmResponse(ctx, "t1", "p1", "a", reply))

	record, err := store.GetResponse(ctx, "t1", "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.ResponsePublished, record.Status)
	assert.Equal(t, "c1", record.ReplyID)

	// 已发布的记录不能撤销
	assert.ErrorIs(t, store.DeleteResponse(ctx, "t1", "p1", "a"), common.ErrReservationLost)
	assert.Equal(t, 1, store.ResponseCount())
}

func TestStore_DeleteReservation(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	require.NoError(t, store.InsertResponse(ctx, &domain.ResponseRecord{
		ItemID: "t1", ProfileID: "p1", Status: domain.ResponseReserved, Token: "a",
	}))
	require.NoError(t, store.DeleteResponse(ctx, "t1", "p1", "a"))

	record, err := store.GetResponse(ctx, "t1", "p1")
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestStore_GetProfile(t *testing.T) {
	store := NewStore(&domain.ResponseProfile{ID: "p1", SystemPrompt: "be brief"})

	profile, err := store.GetProfile(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "be brief", profile.SystemPrompt)

	_, err = store.GetProfile(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}
