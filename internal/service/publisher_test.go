package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"post-responder/internal/adapter/memory"
	"post-responder/internal/common"
	"post-responder/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// confirmFailingStore 模拟发布成功后落库失败
type confirmFailingStore struct {
	*memory.Store
	err error
}

func (s *confirmFailingStore) ConfirmResponse(context.Context, string, string, string, *domain.Reply) error {
	return s.err
}

func TestPublisher_Publish(t *testing.T) {
	ctx := context.Background()
	profile := &domain.ResponseProfile{ID: "p1"}
	item := &domain.Item{ID: "t1", Title: "Rash on arm"}
	repliedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("发布成功并通知", func(t *testing.T) {
		store := memory.NewStore()
		source := new(MockContentSource)
		notifier := new(MockNotifier)
		source.On("Reply", mock.Anything, item, "See a doctor.").
			Return(&domain.Reply{ID: "c1", CreatedAt: repliedAt}, nil).Once()
		notifier.On("NotifyReply", mock.Anything, item, mock.MatchedBy(func(r *domain.ResponseRecord) bool {
			return r.ReplyID == "c1"
		})).Return(nil).Once()

		publisher := NewPublisher(source, store, notifier, zap.NewNop())
		publisher.newToken = func() string { return "tok-1" }

		record, err := publisher.Publish(ctx, item, profile, "See a doctor.")
		require.NoError(t, err)
		assert.Equal(t, domain.ResponsePublished, record.Status)
		assert.Equal(t, "c1", record.ReplyID)

		stored, err := store.GetResponse(ctx, "t1", "p1")
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, domain.ResponsePublished, stored.Status)
		assert.Equal(t, "c1", stored.ReplyID)
		assert.Equal(t, "See a doctor.", stored.Content)
		require.NotNil(t, stored.RepliedAt)
		assert.True(t, repliedAt.Equal(*stored.RepliedAt))

		source.AssertExpectations(t)
		notifier.AssertExpectations(t)
	})

	t.Run("通知失败不影响结果", func(t *testing.T) {
		store := memory.NewStore()
		source := new(MockContentSource)
		notifier := new(MockNotifier)
		source.On("Reply", mock.Anything, mock.Anything, mock.Anything).
			Return(&domain.Reply{ID: "c2", CreatedAt: repliedAt}, nil)
		notifier.On("NotifyReply", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("webhook down"))

		record, err := NewPublisher(source, store, notifier, zap.NewNop()).Publish(ctx, item, profile, "hi")
		require.NoError(t, err)
		assert.Equal(t, "c2", record.ReplyID)
	})

	t.Run("发布失败时撤销占位", func(t *testing.T) {
		store := memory.NewStore()
		source := new(MockContentSource)
		source.On("Reply", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("403 forbidden"))

		_, err := NewPublisher(source, store, nil, zap.NewNop()).Publish(ctx, item, profile, "hi")
		assert.Error(t, err)

		stored, err := store.GetResponse(ctx, "t1", "p1")
		require.NoError(t, err)
		assert.Nil(t, stored)
		assert.Equal(t, 0, store.ResponseCount())
	})

	t.Run("已有记录时不发布", func(t *testing.T) {
		store := memory.NewStore()
		require.NoError(t, store.InsertResponse(ctx, &domain.ResponseRecord{
			ItemID:    "t1",
			ProfileID: "p1",
			Status:    domain.ResponseReserved,
			Token:     "other",
		}))
		source := new(MockContentSource)

		_, err := NewPublisher(source, store, nil, zap.NewNop()).Publish(ctx, item, profile, "hi")
		assert.ErrorIs(t, err, common.ErrAlreadyResponded)
		source.AssertNotCalled(t, "Reply", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("确认失败时占位保留", func(t *testing.T) {
		store := &confirmFailingStore{Store: memory.NewStore(), err: common.ErrReservationLost}
		source := new(MockContentSource)
		source.On("Reply", mock.Anything, mock.Anything, mock.Anything).
			Return(&domain.Reply{ID: "c3", CreatedAt: repliedAt}, nil).Once()

		publisher := NewPublisher(source, store, nil, zap.NewNop())
		_, err := publisher.Publish(ctx, item, profile, "hi")
		assert.ErrorIs(t, err, common.ErrReservationLost)
		assert.ErrorIs(t, err, common.ErrReplyUnrecorded)
		assert.Equal(t, common.ErrCodeDatabase, common.CodeOf(err))

		stored, err := store.GetResponse(ctx, "t1", "p1")
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, domain.ResponseReserved, stored.Status)

		_, err = publisher.Publish(ctx, item, profile, "hi")
		assert.ErrorIs(t, err, common.ErrAlreadyResponded)
		source.AssertNumberOfCalls(t, "Reply", 1)
	})

	t.Run("取消的上下文也能撤销占位", func(t *testing.T) {
		store := memory.NewStore()
		cctx, cancel := context.WithCancel(ctx)
		source := new(MockContentSource)
		source.On("Reply", mock.Anything, mock.Anything, mock.Anything).
			Run(func(mock.Arguments) { cancel() }).
			Return(nil, context.Canceled)

		_, err := NewPublisher(source, store, nil, zap.NewNop()).Publish(cctx, item, profile, "hi")
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 0, store.ResponseCount())
	})
}
