package service

import (
	"context"
	"iter"

	"post-responder/internal/domain"

	"github.com/stretchr/testify/mock"
)

// Mock implementations for testing
type MockContentSource struct {
	mock.Mock
}

func (m *MockContentSource) ListNew(ctx context.Context, streamID string) iter.Seq2[*domain.Item, error] {
	args := m.Called(ctx, streamID)
	return args.Get(0).(iter.Seq2[*domain.Item, error])
}

func (m *MockContentSource) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Item), args.Error(1)
}

func (m *MockContentSource) Reply(ctx context.Context, item *domain.Item, text string) (*domain.Reply, error) {
	args := m.Called(ctx, item, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Reply), args.Error(1)
}

type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) Classify(ctx context.Context, model domain.ModelRef, schema domain.BoolSchema, prompt domain.Prompt) (bool, error) {
	args := m.Called(ctx, model, schema, prompt)
	return args.Bool(0), args.Error(1)
}

func (m *MockBackend) Complete(ctx context.Context, model domain.ModelRef, prompt domain.Prompt) (string, error) {
	args := m.Called(ctx, model, prompt)
	return args.String(0), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyReply(ctx context.Context, item *domain.Item, record *domain.ResponseRecord) error {
	args := m.Called(ctx, item, record)
	return args.Error(0)
}

// streamOf 把固定的帖子列表包装成流，tail 非空时在末尾产出错误
func streamOf(items []*domain.Item, tail error) iter.Seq2[*domain.Item, error] {
	return func(yield func(*domain.Item, error) bool) {
		for _, item := range items {
			if !yield(item, nil) {
				return
			}
		}
		if tail != nil {
			yield(nil, tail)
		}
	}
}
