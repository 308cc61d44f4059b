package service

import (
	"context"
	"errors"
	"testing"

	"post-responder/internal/common"
	"post-responder/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestContextResolver_Resolve(t *testing.T) {
	original := &domain.Item{ID: "a1", Title: "Original", Body: "first post"}

	tests := []struct {
		name       string
		item       *domain.Item
		setupMock  func(*MockContentSource)
		wantKind   domain.ParentKind
		wantParent *domain.Item
		wantErr    bool
	}{
		{
			name: "不是转发",
			item: &domain.Item{ID: "t1"},
			setupMock: func(m *MockContentSource) {
				m.On("GetItem", mock.Anything, "t1").Return(&domain.Item{ID: "t1", Title: "Fresh title"}, nil)
			},
			wantKind: domain.NoParent,
		},
		{
			name: "成功取到原帖",
			item: &domain.Item{ID: "t1"},
			setupMock: func(m *MockContentSource) {
				m.On("GetItem", mock.Anything, "t1").Return(&domain.Item{ID: "t1", CrossRef: "t3_a1"}, nil)
				m.On("GetItem", mock.Anything, "t3_a1").Return(original, nil)
			},
			wantKind:   domain.HasParent,
			wantParent: original,
		},
		{
			name: "原帖不存在",
			item: &domain.Item{ID: "t1"},
			setupMock: func(m *MockContentSource) {
				m.On("GetItem", mock.Anything, "t1").Return(&domain.Item{ID: "t1", CrossRef: "t3_gone"}, nil)
				m.On("GetItem", mock.Anything, "t3_gone").Return(nil, common.ErrNotFound)
			},
			wantKind: domain.NoParent,
		},
		{
			name: "引用格式错误",
			item: &domain.Item{ID: "t1"},
			setupMock: func(m *MockContentSource) {
				m.On("GetItem", mock.Anything, "t1").Return(&domain.Item{ID: "t1", CrossRef: "???"}, nil)
				m.On("GetItem", mock.Anything, "???").Return(nil, common.ErrMalformedReference)
			},
			wantKind: domain.NoParent,
		},
		{
			name: "取原帖超时",
			item: &domain.Item{ID: "t1"},
			setupMock: func(m *MockContentSource) {
				m.On("GetItem", mock.Anything, "t1").Return(&domain.Item{ID: "t1", CrossRef: "t3_a1"}, nil)
				m.On("GetItem", mock.Anything, "t3_a1").Return(nil, errors.New("i/o timeout"))
			},
			wantKind: domain.ParentFetchFailed,
		},
		{
			name: "引用自己",
			item: &domain.Item{ID: "t1"},
			setupMock: func(m *MockContentSource) {
				m.On("GetItem", mock.Anything, "t1").Return(&domain.Item{ID: "t1", CrossRef: "t1"}, nil)
			},
			wantKind: domain.NoParent,
		},
		{
			name: "重新获取帖子失败",
			item: &domain.Item{ID: "t1"},
			setupMock: func(m *MockContentSource) {
				m.On("GetItem", mock.Anything, "t1").Return(nil, errors.New("503"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := new(MockContentSource)
			tt.setupMock(source)

			self, parent, err := NewContextResolver(source, zap.NewNop()).Resolve(context.Background(), tt.item)

			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, self)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "t1", self.ID)
			assert.Equal(t, tt.wantKind, parent.Kind)
			assert.Equal(t, tt.wantParent, parent.Parent())
			source.AssertExpectations(t)
		})
	}
}

func TestContextResolver_Resolve_UsesCanonicalContent(t *testing.T) {
	source := new(MockContentSource)
	source.On("GetItem", mock.Anything, "t1").Return(&domain.Item{ID: "t1", Title: "Edited title", Body: "edited"}, nil)

	self, _, err := NewContextResolver(source, zap.NewNop()).
		Resolve(context.Background(), &domain.Item{ID: "t1", Title: "Stale title"})

	require.NoError(t, err)
	assert.Equal(t, "Edited title", self.Title)
}
