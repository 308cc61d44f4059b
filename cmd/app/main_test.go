package main

import (
	"context"
	"io"
	"iter"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"post-responder/internal/adapter/memory"
	"post-responder/internal/config"
	"post-responder/internal/domain"
	"post-responder/internal/metrics"
	"post-responder/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockSource 模拟 ContentSource 接口
type MockSource struct {
	mock.Mock
}

func (m *MockSource) ListNew(ctx context.Context, streamID string) iter.Seq2[*domain.Item, error] {
	args := m.Called(ctx, streamID)
	return args.Get(0).(iter.Seq2[*domain.Item, error])
}

func (m *MockSource) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(*domain.Item), args.Error(1)
}

func (m *MockSource) Reply(ctx context.Context, item *domain.Item, text string) (*domain.Reply, error) {
	args := m.Called(ctx, item, text)
	return args.Get(0).(*domain.Reply), args.Error(1)
}

// MockBackend 模拟 GenerationBackend 接口
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

func TestNewScheduler_EndToEnd(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{
		Source:             config.SourceReddit,
		RedditSubreddit:    "AskDocs",
		AssistantModeID:    "nurse",
		ClassifierProvider: "openai",
		ClassifierModel:    "gpt-4o-mini",
		ReplyConstraint:    service.DefaultReplyConstraint,
		SleepDuration:      1,
		PollInterval:       time.Minute,
	}
	store := memory.NewStore(&domain.ResponseProfile{ID: "nurse", SystemPrompt: "You are a nurse."})

	item := &domain.Item{ID: "t1", Title: "Rash on arm", Body: "Red spots since Monday"}
	source := new(MockSource)
	source.On("ListNew", mock.Anything, "AskDocs").Return(iter.Seq2[*domain.Item, error](func(yield func(*domain.Item, error) bool) {
		yield(item, nil)
	}))
	source.On("GetItem", mock.Anything, "t1").Return(item, nil)
	source.On("Reply", mock.Anything, item, "Keep it clean.").Return(&domain.Reply{ID: "c1"}, nil).Once()

	backend := new(MockBackend)
	backend.On("Classify", mock.Anything, domain.ModelRef{Provider: "openai", Model: "gpt-4o-mini"}, mock.Anything, mock.Anything).
		Return(true, nil)
	backend.On("Complete", mock.Anything, domain.DefaultModelRef, mock.Anything).Return("Keep it clean.", nil)

	scheduler := newScheduler(cfg, source, store, backend, nil, metrics.New(), zap.NewNop())

	stats, err := scheduler.RunCycle(ctx, cfg.StreamID(), cfg.AssistantModeID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Published)

	record, err := store.GetResponse(ctx, "t1", "nurse")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "c1", record.ReplyID)
}

func TestServeMetrics(t *testing.T) {
	m := metrics.New()
	m.RepliesPosted.Inc()

	srv := serveMetrics("127.0.0.1:0", m, zap.NewNop())
	defer srv.Close()

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "replies_published_total")
}
