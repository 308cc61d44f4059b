package reddit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"post-responder/internal/common"
	"post-responder/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testUserAgent = "post-responder-test/1.0"

// setupMockRedditServer 创建一个模拟的 Reddit API 服务器，同时提供令牌接口
func setupMockRedditServer(t *testing.T, api http.HandlerFunc) (*httptest.Server, *Client) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, testUserAgent, r.Header.Get("User-Agent"))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "password", r.Form.Get("grant_type"))
		assert.Equal(t, "bot", r.Form.Get("username"))

		user, _, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "client-id", user)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok-123","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		assert.Equal(t, testUserAgent, r.Header.Get("User-Agent"))
		api(w, r)
	})

	server := httptest.NewServer(mux)
	client := NewClient(Config{
		Username:      "bot",
		Password:      "secret",
		ClientID:      "client-id",
		ClientSecret:  "client-secret",
		UserAgent:     testUserAgent,
		RatePerMinute: 60000,
		APIURL:        server.URL,
		TokenURL:      server.URL + "/api/v1/access_token",
		MaxPages:      3,
	}, zap.NewNop())
	client.retryOpts = []common.Option{
		common.WithMaxRetries(2),
		common.WithInitialDelay(time.Millisecond),
		common.WithRetryIf(isRetryable),
	}
	return server, client
}

func writeListing(t *testing.T, w http.ResponseWriter, after string, posts ...postData) {
	t.Helper()
	resp := listing{Kind: "Listing", Data: listingData{After: after}}
	for _, p := range posts {
		resp.Data.Children = append(resp.Data.Children, thing{Kind: "t3", Data: p})
	}
	w.Header().Set("Content-Type", "application/json")
	assert.NoError(t, json.NewEncoder(w).Encode(resp))
}

func TestClient_ListNew(t *testing.T) {
	server, client := setupMockRedditServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/r/AskDocs/new", r.URL.Path)
		assert.Equal(t, "100", r.URL.Query().Get("limit"))

		switch r.URL.Query().Get("after") {
		case "":
			writeListing(t, w, "t3_b2",
				postData{ID: "c3", Subreddit: "AskDocs", Title: "Newest", CreatedUTC: 1714560000},
				postData{ID: "b2", Subreddit: "AskDocs", Title: "Repost", CrosspostParent: "t3_a1", CreatedUTC: 1714550000},
			)
		case "t3_b2":
			writeListing(t, w, "",
				postData{ID: "a1", Subreddit: "AskDocs", Title: "Oldest", Permalink: "/r/AskDocs/comments/a1/oldest/", CreatedUTC: 1714540000.5},
			)
		default:
			t.Errorf("unexpected after %q", r.URL.Query().Get("after"))
		}
	})
	defer server.Close()

	var ids []string
	for item, err := range client.ListNew(context.Background(), "AskDocs") {
		require.NoError(t, err)
		ids = append(ids, item.ID)
		switch item.ID {
		case "b2":
			assert.Equal(t, "t3_a1", item.CrossRef)
		case "a1":
			assert.Equal(t, "https://www.reddit.com/r/AskDocs/comments/a1/oldest/", item.URL)
			assert.Equal(t, time.Unix(1714540000, 500000000).UTC(), item.CreatedAt)
		}
	}

	assert.Equal(t, []string{"c3", "b2", "a1"}, ids)
}

func TestClient_ListNew_StopsWhenConsumerBreaks(t *testing.T) {
	var calls atomic.Int32
	server, client := setupMockRedditServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeListing(t, w, "t3_next", postData{ID: "x1"}, postData{ID: "x2"})
	})
	defer server.Close()

	for item, err := range client.ListNew(context.Background(), "AskDocs") {
		require.NoError(t, err)
		assert.Equal(t, "x1", item.ID)
		break
	}

	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_ListNew_Error(t *testing.T) {
	var calls atomic.Int32
	server, client := setupMockRedditServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	defer server.Close()

	var gotErr error
	for item, err := range client.ListNew(context.Background(), "AskDocs") {
		assert.Nil(t, item)
		gotErr = err
	}

	require.Error(t, gotErr)
	assert.Equal(t, common.ErrCodeContentSource, common.CodeOf(gotErr))
	assert.Equal(t, int32(3), calls.Load(), "503 应该被重试")
}

func TestClient_GetItem(t *testing.T) {
	tests := []struct {
		name      string
		id        string
		handler   http.HandlerFunc
		wantTitle string
		wantErr   error
	}{
		{
			name: "短 ID",
			id:   "a1",
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/info", r.URL.Path)
				assert.Equal(t, "t3_a1", r.URL.Query().Get("id"))
				writeListing(t, w, "", postData{ID: "a1", Title: "Original"})
			},
			wantTitle: "Original",
		},
		{
			name: "完整 fullname",
			id:   "t3_a1",
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "t3_a1", r.URL.Query().Get("id"))
				writeListing(t, w, "", postData{ID: "a1", Title: "Original"})
			},
			wantTitle: "Original",
		},
		{
			name: "帖子不存在",
			id:   "zz9",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeListing(t, w, "")
			},
			wantErr: common.ErrNotFound,
		},
		{
			name: "格式错误不发请求",
			id:   "t3_../../etc",
			handler: func(w http.ResponseWriter, r *http.Request) {
				t.Error("should not reach the server")
			},
			wantErr: common.ErrMalformedReference,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, client := setupMockRedditServer(t, tt.handler)
			defer server.Close()

			item, err := client.GetItem(context.Background(), tt.id)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, item)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTitle, item.Title)
		})
	}
}

func TestClient_Reply(t *testing.T) {
	t.Run("发布成功", func(t *testing.T) {
		server, client := setupMockRedditServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/api/comment", r.URL.Path)
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "t3_t1", r.Form.Get("thing_id"))
			assert.Equal(t, "Please see a dermatologist.", r.Form.Get("text"))
			assert.Equal(t, "json", r.Form.Get("api_type"))

			w.Write([]byte(`{"json":{"errors":[],"data":{"things":[{"kind":"t1","data":{"id":"k9","name":"t1_k9","created_utc":1714570000}}]}}}`))
		})
		defer server.Close()

		reply, err := client.Reply(context.Background(), &domain.Item{ID: "t1"}, "Please see a dermatologist.")

		require.NoError(t, err)
		assert.Equal(t, "k9", reply.ID)
		assert.Equal(t, time.Unix(1714570000, 0).UTC(), reply.CreatedAt)
	})

	t.Run("接口返回错误不重试", func(t *testing.T) {
		var calls atomic.Int32
		server, client := setupMockRedditServer(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.Write([]byte(`{"json":{"errors":[["RATELIMIT","you are doing that too much","ratelimit"]]}}`))
		})
		defer server.Close()

		_, err := client.Reply(context.Background(), &domain.Item{ID: "t1"}, "hello")

		require.Error(t, err)
		assert.Equal(t, common.ErrCodePublish, common.CodeOf(err))
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("服务端错误不重试", func(t *testing.T) {
		var calls atomic.Int32
		server, client := setupMockRedditServer(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		})
		defer server.Close()

		_, err := client.Reply(context.Background(), &domain.Item{ID: "t1"}, "hello")

		assert.Error(t, err)
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "429", err: &statusError{StatusCode: 429}, expected: true},
		{name: "500", err: &statusError{StatusCode: 500}, expected: true},
		{name: "403", err: &statusError{StatusCode: 403}, expected: false},
		{name: "not found", err: common.ErrNotFound, expected: false},
		{name: "ctx canceled", err: context.Canceled, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isRetryable(tt.err))
		})
	}
}
