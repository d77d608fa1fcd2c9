package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Mazart23/pet-book/internal/config"
	"github.com/Mazart23/pet-book/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "tok-rex"

// backend serves the controller API and the notifier websocket from one
// httptest server.
type backend struct {
	srv *httptest.Server

	mu    sync.Mutex
	conns []*websocket.Conn

	deleteStatus int
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{deleteStatus: http.StatusOK}

	r := chi.NewRouter()
	r.Post("/user/login", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"access_token": testToken})
	})
	r.Get("/notification/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]any{{
			"notification_id":   "n-old",
			"notification_type": "scan",
			"timestamp":         "2024-05-01T09:00:00",
			"data":              map[string]string{"city": "Poznań", "latitude": "52.4", "longitude": "16.9"},
		}})
	})
	r.Get("/comment/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, []domain.Comment{})
	})
	r.Delete("/post/posts", func(w http.ResponseWriter, _ *http.Request) {
		b.mu.Lock()
		status := b.deleteStatus
		b.mu.Unlock()
		writeJSON(w, status, map[string]string{"message": "gone"})
	})
	r.Get("/post", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, []domain.Post{{ID: "p1", Content: "nap", Timestamp: "2024-05-01T10:00:00"}})
	})
	r.Get("/ws", func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Query().Get("token") != testToken {
			http.Error(w, "bad token", http.StatusUnauthorized)
			return
		}
		conn, err := (&websocket.Upgrader{}).Upgrade(w, req, nil)
		if err != nil {
			return
		}
		b.mu.Lock()
		b.conns = append(b.conns, conn)
		b.mu.Unlock()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	b.srv = httptest.NewServer(r)
	t.Cleanup(b.srv.Close)
	return b
}

func (b *backend) config() *config.Config {
	return &config.Config{
		ControllerURL: b.srv.URL,
		NotifierURL:   "ws" + strings.TrimPrefix(b.srv.URL, "http") + "/ws",
		HTTPTimeout:   5 * time.Second,
	}
}

func (b *backend) connections() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns)
}

func (b *backend) send(t *testing.T, frame string) {
	t.Helper()
	b.mu.Lock()
	conn := b.conns[len(b.conns)-1]
	b.mu.Unlock()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func startApp(t *testing.T, b *backend, opts ...Option) *App {
	t.Helper()
	a := New(b.config(), &domain.MemoryCredentials{}, nil, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = a.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return a
}

func TestApp_LoginConnectsPushAndMergesEvents(t *testing.T) {
	b := newBackend(t)
	a := startApp(t, b)
	ctx := context.Background()

	require.NoError(t, a.Login(ctx, "rex", "woof"))
	require.Eventually(t, func() bool { return b.connections() == 1 }, 2*time.Second, 10*time.Millisecond)

	notifications := a.Notifications()
	loadCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, notifications.LoadMore(loadCtx))
	require.Len(t, notifications.Items(), 1)
	assert.True(t, notifications.Exhausted())

	comments := a.Comments("p1")
	b.send(t, `{"event":"notification_comment","data":{"notification_id":"n-new","timestamp":"2024-05-01T12:00:00","data":{"post_id":"p1","user_id":"u2","comment_id":"c7","content":"cute"}}}`)

	require.Eventually(t, func() bool { return len(notifications.Items()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "n-new", notifications.Items()[0].ID)

	require.Eventually(t, func() bool { return len(comments.Items()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "c7", comments.Items()[0].ID)
	assert.Same(t, comments, a.Comments("p1"))
}

func TestApp_NotificationsWaitForPush(t *testing.T) {
	b := newBackend(t)
	a := New(b.config(), &domain.MemoryCredentials{}, nil)
	ctx := context.Background()

	// logged in but Run not started: no push connection, so no readiness
	require.NoError(t, a.Login(ctx, "rex", "woof"))

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := a.Notifications().LoadMore(waitCtx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, a.Notifications().Loading())

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() { _ = a.Run(runCtx) }()

	loadCtx, cancelLoad := context.WithTimeout(ctx, 2*time.Second)
	defer cancelLoad()
	require.NoError(t, a.Notifications().LoadMore(loadCtx))
	assert.Len(t, a.Notifications().Items(), 1)
}

func TestApp_LogoutClosesFeeds(t *testing.T) {
	b := newBackend(t)
	a := startApp(t, b)
	ctx := context.Background()

	require.NoError(t, a.Login(ctx, "rex", "woof"))
	timeline := a.Timeline()
	require.NoError(t, timeline.LoadMore(ctx))
	require.Len(t, timeline.Items(), 1)

	require.NoError(t, a.Logout(ctx))

	assert.ErrorIs(t, timeline.LoadMore(ctx), domain.ErrNoCredential)
	_, ok := a.Session().Token()
	assert.False(t, ok)

	fresh := a.Timeline()
	assert.NotSame(t, timeline, fresh)
	assert.Empty(t, fresh.Items())
	assert.ErrorIs(t, fresh.LoadMore(ctx), domain.ErrNoCredential)
}

func TestApp_DeleteErrorHook(t *testing.T) {
	b := newBackend(t)
	b.mu.Lock()
	b.deleteStatus = http.StatusInternalServerError
	b.mu.Unlock()

	type failure struct {
		feed, id string
		err      error
	}
	failures := make(chan failure, 1)
	a := startApp(t, b,
		WithRemovalDelay(10*time.Millisecond),
		WithDeleteErrorHook(func(feed, id string, err error) {
			failures <- failure{feed, id, err}
		}),
	)
	ctx := context.Background()

	require.NoError(t, a.Login(ctx, "rex", "woof"))
	timeline := a.Timeline()
	require.NoError(t, timeline.LoadMore(ctx))
	require.NoError(t, timeline.Remove(ctx, "p1"))

	select {
	case f := <-failures:
		assert.Equal(t, "timeline", f.feed)
		assert.Equal(t, "p1", f.id)
		assert.ErrorIs(t, f.err, domain.ErrServer)
	case <-time.After(2 * time.Second):
		t.Fatal("delete failure was not reported")
	}
	require.Eventually(t, func() bool { return len(timeline.Items()) == 0 }, time.Second, 5*time.Millisecond)
}

func TestApp_RegistryCachesPerID(t *testing.T) {
	b := newBackend(t)
	a := New(b.config(), &domain.MemoryCredentials{}, nil)

	assert.Same(t, a.UserPosts("u1"), a.UserPosts("u1"))
	assert.NotSame(t, a.UserPosts("u1"), a.UserPosts("u2"))
	assert.Same(t, a.Reactions("p1"), a.Reactions("p1"))
	assert.Same(t, a.Reactors("p1"), a.Reactors("p1"))
	assert.Same(t, a.Timeline(), a.Timeline())
}

func TestApp_FollowsCredentialStoreChanges(t *testing.T) {
	b := newBackend(t)
	store := &domain.MemoryCredentials{}
	a := New(b.config(), store, nil, WithExpiryCheckInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = a.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// a login by another process sharing the store
	require.NoError(t, store.SaveCredential(ctx, domain.ParseCredential(testToken)))
	require.Eventually(t, func() bool { return b.connections() == 1 }, 2*time.Second, 10*time.Millisecond)
	timeline := a.Timeline()
	require.NoError(t, timeline.LoadMore(ctx))

	// and its logout
	require.NoError(t, store.ClearCredential(ctx))
	require.Eventually(t, func() bool {
		_, ok := a.Session().Token()
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return a.Timeline() != timeline }, 2*time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, timeline.LoadMore(ctx), domain.ErrNoCredential)
}
