package client_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdmeraj-dev/skillnestx-go/client"
	"github.com/mdmeraj-dev/skillnestx-go/course"
	"github.com/mdmeraj-dev/skillnestx-go/session"
	"github.com/mdmeraj-dev/skillnestx-go/store/memory"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func progressJSON(completed, total int, version uint64) map[string]any {
	return map[string]any{
		"success": true,
		"data": map[string]any{
			"courseProgress": map[string]any{
				"completedLessons":   completed,
				"totalLessons":       total,
				"progressPercentage": 100 * completed / max(total, 1),
				"isCompleted":        false,
			},
		},
		"cacheVersion": version,
	}
}

func TestClient_AttachesBearerAndTraceID(t *testing.T) {
	var mu sync.Mutex
	var auths, traces []string

	r := chi.NewRouter()
	r.Get("/api/progress/{courseID}", func(w http.ResponseWriter, req *http.Request) {
		mu.Lock()
		auths = append(auths, req.Header.Get("Authorization"))
		traces = append(traces, req.Header.Get("X-Trace-Id"))
		mu.Unlock()
		writeJSON(w, http.StatusOK, progressJSON(0, 5, 1))
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	st := memory.New()
	require.NoError(t, session.NewTokenStore(st).SetTokens(session.Tokens{Access: "tok", Refresh: "ref"}))
	c := client.New(srv.URL, st, client.WithLogger(quietLogger()))

	_, err := c.Progress(context.Background(), "go-101")
	require.NoError(t, err)
	_, err = c.Progress(context.Background(), "go-101")
	require.NoError(t, err)

	require.Len(t, auths, 2)
	assert.Equal(t, "Bearer tok", auths[0])
	for _, tr := range traces {
		_, err := uuid.Parse(tr)
		assert.NoError(t, err, "X-Trace-Id must be a uuid")
	}
	assert.NotEqual(t, traces[0], traces[1], "each request gets a fresh trace id")
}

func TestClient_SingleFlightRefresh(t *testing.T) {
	var refreshCalls atomic.Int32

	r := chi.NewRouter()
	r.Post("/api/auth/refresh-token", func(w http.ResponseWriter, req *http.Request) {
		refreshCalls.Add(1)
		var body map[string]string
		assert.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.Equal(t, "ref1", body["refreshToken"])
		time.Sleep(50 * time.Millisecond)
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true, "accessToken": "new", "refreshToken": "ref2",
		})
	})
	r.Get("/api/progress/{courseID}", func(w http.ResponseWriter, req *http.Request) {
		if req.Header.Get("Authorization") != "Bearer new" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false})
			return
		}
		writeJSON(w, http.StatusOK, progressJSON(3, 5, 1))
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	st := memory.New()
	tokens := session.NewTokenStore(st)
	require.NoError(t, tokens.SetTokens(session.Tokens{Access: "stale", Refresh: "ref1"}))
	c := client.New(srv.URL, st, client.WithLogger(quietLogger()))

	const n = 5
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = c.Progress(context.Background(), "go-101")
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err, "all concurrent requests must succeed after the shared refresh")
	}
	assert.Equal(t, int32(1), refreshCalls.Load(), "exactly one refresh call for n concurrent 401s")
	assert.Equal(t, session.Tokens{Access: "new", Refresh: "ref2"}, tokens.Tokens())
}

func TestClient_RefreshRejectionExpiresSession(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/api/auth/refresh-token", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "refresh token revoked"})
	})
	r.Get("/api/progress/{courseID}", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false})
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	st := memory.New()
	tokens := session.NewTokenStore(st)
	require.NoError(t, tokens.SetTokens(session.Tokens{Access: "stale", Refresh: "ref1"}))

	var reasons []string
	c := client.New(srv.URL, st,
		client.WithLogger(quietLogger()),
		client.WithExpiryHandler(func(reason string) { reasons = append(reasons, reason) }),
	)

	_, err := c.Progress(context.Background(), "go-101")
	require.ErrorIs(t, err, session.ErrSessionExpired)

	assert.Equal(t, session.Tokens{}, tokens.Tokens(), "session must be cleared")
	require.Len(t, reasons, 1)
	assert.Contains(t, reasons[0], "session has expired")
}

func TestClient_NoRefreshDuringLogout(t *testing.T) {
	var refreshCalls atomic.Int32

	r := chi.NewRouter()
	r.Post("/api/auth/refresh-token", func(w http.ResponseWriter, req *http.Request) {
		refreshCalls.Add(1)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "accessToken": "new", "refreshToken": "r2"})
	})
	r.Get("/api/progress/{courseID}", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false})
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	st := memory.New()
	tokens := session.NewTokenStore(st)
	require.NoError(t, tokens.SetTokens(session.Tokens{Access: "stale", Refresh: "ref1"}))
	require.NoError(t, tokens.SetLoggingOut(true))

	c := client.New(srv.URL, st, client.WithLogger(quietLogger()))

	_, err := c.Progress(context.Background(), "go-101")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Zero(t, refreshCalls.Load(), "no refresh attempt while logging out")
}

func TestClient_RetriesAtMostOnce(t *testing.T) {
	var refreshCalls, progressCalls atomic.Int32

	r := chi.NewRouter()
	r.Post("/api/auth/refresh-token", func(w http.ResponseWriter, req *http.Request) {
		refreshCalls.Add(1)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "accessToken": "new", "refreshToken": "r2"})
	})
	r.Get("/api/progress/{courseID}", func(w http.ResponseWriter, req *http.Request) {
		progressCalls.Add(1)
		// Still 401 after the refresh: the pipeline must give up, not loop.
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false})
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	st := memory.New()
	require.NoError(t, session.NewTokenStore(st).SetTokens(session.Tokens{Access: "stale", Refresh: "ref1"}))
	c := client.New(srv.URL, st, client.WithLogger(quietLogger()))

	_, err := c.Progress(context.Background(), "go-101")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, int32(1), refreshCalls.Load())
	assert.Equal(t, int32(2), progressCalls.Load(), "original call plus exactly one retry")
}

func TestClient_Login(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/api/auth/login", func(w http.ResponseWriter, req *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		if body["password"] != "s3cret" {
			writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "invalid credentials"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "accessToken": "a1", "refreshToken": "r1"})
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	st := memory.New()
	c := client.New(srv.URL, st, client.WithLogger(quietLogger()))

	err := c.Login(context.Background(), "jo@example.com", "wrong")
	require.ErrorContains(t, err, "invalid credentials")
	assert.False(t, c.LoggedIn())

	require.NoError(t, c.Login(context.Background(), "jo@example.com", "s3cret"))
	assert.True(t, c.LoggedIn())
}

func TestClient_Logout(t *testing.T) {
	var logoutCalls atomic.Int32
	r := chi.NewRouter()
	r.Post("/api/auth/logout", func(w http.ResponseWriter, req *http.Request) {
		logoutCalls.Add(1)
		var body map[string]string
		assert.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.Equal(t, "r1", body["refreshToken"])
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	st := memory.New()
	tokens := session.NewTokenStore(st)
	require.NoError(t, tokens.SetTokens(session.Tokens{Access: "a1", Refresh: "r1"}))
	c := client.New(srv.URL, st, client.WithLogger(quietLogger()))

	require.NoError(t, c.Logout(context.Background()))
	assert.Equal(t, int32(1), logoutCalls.Load())
	assert.False(t, c.LoggedIn())
	assert.False(t, tokens.LoggingOut())
}

func TestClient_CurrentUser(t *testing.T) {
	end := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	r := chi.NewRouter()
	r.Get("/api/users/current", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"user": map[string]any{
				"name": "Jo", "role": "learner", "profilePicture": "jo.png",
				"activeSubscription": map[string]any{"status": "active", "endDate": end},
				"purchasedCourses":   []map[string]any{{"courseId": "go-101"}},
			},
		})
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	st := memory.New()
	require.NoError(t, session.NewTokenStore(st).SetTokens(session.Tokens{Access: "a1", Refresh: "r1"}))
	c := client.New(srv.URL, st, client.WithLogger(quietLogger()))

	u, err := c.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Jo", u.Name)
	assert.Equal(t, course.SubscriptionActive, u.Entitlement.SubscriptionStatus)
	require.NotNil(t, u.Entitlement.SubscriptionEnd)
	assert.True(t, u.Entitlement.SubscriptionEnd.Equal(end))
	assert.Equal(t, []string{"go-101"}, u.Entitlement.PurchasedCourseIDs)

	// Backend gone: the cached profile is served instead.
	srv.Close()
	cached, err := c.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, u.Name, cached.Name)
	assert.Equal(t, u.Entitlement.PurchasedCourseIDs, cached.Entitlement.PurchasedCourseIDs)
}

func TestClient_Syllabus(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/courses/{courseID}/syllabus", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"syllabus": []map[string]any{{
				"title": "Basics",
				"lessons": []map[string]any{
					{"_id": "l1", "title": "Hello", "isLocked": false, "type": "video"},
					{"_id": "l2", "title": "Types", "isLocked": true, "type": "article"},
				},
			}},
			"cacheVersion": 4,
		})
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	st := memory.New()
	require.NoError(t, session.NewTokenStore(st).SetTokens(session.Tokens{Access: "a1", Refresh: "r1"}))
	c := client.New(srv.URL, st, client.WithLogger(quietLogger()))

	_, err := c.Syllabus(context.Background(), "")
	require.ErrorIs(t, err, course.ErrCourseContext)

	tree, err := c.Syllabus(context.Background(), "go-101")
	require.NoError(t, err)
	assert.Equal(t, uint64(4), tree.CacheVersion)
	require.Len(t, tree.Sections, 1)
	require.Len(t, tree.Sections[0].Lessons, 2)
	assert.Equal(t, "l2", tree.Sections[0].Lessons[1].ID)
	assert.True(t, tree.Sections[0].Lessons[1].IsLocked)

	// Backend gone: the cached syllabus is served instead.
	srv.Close()
	cached, err := c.Syllabus(context.Background(), "go-101")
	require.NoError(t, err)
	assert.Equal(t, tree.Sections, cached.Sections)
	assert.Equal(t, tree.CacheVersion, cached.CacheVersion)
}

func TestClient_CompleteLesson(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/api/progress", func(w http.ResponseWriter, req *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.Equal(t, "go-101", body["courseId"])
		assert.Equal(t, "l1", body["lessonId"])
		writeJSON(w, http.StatusOK, progressJSON(1, 5, 2))
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	st := memory.New()
	require.NoError(t, session.NewTokenStore(st).SetTokens(session.Tokens{Access: "a1", Refresh: "r1"}))
	c := client.New(srv.URL, st, client.WithLogger(quietLogger()))

	sp, err := c.CompleteLesson(context.Background(), "go-101", "l1")
	require.NoError(t, err)
	assert.Equal(t, 1, sp.CompletedLessons)
	assert.Equal(t, 5, sp.TotalLessons)
	assert.Equal(t, uint64(2), sp.CacheVersion)
}
