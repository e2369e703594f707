// Package client implements the shared HTTP pipeline for the SkillNestX
// backend: one client attaches credentials and trace ids to every request,
// delegates 401s to the session guard, and feeds responses into the course
// layer. No per-module clients, no duplicated refresh logic.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/mdmeraj-dev/skillnestx-go/course"
	"github.com/mdmeraj-dev/skillnestx-go/session"
	"github.com/mdmeraj-dev/skillnestx-go/store"
)

const (
	maxBodyBytes = 1 << 20
	logBodyBytes = 512

	userKind     = "user"
	syllabusKind = "syllabus"
)

// Client is the request pipeline shared by every API-calling component.
type Client struct {
	baseURL string
	http    *http.Client
	store   store.Store
	tokens  *session.TokenStore
	guard   *session.Guard
	logger  *slog.Logger

	expiryHandler func(reason string)
	refreshSkew   time.Duration
}

var _ course.Service = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client. Default: 15s timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithLogger sets the structured logger for the client and its session guard.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithExpiryHandler sets the callback fired when the session becomes
// irrecoverable and the user must log in again.
func WithExpiryHandler(fn func(reason string)) Option {
	return func(c *Client) {
		c.expiryHandler = fn
	}
}

// WithRefreshSkew sets the proactive-refresh window on the session guard.
func WithRefreshSkew(d time.Duration) Option {
	return func(c *Client) {
		c.refreshSkew = d
	}
}

// New creates a Client persisting session and cache state to the given store.
func New(baseURL string, st store.Store, opts ...Option) *Client {
	c := &Client{
		baseURL:     baseURL,
		store:       st,
		tokens:      session.NewTokenStore(st),
		refreshSkew: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 15 * time.Second}
	}
	guardOpts := []session.GuardOption{
		session.WithLogger(c.logger),
		session.WithRefreshSkew(c.refreshSkew),
	}
	if c.expiryHandler != nil {
		guardOpts = append(guardOpts, session.WithExpiryHandler(c.expiryHandler))
	}
	c.guard = session.NewGuard(c.tokens, c.refreshTokens, guardOpts...)
	return c
}

// LoggedIn reports whether an access token is present.
func (c *Client) LoggedIn() bool {
	return c.tokens.Tokens().Access != ""
}

// Store exposes the local state store so the course layer can share it.
func (c *Client) Store() store.Store {
	return c.store
}

// do sends one request. Every request carries a fresh trace id and, when
// authed, the bearer token. A 401 on a refreshable endpoint goes through the
// guard's single-flight refresh and the request is resubmitted exactly once.
func (c *Client) do(ctx context.Context, method, path string, body, out any, authed, allowRefresh bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
	}

	token := ""
	if authed {
		var err error
		token, err = c.guard.AccessToken(ctx)
		if err != nil {
			return err
		}
	}

	traceID := uuid.NewString()
	retried := false
	for {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("X-Trace-Id", traceID)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("%s %s: %w", method, path, err)
		}
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		resp.Body.Close()

		if resp.StatusCode == http.StatusUnauthorized && authed && allowRefresh && !retried {
			fresh, rerr := c.guard.Refresh(ctx)
			if rerr != nil {
				if errors.Is(rerr, session.ErrLogoutInProgress) {
					// Fail fast with the original error; no refresh attempt.
					return c.apiError(resp.StatusCode, method, path, traceID, respBody)
				}
				return rerr
			}
			retried = true
			token = fresh
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return c.apiError(resp.StatusCode, method, path, traceID, respBody)
		}

		if out != nil {
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("%s %s: decoding response: %w", method, path, err)
			}
		}
		return nil
	}
}

func (c *Client) apiError(status int, method, path, traceID string, body []byte) error {
	truncated := string(body)
	if len(truncated) > logBodyBytes {
		truncated = truncated[:logBodyBytes]
	}
	c.logger.Warn("request failed",
		slog.String("method", method),
		slog.String("path", path),
		slog.String("trace_id", traceID),
		slog.Int("status", status),
		slog.String("body", truncated))
	return &APIError{Status: status, Path: path, TraceID: traceID, Body: truncated}
}

// Login exchanges credentials for a token pair and persists it.
func (c *Client) Login(ctx context.Context, email, password string) error {
	var out authResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/login",
		map[string]string{"email": email, "password": password}, &out, false, false)
	if err != nil {
		return err
	}
	if !out.Success {
		return fmt.Errorf("login rejected: %s", out.Message)
	}
	return c.tokens.SetTokens(session.Tokens{Access: out.AccessToken, Refresh: out.RefreshToken})
}

// Logout notifies the backend and clears the session. The logout-in-progress
// flag is set first so concurrent 401 handlers fail fast instead of racing a
// refresh against the teardown. Local state is cleared even if the call fails.
func (c *Client) Logout(ctx context.Context) error {
	tk := c.tokens.Tokens()
	if err := c.tokens.SetLoggingOut(true); err != nil {
		return err
	}
	if tk.Refresh != "" {
		err := c.do(ctx, http.MethodPost, "/api/auth/logout",
			map[string]string{"refreshToken": tk.Refresh}, nil, true, false)
		if err != nil {
			c.logger.Warn("logout call failed, clearing session anyway",
				slog.String("error", err.Error()))
		}
	}
	return c.tokens.Clear()
}

// refreshTokens implements session.RefreshFunc against the refresh endpoint.
func (c *Client) refreshTokens(ctx context.Context, refreshToken string) (session.Tokens, error) {
	var out authResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/refresh-token",
		map[string]string{"refreshToken": refreshToken}, &out, false, false)
	if err != nil {
		return session.Tokens{}, err
	}
	if !out.Success {
		return session.Tokens{}, fmt.Errorf("refresh rejected: %s", out.Message)
	}
	return session.Tokens{Access: out.AccessToken, Refresh: out.RefreshToken}, nil
}

// CurrentUser fetches the profile and entitlement facts, caching them locally
// and falling back to the cached copy when the network is unavailable.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var out userResponse
	err := c.do(ctx, http.MethodGet, "/api/users/current", nil, &out, true, true)
	if err != nil {
		var cached User
		if _, cerr := store.GetVersioned(c.store, userKind, "current", &cached); cerr == nil {
			c.logger.Warn("serving cached user after fetch failure",
				slog.String("error", err.Error()))
			return &cached, nil
		}
		return nil, err
	}
	if !out.Success {
		return nil, fmt.Errorf("fetching current user: backend reported failure")
	}

	u := &User{
		Name:           out.User.Name,
		Role:           out.User.Role,
		ProfilePicture: out.User.ProfilePicture,
		Entitlement: course.Entitlement{
			SubscriptionStatus: course.SubscriptionNone,
			SubscriptionEnd:    out.User.ActiveSubscription.EndDate,
		},
	}
	if out.User.ActiveSubscription.Status != "" {
		u.Entitlement.SubscriptionStatus = course.SubscriptionStatus(out.User.ActiveSubscription.Status)
	}
	for _, pc := range out.User.PurchasedCourses {
		u.Entitlement.PurchasedCourseIDs = append(u.Entitlement.PurchasedCourseIDs, pc.CourseID)
	}

	if err := store.PutVersioned(c.store, userKind, "current", u, 0); err != nil {
		c.logger.Error("failed to cache user", slog.String("error", err.Error()))
	}
	return u, nil
}

// Syllabus fetches a course outline, caching it under its server cache
// version and falling back to the cached copy when the network is
// unavailable.
func (c *Client) Syllabus(ctx context.Context, courseID string) (*course.SyllabusTree, error) {
	if courseID == "" {
		return nil, course.ErrCourseContext
	}

	var out syllabusResponse
	err := c.do(ctx, http.MethodGet, "/api/courses/"+courseID+"/syllabus", nil, &out, true, true)
	if err != nil {
		var cached course.SyllabusTree
		if version, cerr := store.GetVersioned(c.store, syllabusKind, courseID, &cached); cerr == nil {
			cached.CacheVersion = version
			c.logger.Warn("serving cached syllabus after fetch failure",
				slog.String("course_id", courseID),
				slog.String("error", err.Error()))
			return &cached, nil
		}
		return nil, err
	}
	if !out.Success {
		return nil, fmt.Errorf("fetching syllabus for %s: backend reported failure", courseID)
	}

	tree := &course.SyllabusTree{CourseID: courseID, CacheVersion: out.CacheVersion}
	for _, sec := range out.Syllabus {
		s := course.Section{Title: sec.Title}
		for _, l := range sec.Lessons {
			s.Lessons = append(s.Lessons, course.Lesson{
				ID:       l.ID,
				Title:    l.Title,
				IsLocked: l.IsLocked,
				Type:     l.Type,
			})
		}
		tree.Sections = append(tree.Sections, s)
	}

	if err := store.PutIfNewer(c.store, syllabusKind, courseID, tree, tree.CacheVersion); err != nil &&
		!errors.Is(err, store.ErrStaleVersion) {
		c.logger.Error("failed to cache syllabus",
			slog.String("course_id", courseID),
			slog.String("error", err.Error()))
	}
	return tree, nil
}

// Progress implements course.Service.
func (c *Client) Progress(ctx context.Context, courseID string) (course.ServerProgress, error) {
	if courseID == "" {
		return course.ServerProgress{}, course.ErrCourseContext
	}
	var out progressResponse
	err := c.do(ctx, http.MethodGet, "/api/progress/"+courseID, nil, &out, true, true)
	if err != nil {
		return course.ServerProgress{}, err
	}
	if !out.Success {
		return course.ServerProgress{}, fmt.Errorf("fetching progress for %s: backend reported failure", courseID)
	}
	return out.serverProgress(), nil
}

// CompleteLesson implements course.Service.
func (c *Client) CompleteLesson(ctx context.Context, courseID, lessonID string) (course.ServerProgress, error) {
	if courseID == "" {
		return course.ServerProgress{}, course.ErrCourseContext
	}
	var out progressResponse
	err := c.do(ctx, http.MethodPost, "/api/progress",
		map[string]string{"courseId": courseID, "lessonId": lessonID}, &out, true, true)
	if err != nil {
		return course.ServerProgress{}, err
	}
	if !out.Success {
		return course.ServerProgress{}, fmt.Errorf("completing lesson %s: backend reported failure", lessonID)
	}
	return out.serverProgress(), nil
}

// CompleteCourse implements course.Service.
func (c *Client) CompleteCourse(ctx context.Context, courseID string) (course.ServerProgress, error) {
	if courseID == "" {
		return course.ServerProgress{}, course.ErrCourseContext
	}
	var out progressResponse
	err := c.do(ctx, http.MethodPost, "/api/progress/mark-completed",
		map[string]string{"courseId": courseID}, &out, true, true)
	if err != nil {
		return course.ServerProgress{}, err
	}
	if !out.Success {
		return course.ServerProgress{}, fmt.Errorf("completing course %s: backend reported failure", courseID)
	}
	return out.serverProgress(), nil
}
