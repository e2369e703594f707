package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/singleflight"
)

// RefreshFunc exchanges a refresh token for a new token pair. Implemented by
// the HTTP client against POST /api/auth/refresh-token.
type RefreshFunc func(ctx context.Context, refreshToken string) (Tokens, error)

// Guard coordinates token refresh for the whole client. It is the only
// component permitted to mutate the TokenStore outside explicit login/logout.
//
// The session moves Authenticated → RefreshPending → Authenticated on a
// successful refresh, or → LoggedOut on failure. LoggedOut is terminal until
// a new login: the store is cleared and the expiry callback fires once.
type Guard struct {
	tokens    *TokenStore
	refreshFn RefreshFunc
	group     singleflight.Group
	logger    *slog.Logger
	onExpired func(reason string)
	skew      time.Duration
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithLogger sets the structured logger. Defaults to a JSON logger on stderr.
func WithLogger(logger *slog.Logger) GuardOption {
	return func(g *Guard) {
		g.logger = logger
	}
}

// WithExpiryHandler sets the callback invoked once when the session becomes
// irrecoverable. The UI layer uses it to route to the login view with a
// user-facing message.
func WithExpiryHandler(fn func(reason string)) GuardOption {
	return func(g *Guard) {
		g.onExpired = fn
	}
}

// WithRefreshSkew sets how long before the access token's exp claim the guard
// refreshes proactively. Default: 30s. Zero disables proactive refresh.
func WithRefreshSkew(d time.Duration) GuardOption {
	return func(g *Guard) {
		g.skew = d
	}
}

// NewGuard creates a Guard over the given token store and refresh callable.
func NewGuard(tokens *TokenStore, refreshFn RefreshFunc, opts ...GuardOption) *Guard {
	g := &Guard{
		tokens:    tokens,
		refreshFn: refreshFn,
		skew:      30 * time.Second,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return g
}

// AccessToken returns the token to attach to an outbound request, refreshing
// first when the current one is about to expire. An empty string means the
// request goes out unauthenticated.
func (g *Guard) AccessToken(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	tk := g.tokens.Tokens()
	if tk.Access == "" {
		return "", nil
	}
	if g.skew > 0 {
		if exp, ok := tokenExpiry(tk.Access); ok && time.Until(exp) < g.skew {
			fresh, err := g.Refresh(ctx)
			if errors.Is(err, ErrLogoutInProgress) {
				return tk.Access, nil
			}
			return fresh, err
		}
	}
	return tk.Access, nil
}

// Refresh performs a single-flight token refresh and returns the new access
// token. Concurrent callers share one refresh call and all observe its result.
func (g *Guard) Refresh(ctx context.Context) (string, error) {
	v, err, shared := g.group.Do("refresh", func() (any, error) {
		return g.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	if shared {
		g.logger.Debug("refresh result shared with concurrent caller")
	}
	return v.(string), nil
}

func (g *Guard) refresh(ctx context.Context) (string, error) {
	if g.tokens.LoggingOut() {
		return "", ErrLogoutInProgress
	}

	tk := g.tokens.Tokens()
	if tk.Refresh == "" {
		g.expire("no refresh token")
		return "", fmt.Errorf("%w: no refresh token", ErrSessionExpired)
	}

	fresh, err := g.refreshFn(ctx, tk.Refresh)
	if err != nil {
		g.logger.Warn("token refresh failed", slog.String("error", err.Error()))
		g.expire("your session has expired, please log in again")
		return "", fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}

	if err := g.tokens.SetTokens(fresh); err != nil {
		return "", fmt.Errorf("persisting refreshed tokens: %w", err)
	}

	attrs := []any{slog.String("access_token", tokenPrefix(fresh.Access))}
	if exp, ok := tokenExpiry(fresh.Access); ok {
		attrs = append(attrs, slog.Time("expires_at", exp))
	}
	g.logger.Info("session refreshed", attrs...)
	return fresh.Access, nil
}

func (g *Guard) expire(reason string) {
	if err := g.tokens.Clear(); err != nil {
		g.logger.Error("failed to clear session", slog.String("error", err.Error()))
	}
	if g.onExpired != nil {
		g.onExpired(reason)
	}
}
