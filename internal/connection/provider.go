package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/spacesedan/moodjournal/config"
	"github.com/spacesedan/moodjournal/internal/clients"
	"github.com/spacesedan/moodjournal/internal/db"
)

// SessionCache persists enough of a session to resume it after a restart.
type SessionCache interface {
	Load(ctx context.Context, appID string) (clients.CachedSession, bool, error)
	Save(ctx context.Context, appID string, session clients.CachedSession) error
}

// SignInError is returned by Init when no anonymous session could be
// established. The store handle is not usable without it.
type SignInError struct {
	Err error
}

func (e *SignInError) Error() string {
	return fmt.Sprintf("[Connection] anonymous sign-in failed: %v", e.Err)
}

func (e *SignInError) Unwrap() error {
	return e.Err
}

// Retryable reports whether calling Init again may succeed.
func (e *SignInError) Retryable() bool {
	var ie *clients.IdentityError
	if errors.As(e.Err, &ie) {
		return ie.Retryable()
	}
	return false
}

type Option func(*options)

type options struct {
	cache          SessionCache
	httpClient     *http.Client
	dynamo         db.DynamoDBAPI
	toolkitURL     string
	secureTokenURL string
}

func WithSessionCache(cache SessionCache) Option {
	return func(o *options) {
		o.cache = cache
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithDynamoDB uses client instead of building one from the AWS config.
func WithDynamoDB(client db.DynamoDBAPI) Option {
	return func(o *options) {
		o.dynamo = client
	}
}

func WithIdentityEndpoints(toolkitURL, secureTokenURL string) Option {
	return func(o *options) {
		o.toolkitURL = toolkitURL
		o.secureTokenURL = secureTokenURL
	}
}

// Connection holds the document store and the anonymous session. Both are
// set once by Init and never replaced.
type Connection struct {
	store   *db.JournalStore
	session *clients.Session
}

func (c *Connection) Store() *db.JournalStore {
	return c.store
}

func (c *Connection) Session() *clients.Session {
	return c.session
}

// Init connects to the document store and signs in anonymously, resuming a
// cached session when one is available. Sign-in is attempted once; failures
// are returned as *SignInError for the caller to retry or abort.
func Init(ctx context.Context, cfg config.Config, opts ...Option) (*Connection, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	dynamo := o.dynamo
	if dynamo == nil {
		client, err := clients.NewDynamoDBClient(ctx, cfg.Store)
		if err != nil {
			return nil, err
		}
		dynamo = client
	}

	var identityOpts []clients.IdentityOption
	if o.httpClient != nil {
		identityOpts = append(identityOpts, clients.WithIdentityHTTPClient(o.httpClient))
	}
	if o.toolkitURL != "" {
		identityOpts = append(identityOpts, clients.WithIdentityEndpoints(o.toolkitURL, o.secureTokenURL))
	}
	identity := clients.NewIdentityClient(cfg.Backend.APIKey, identityOpts...)

	session, err := signIn(ctx, identity, o.cache, cfg.Backend.AppID)
	if err != nil {
		slog.Error("[Connection] Auth error",
			slog.String("project_id", cfg.Backend.ProjectID),
			slog.String("error", err.Error()))
		return nil, &SignInError{Err: err}
	}

	slog.Info("[Connection] Signed in anonymously",
		slog.String("project_id", cfg.Backend.ProjectID),
		slog.String("uid", session.UID()))

	return &Connection{
		store:   db.NewJournalStore(dynamo, cfg.Store.TableName),
		session: session,
	}, nil
}

func signIn(ctx context.Context, identity *clients.IdentityClient, cache SessionCache, appID string) (*clients.Session, error) {
	if cache == nil {
		return identity.SignInAnonymously(ctx)
	}

	session := resume(ctx, identity, cache, appID)
	if session == nil {
		var err error
		session, err = identity.SignInAnonymously(ctx)
		if err != nil {
			return nil, err
		}
	}

	err := cache.Save(ctx, appID, clients.CachedSession{
		UID:          session.UID(),
		RefreshToken: session.RefreshToken(),
	})
	if err != nil {
		slog.Warn("[Connection] Failed to cache session", slog.String("error", err.Error()))
	}
	return session, nil
}

// resume returns nil when there is no cached session or it can't be refreshed.
func resume(ctx context.Context, identity *clients.IdentityClient, cache SessionCache, appID string) *clients.Session {
	cached, found, err := cache.Load(ctx, appID)
	if err != nil {
		slog.Warn("[Connection] Failed to load cached session", slog.String("error", err.Error()))
		return nil
	}
	if !found || cached.RefreshToken == "" {
		return nil
	}

	session, err := identity.Resume(ctx, cached.UID, cached.RefreshToken)
	if err != nil {
		slog.Warn("[Connection] Cached session rejected, signing in again",
			slog.String("uid", cached.UID),
			slog.String("error", err.Error()))
		return nil
	}
	return session
}
