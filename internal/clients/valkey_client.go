package clients

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/spacesedan/moodjournal/config"
	"github.com/valkey-io/valkey-go"
)

// CachedSession is what survives a restart: enough to resume the same
// anonymous user instead of creating a new one.
type CachedSession struct {
	UID          string `json:"uid"`
	RefreshToken string `json:"refresh_token"`
}

type ValkeySessionCache struct {
	Client     valkey.Client
	ttl        time.Duration
	retryDelay time.Duration
}

// NewValkeySessionCacheFromClient wraps an already connected client.
func NewValkeySessionCacheFromClient(client valkey.Client) *ValkeySessionCache {
	return &ValkeySessionCache{Client: client, ttl: VALKEY_SESSION_TTL, retryDelay: VALKEY_RETRY_DELAY}
}

func NewValkeySessionCache(cfg config.Valkey) (*ValkeySessionCache, error) {
	opts := valkey.ClientOption{
		InitAddress: []string{
			cfg.Address,
		},
		Password:         cfg.Password,
		ConnWriteTimeout: 5 * time.Second,
		SelectDB:         0,
	}

	if cfg.TLS {
		opts.TLSConfig = &tls.Config{InsecureSkipVerify: false}
	}

	client, err := valkey.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("[ValkeyClient] failed to create Valkey: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*3)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("[ValkeyClient] failed to ping Valkey: %w", err)
	}

	slog.Info("[ValkeyClient] Successfully connected to valkey")

	return NewValkeySessionCacheFromClient(client), nil
}

func (vc *ValkeySessionCache) Close() {
	if vc.Client != nil {
		vc.Client.Close()
	}
}

// Load returns the cached session for appID. found is false when nothing is cached.
func (vc *ValkeySessionCache) Load(ctx context.Context, appID string) (session CachedSession, found bool, err error) {
	res := vc.DoWithRetry(ctx, func() valkey.Completed {
		return vc.Client.B().Get().Key(sessionKey(appID)).Build()
	}, VALKEY_RETRIES)

	raw, err := res.ToString()
	if valkey.IsValkeyNil(err) {
		return CachedSession{}, false, nil
	}
	if err != nil {
		return CachedSession{}, false, fmt.Errorf("[ValkeyClient] failed to load session: %w", err)
	}

	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return CachedSession{}, false, fmt.Errorf("[ValkeyClient] failed to decode session: %w", err)
	}
	return session, true, nil
}

func (vc *ValkeySessionCache) Save(ctx context.Context, appID string, session CachedSession) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("[ValkeyClient] failed to encode session: %w", err)
	}

	key := sessionKey(appID)
	build := func() []valkey.Completed {
		return []valkey.Completed{
			vc.Client.B().Set().Key(key).Value(string(raw)).Build(),
			vc.Client.B().Expire().Key(key).Seconds(int64(vc.ttl / time.Second)).Build(),
		}
	}

	for _, res := range vc.DoMultiWithRetry(ctx, build, VALKEY_RETRIES) {
		if err := res.Error(); err != nil {
			return fmt.Errorf("[ValkeyClient] failed to save session: %w", err)
		}
	}

	slog.Info("[ValkeyClient] Session cached", slog.String("uid", session.UID))
	return nil
}

func sessionKey(appID string) string {
	return VALKEY_SESSION_KEY_PREFIX + appID
}

// DoMultiWithRetry calls build for every attempt since commands are recycled
// once sent. It stops early when ctx is done.
func (vc *ValkeySessionCache) DoMultiWithRetry(ctx context.Context, build func() []valkey.Completed, retries int) []valkey.ValkeyResult {
	var results []valkey.ValkeyResult

	for i := 0; i < retries; i++ {
		results = vc.Client.DoMulti(ctx, build()...)
		var failed error
		for _, r := range results {
			if err := r.Error(); err != nil {
				failed = err
				break
			}
		}
		if failed == nil {
			break
		}

		slog.Warn("[ValkeyClient] Do Multi failed",
			slog.Int("attempt", i+1),
			slog.String("error", failed.Error()))

		if i == retries-1 || !vc.wait(ctx) {
			break
		}
	}

	return results
}

// DoWithRetry retries failed commands. A nil reply is a result, not a failure.
func (vc *ValkeySessionCache) DoWithRetry(ctx context.Context, build func() valkey.Completed, retries int) valkey.ValkeyResult {
	var result valkey.ValkeyResult
	for i := 0; i < retries; i++ {
		result = vc.Client.Do(ctx, build())
		err := result.Error()
		if err == nil || valkey.IsValkeyNil(err) {
			break
		}

		slog.Warn("[ValkeyClient] Do failed",
			slog.Int("attempt", i+1),
			slog.String("error", err.Error()))

		if i == retries-1 || !vc.wait(ctx) {
			break
		}
	}

	return result
}

// wait sleeps for the retry delay and reports false if ctx ended first.
func (vc *ValkeySessionCache) wait(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(vc.retryDelay):
		return true
	}
}
