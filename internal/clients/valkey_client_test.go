package clients

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valkey-io/valkey-go"
	"github.com/valkey-io/valkey-go/mock"
	"go.uber.org/mock/gomock"
)

const testSessionKey = VALKEY_SESSION_KEY_PREFIX + "app-1"

func newMockCache(t *testing.T) (*ValkeySessionCache, *mock.Client) {
	ctrl := gomock.NewController(t)
	client := mock.NewClient(ctrl)
	cache := NewValkeySessionCacheFromClient(client)
	cache.retryDelay = time.Millisecond
	return cache, client
}

func TestValkeyLoadMiss(t *testing.T) {
	cache, client := newMockCache(t)
	client.EXPECT().
		Do(gomock.Any(), mock.Match("GET", testSessionKey)).
		Return(mock.Result(mock.ValkeyNil())).
		Times(1)

	session, found, err := cache.Load(context.Background(), "app-1")

	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, CachedSession{}, session)
}

func TestValkeyLoadHit(t *testing.T) {
	cache, client := newMockCache(t)
	client.EXPECT().
		Do(gomock.Any(), mock.Match("GET", testSessionKey)).
		Return(mock.Result(mock.ValkeyString(`{"uid":"anon-uid","refresh_token":"refresh-1"}`)))

	session, found, err := cache.Load(context.Background(), "app-1")

	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, CachedSession{UID: "anon-uid", RefreshToken: "refresh-1"}, session)
}

func TestValkeyLoadDecodeError(t *testing.T) {
	cache, client := newMockCache(t)
	client.EXPECT().
		Do(gomock.Any(), mock.Match("GET", testSessionKey)).
		Return(mock.Result(mock.ValkeyString("not-json")))

	_, found, err := cache.Load(context.Background(), "app-1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
	assert.False(t, found)
}

func TestValkeyLoadRetriesFailures(t *testing.T) {
	cache, client := newMockCache(t)
	boom := errors.New("i/o timeout")
	client.EXPECT().
		Do(gomock.Any(), mock.Match("GET", testSessionKey)).
		Return(mock.ErrorResult(boom)).
		Times(VALKEY_RETRIES)

	_, found, err := cache.Load(context.Background(), "app-1")

	assert.ErrorIs(t, err, boom)
	assert.False(t, found)
}

func TestValkeyLoadStopsRetryingWhenCanceled(t *testing.T) {
	cache, client := newMockCache(t)
	cache.retryDelay = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client.EXPECT().
		Do(gomock.Any(), mock.Match("GET", testSessionKey)).
		Return(mock.ErrorResult(context.Canceled)).
		Times(1)

	start := time.Now()
	_, _, err := cache.Load(ctx, "app-1")

	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestValkeySaveSetsValueAndTTL(t *testing.T) {
	cache, client := newMockCache(t)
	client.EXPECT().
		DoMulti(gomock.Any(),
			mock.Match("SET", testSessionKey, `{"uid":"anon-uid","refresh_token":"refresh-1"}`),
			mock.Match("EXPIRE", testSessionKey, "2592000")).
		Return([]valkey.ValkeyResult{
			mock.Result(mock.ValkeyString("OK")),
			mock.Result(mock.ValkeyInt64(1)),
		}).
		Times(1)

	err := cache.Save(context.Background(), "app-1", CachedSession{UID: "anon-uid", RefreshToken: "refresh-1"})

	require.NoError(t, err)
}

func TestValkeySaveRetriesThenFails(t *testing.T) {
	cache, client := newMockCache(t)
	boom := errors.New("connection refused")
	client.EXPECT().
		DoMulti(gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]valkey.ValkeyResult{mock.ErrorResult(boom), mock.ErrorResult(boom)}).
		Times(VALKEY_RETRIES)

	err := cache.Save(context.Background(), "app-1", CachedSession{UID: "anon-uid", RefreshToken: "refresh-1"})

	assert.ErrorIs(t, err, boom)
}

func TestValkeySaveRecoversOnRetry(t *testing.T) {
	cache, client := newMockCache(t)
	boom := errors.New("EOF")
	gomock.InOrder(
		client.EXPECT().
			DoMulti(gomock.Any(), gomock.Any(), gomock.Any()).
			Return([]valkey.ValkeyResult{mock.ErrorResult(boom), mock.ErrorResult(boom)}),
		client.EXPECT().
			DoMulti(gomock.Any(), gomock.Any(), gomock.Any()).
			Return([]valkey.ValkeyResult{mock.Result(mock.ValkeyString("OK")), mock.Result(mock.ValkeyInt64(1))}),
	)

	err := cache.Save(context.Background(), "app-1", CachedSession{UID: "anon-uid", RefreshToken: "refresh-1"})

	require.NoError(t, err)
}
