package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCache_SetPrefixesAndEncodes(t *testing.T) {
	db, mock := redismock.NewClientMock()
	rc := NewRedisCacheFromClient(db, "macropull")

	mock.ExpectSet("macropull:indicator:gdp_qoq", []byte(`{"value":0.4,"period":"2025K1"}`), 6*time.Hour).SetVal("OK")

	err := rc.Set(context.Background(), "indicator:gdp_qoq", payload{Value: 0.4, Period: "2025K1"}, 6*time.Hour)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_GetDecodes(t *testing.T) {
	db, mock := redismock.NewClientMock()
	rc := NewRedisCacheFromClient(db, "macropull")

	mock.ExpectGet("macropull:indicator:sek_eur").SetVal(`{"value":11.02,"period":"2025-06-23"}`)

	var got payload
	require.NoError(t, rc.Get(context.Background(), "indicator:sek_eur", &got))
	assert.InDelta(t, 11.02, got.Value, 1e-9)
	assert.Equal(t, "2025-06-23", got.Period)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_GetMissAndFailure(t *testing.T) {
	db, mock := redismock.NewClientMock()
	rc := NewRedisCacheFromClient(db, "p")

	mock.ExpectGet("p:absent").RedisNil()
	mock.ExpectGet("p:broken").SetErr(errors.New("connection reset"))

	var got payload
	assert.ErrorIs(t, rc.Get(context.Background(), "absent", &got), ErrCacheMiss)

	err := rc.Get(context.Background(), "broken", &got)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_TTL(t *testing.T) {
	db, mock := redismock.NewClientMock()
	rc := NewRedisCacheFromClient(db, "p")

	mock.ExpectPTTL("p:live").SetVal(90 * time.Second)
	mock.ExpectPTTL("p:gone").SetVal(-2)

	d, err := rc.TTL(context.Background(), "live")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	_, err = rc.TTL(context.Background(), "gone")
	assert.ErrorIs(t, err, ErrCacheMiss)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLayeredCache_PromotesFromRedis(t *testing.T) {
	db, mock := redismock.NewClientMock()
	lc := NewLayeredCache(NewRedisCacheFromClient(db, "p"), WithLayeredL1TTL(time.Minute))
	t.Cleanup(func() { _ = lc.memCache.Close() })

	mock.ExpectGet("p:k").SetVal(`{"value":1.5,"period":"x"}`)
	mock.ExpectPTTL("p:k").SetVal(30 * time.Second)

	ctx := context.Background()
	var first, second payload
	require.NoError(t, lc.Get(ctx, "k", &first))
	require.NoError(t, lc.Get(ctx, "k", &second), "second read is served by L1")

	assert.Equal(t, first, second)
	assert.InDelta(t, 1.5, second.Value, 1e-9)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLayeredCache_SetFailsWhenRedisFails(t *testing.T) {
	db, mock := redismock.NewClientMock()
	lc := NewLayeredCache(NewRedisCacheFromClient(db, "p"))
	t.Cleanup(func() { _ = lc.memCache.Close() })

	mock.ExpectSet("p:k", []byte("v"), time.Minute).SetErr(errors.New("readonly"))

	require.Error(t, lc.Set(context.Background(), "k", "v", time.Minute))

	ok, err := lc.memCache.Exists(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_Ping(t *testing.T) {
	db, m := redismock.NewClientMock()
	c := NewRedisCacheFromClient(db, "macropull")

	m.ExpectPing().SetVal("PONG")
	require.NoError(t, c.Ping(context.Background()))

	m.ExpectPing().SetErr(errors.New("connection refused"))
	require.Error(t, NewLayeredCache(c).Ping(context.Background()))
	require.NoError(t, m.ExpectationsWereMet())
}
