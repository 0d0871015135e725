package locks

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// fakeRedis implements SET NX with expiry and the lease scripts in memory.
type fakeRedis struct {
	mu      sync.Mutex
	values  map[string]string
	expiry  map[string]time.Time
	setErr  error
	setNXes int
	extends int
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: make(map[string]string), expiry: make(map[string]time.Time)}
}

// live drops key once its expiry has passed. Callers hold f.mu.
func (f *fakeRedis) live(key string) (string, bool) {
	if at, ok := f.expiry[key]; ok && !time.Now().Before(at) {
		delete(f.values, key)
		delete(f.expiry, key)
	}
	v, ok := f.values[key]
	return v, ok
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value interface{}, ttl time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setNXes++
	if f.setErr != nil {
		return redis.NewBoolResult(false, f.setErr)
	}
	if _, held := f.live(key); held {
		return redis.NewBoolResult(false, nil)
	}
	f.values[key] = value.(string)
	if ttl > 0 {
		f.expiry[key] = time.Now().Add(ttl)
	}
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) release(keys []string, args []interface{}) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.live(keys[0]); ok && v == args[0].(string) {
		delete(f.values, keys[0])
		delete(f.expiry, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func (f *fakeRedis) extend(keys []string, args []interface{}) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extends++
	if v, ok := f.live(keys[0]); ok && v == args[0].(string) {
		f.expiry[keys[0]] = time.Now().Add(time.Duration(args[1].(int64)) * time.Millisecond)
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func (f *fakeRedis) Eval(_ context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	if strings.Contains(script, "PEXPIRE") {
		return f.extend(keys, args)
	}
	return f.release(keys, args)
}

func (f *fakeRedis) EvalSha(_ context.Context, sha string, keys []string, args ...interface{}) *redis.Cmd {
	if sha == extendScript.Hash() {
		return f.extend(keys, args)
	}
	return f.release(keys, args)
}

func (f *fakeRedis) EvalRO(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	return f.Eval(ctx, script, keys, args...)
}

func (f *fakeRedis) EvalShaRO(ctx context.Context, sha string, keys []string, args ...interface{}) *redis.Cmd {
	return f.EvalSha(ctx, sha, keys, args...)
}

func (f *fakeRedis) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (f *fakeRedis) ScriptLoad(_ context.Context, _ string) *redis.StringCmd {
	return redis.NewStringResult("sha", nil)
}

func (f *fakeRedis) holder(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live(redisKeyPrefix + key)
}

func TestNewRedisLockerRequiresClient(t *testing.T) {
	_, err := NewRedisLocker(nil, time.Second)
	require.Error(t, err)
}

func TestRedisLockerAcquireAndRelease(t *testing.T) {
	client := newFakeRedis()
	locker, err := NewRedisLocker(client, time.Second)
	require.NoError(t, err)

	release, err := locker.Acquire(context.Background(), AllowlistKey)
	require.NoError(t, err)

	owner, held := client.holder(AllowlistKey)
	require.True(t, held)
	require.NotEmpty(t, owner)

	release()
	_, held = client.holder(AllowlistKey)
	require.False(t, held)
}

func TestRedisLockerWaitsForHolder(t *testing.T) {
	client := newFakeRedis()
	locker, err := NewRedisLocker(client, time.Second)
	require.NoError(t, err)

	release, err := locker.Acquire(context.Background(), AllowlistKey)
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		second, err := locker.Acquire(context.Background(), AllowlistKey)
		if err == nil {
			second()
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire must wait for the first lease")
	case <-time.After(60 * time.Millisecond):
	}

	release()

	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("second acquire did not proceed after release")
	}
}

func TestRedisLockerTimesOut(t *testing.T) {
	client := newFakeRedis()
	locker, err := NewRedisLocker(client, time.Second)
	require.NoError(t, err)

	release, err := locker.Acquire(context.Background(), AllowlistKey)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()

	_, err = locker.Acquire(ctx, AllowlistKey)
	require.True(t, errors.Is(err, ErrNotAcquired))
}

func TestRedisLockerSurfacesBackendErrors(t *testing.T) {
	client := newFakeRedis()
	client.setErr = errors.New("connection refused")
	locker, err := NewRedisLocker(client, time.Second)
	require.NoError(t, err)

	_, err = locker.Acquire(context.Background(), AllowlistKey)
	require.Error(t, err)
	require.Contains(t, err.Error(), "connection refused")
	require.False(t, errors.Is(err, ErrNotAcquired))
}

func TestReleaseDoesNotDropForeignLease(t *testing.T) {
	client := newFakeRedis()
	locker, err := NewRedisLocker(client, time.Second)
	require.NoError(t, err)

	release, err := locker.Acquire(context.Background(), AllowlistKey)
	require.NoError(t, err)

	// simulate expiry followed by another process taking the lease
	client.mu.Lock()
	client.values[redisKeyPrefix+AllowlistKey] = "someone-else"
	delete(client.expiry, redisKeyPrefix+AllowlistKey)
	client.mu.Unlock()

	release()

	owner, held := client.holder(AllowlistKey)
	require.True(t, held)
	require.Equal(t, "someone-else", owner)
}

func TestRedisLockerExtendsLeaseWhileHeld(t *testing.T) {
	client := newFakeRedis()
	locker, err := NewRedisLocker(client, 60*time.Millisecond)
	require.NoError(t, err)

	release, err := locker.Acquire(context.Background(), AllowlistKey)
	require.NoError(t, err)

	// hold well past the original ttl
	time.Sleep(250 * time.Millisecond)

	_, held := client.holder(AllowlistKey)
	require.True(t, held, "lease must outlive its ttl while the holder is alive")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = locker.Acquire(ctx, AllowlistKey)
	require.ErrorIs(t, err, ErrNotAcquired)

	release()
	_, held = client.holder(AllowlistKey)
	require.False(t, held)

	client.mu.Lock()
	extends := client.extends
	client.mu.Unlock()
	require.Positive(t, extends)
}

func TestRedisLockerLeaseExpiresWithoutHolder(t *testing.T) {
	client := newFakeRedis()
	locker, err := NewRedisLocker(client, 40*time.Millisecond)
	require.NoError(t, err)

	release, err := locker.Acquire(context.Background(), AllowlistKey)
	require.NoError(t, err)

	// a crashed holder stops extending; model it by taking over the value
	client.mu.Lock()
	client.values[redisKeyPrefix+AllowlistKey] = "crashed-holder"
	client.mu.Unlock()
	release()

	time.Sleep(80 * time.Millisecond)
	_, held := client.holder(AllowlistKey)
	require.False(t, held)
}

func TestNewRedisClientRequiresAddress(t *testing.T) {
	_, err := NewRedisClient(context.Background(), RedisConfig{})
	require.Error(t, err)
}
