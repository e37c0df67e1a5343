package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRedis(t *testing.T) *goredis.Client {
	t.Helper()
	srv := miniredis.RunT(t)
	return goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
}

// 동시 read-merge-write가 서로의 쓰기를 지우지 않으려면
// job 락이 임계 구역을 완전히 직렬화해야 한다
func TestWithJobLockSerializesWriters(t *testing.T) {
	rdb := testRedis(t)
	ctx := context.Background()

	var mu sync.Mutex
	inside := 0
	maxInside := 0
	merged := map[string]string{}

	writer := func(key, val string) error {
		return WithJobLock(ctx, rdb, "job-1", func() error {
			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()

			// read-merge-write 흉내: 스냅샷을 읽고 잠시 있다가 병합해 쓴다
			mu.Lock()
			snapshot := make(map[string]string, len(merged))
			for k, v := range merged {
				snapshot[k] = v
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)
			snapshot[key] = val

			mu.Lock()
			merged = snapshot
			inside--
			mu.Unlock()
			return nil
		})
	}

	var wg sync.WaitGroup
	for _, k := range []string{"image_ref", "script", "clip-0", "clip-1"} {
		wg.Add(1)
		go func(k string) {
			defer wg.Done()
			require.NoError(t, writer(k, "v-"+k))
		}(k)
	}
	wg.Wait()

	// 직렬화되었다면 어느 writer의 필드도 유실되지 않는다
	assert.Equal(t, 1, maxInside)
	assert.Len(t, merged, 4)
	for _, k := range []string{"image_ref", "script", "clip-0", "clip-1"} {
		assert.Equal(t, "v-"+k, merged[k])
	}
}

func TestWithJobLockReleasesAfterFn(t *testing.T) {
	rdb := testRedis(t)
	ctx := context.Background()

	require.NoError(t, WithJobLock(ctx, rdb, "job-2", func() error { return nil }))

	exists, err := rdb.Exists(ctx, "job:merge:job-2").Result()
	require.NoError(t, err)
	assert.Zero(t, exists)

	// 락이 풀렸으니 바로 다시 잡을 수 있어야 한다
	require.NoError(t, WithJobLock(ctx, rdb, "job-2", func() error { return nil }))
}

// 다른 job의 락은 서로 간섭하지 않는다
func TestWithJobLockIsPerJob(t *testing.T) {
	rdb := testRedis(t)
	ctx := context.Background()

	require.NoError(t, rdb.SetNX(ctx, "job:merge:busy-job", "1", time.Minute).Err())

	done := make(chan error, 1)
	go func() {
		done <- WithJobLock(ctx, rdb, "other-job", func() error { return nil })
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("lock for a different job should not block")
	}
}

func TestWithJobLockHonorsContext(t *testing.T) {
	rdb := testRedis(t)

	// 다른 holder가 잡고 있는 상태
	require.NoError(t, rdb.SetNX(context.Background(), "job:merge:held", "1", time.Minute).Err())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := WithJobLock(ctx, rdb, "held", func() error {
		t.Fatal("fn must not run while the lock is held elsewhere")
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConcatLockSingleWinner(t *testing.T) {
	rdb := testRedis(t)
	ctx := context.Background()

	first, err := AcquireConcatLock(ctx, rdb, "video-1")
	require.NoError(t, err)
	assert.True(t, first)

	second, err := AcquireConcatLock(ctx, rdb, "video-1")
	require.NoError(t, err)
	assert.False(t, second)

	// 실패 경로에서 해제하면 재시도가 다시 잡을 수 있다
	ReleaseConcatLock(ctx, rdb, "video-1")
	third, err := AcquireConcatLock(ctx, rdb, "video-1")
	require.NoError(t, err)
	assert.True(t, third)
}

func TestCancelFlag(t *testing.T) {
	rdb := testRedis(t)

	assert.False(t, IsJobCancelled(rdb, "job-x"))
	require.NoError(t, SetJobCancelled(rdb, "job-x"))
	assert.True(t, IsJobCancelled(rdb, "job-x"))
}
