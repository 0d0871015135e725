package locks

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSidecarPath(t *testing.T) {
	require.Equal(t, filepath.Join("public", ".auth.json.lock"), SidecarPath(filepath.Join("public", "auth.json")))
}

func TestNewFileLockerRequiresPath(t *testing.T) {
	_, err := NewFileLocker("  ")
	require.Error(t, err)
}

func TestNewFileLockerCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", ".auth.json.lock")

	locker, err := NewFileLocker(path)
	require.NoError(t, err)

	release, err := locker.Acquire(context.Background(), AllowlistKey)
	require.NoError(t, err)
	release()
	release()
}

// Two lockers on one path stand in for the server and formgatectl running as
// separate processes.
func TestFileLockersOnSamePathExcludeEachOther(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".auth.json.lock")
	server, err := NewFileLocker(path)
	require.NoError(t, err)
	cli, err := NewFileLocker(path)
	require.NoError(t, err)

	release, err := server.Acquire(context.Background(), AllowlistKey)
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		second, err := cli.Acquire(context.Background(), AllowlistKey)
		if err == nil {
			second()
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second locker must wait for the first holder")
	case <-time.After(100 * time.Millisecond):
	}

	release()

	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("second locker did not proceed after release")
	}
}

func TestFileLockerHonoursContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".auth.json.lock")
	holder, err := NewFileLocker(path)
	require.NoError(t, err)
	waiter, err := NewFileLocker(path)
	require.NoError(t, err)

	release, err := holder.Acquire(context.Background(), AllowlistKey)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = waiter.Acquire(ctx, AllowlistKey)
	require.True(t, errors.Is(err, ErrNotAcquired))
}

func TestFileLockerNeverOverlapsHolders(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".auth.json.lock")
	lockers := make([]*FileLocker, 4)
	for i := range lockers {
		var err error
		lockers[i], err = NewFileLocker(path)
		require.NoError(t, err)
	}

	var inside, overlaps int32
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(l *FileLocker) {
			defer wg.Done()
			release, err := l.Acquire(context.Background(), AllowlistKey)
			if err != nil {
				t.Error(err)
				return
			}
			defer release()

			if atomic.AddInt32(&inside, 1) > 1 {
				atomic.AddInt32(&overlaps, 1)
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}(lockers[i%len(lockers)])
	}
	wg.Wait()

	require.Zero(t, atomic.LoadInt32(&overlaps))
}
