package receipt

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExecutor_RunsTasksInSubmissionOrder(t *testing.T) {
	e := newExecutor()
	defer e.close()

	var mu sync.Mutex
	var order []int

	for i := 0; i < 100; i++ {
		i := i
		e.submit(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}

	// do is serialized behind every submitted task.
	require.NoError(t, e.do(context.Background(), func() error { return nil }))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 100)
	for i, got := range order {
		require.Equal(t, i, got)
	}
}

func TestExecutor_DoReturnsTaskError(t *testing.T) {
	e := newExecutor()
	defer e.close()

	want := newError(CodeUnknown, "boom")
	err := e.do(context.Background(), func() error { return want })
	require.Equal(t, want, err)
}

func TestExecutor_DoHonorsContext(t *testing.T) {
	e := newExecutor()
	defer e.close()

	release := make(chan struct{})
	e.submit(func() { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := e.do(ctx, func() error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
}

func TestExecutor_CloseDrainsSubmittedTasks(t *testing.T) {
	e := newExecutor()

	var mu sync.Mutex
	ran := 0
	for i := 0; i < 10; i++ {
		e.submit(func() {
			mu.Lock()
			ran++
			mu.Unlock()
		})
	}

	e.close()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 10, ran)

	require.Equal(t, errExecutorClosed, e.do(context.Background(), func() error { return nil }))
}
