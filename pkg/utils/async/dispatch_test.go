package async_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aiga-lab/mnemosyne/pkg/utils/async"
	"github.com/aiga-lab/mnemosyne/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
)

// syncBuffer guards concurrent writes from the dispatched goroutine
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitForLog(t *testing.T, buf *syncBuffer, want string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(buf.String(), want) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Errorf("log output does not contain %q: %s", want, buf.String())
}

func TestDispatch(t *testing.T) {
	t.Run("handler error is logged with context values", func(t *testing.T) {
		buf := &syncBuffer{}
		ctx := logging.With(context.Background(), slog.New(slog.NewJSONHandler(buf, nil)))

		async.Dispatch(ctx, func(ctx context.Context) error {
			return goerr.New("summary refresh failed", goerr.V("conversationID", "c1"))
		})

		waitForLog(t, buf, "summary refresh failed")
		waitForLog(t, buf, "c1")
	})

	t.Run("panic is recovered and logged", func(t *testing.T) {
		buf := &syncBuffer{}
		ctx := logging.With(context.Background(), slog.New(slog.NewJSONHandler(buf, nil)))

		async.Dispatch(ctx, func(ctx context.Context) error {
			panic("boom")
		})

		waitForLog(t, buf, "boom")
	})

	t.Run("handler runs even after the caller context is cancelled", func(t *testing.T) {
		buf := &syncBuffer{}
		ctx, cancel := context.WithCancel(
			logging.With(context.Background(), slog.New(slog.NewJSONHandler(buf, nil))))
		cancel()

		done := make(chan struct{})
		async.Dispatch(ctx, func(ctx context.Context) error {
			gt.NoError(t, ctx.Err())
			close(done)
			return nil
		})

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Error("handler did not run")
		}
	})
}
