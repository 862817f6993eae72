package shutdown

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"glance/internal/pkg/logger"
)

func newTestLogger() *logger.Logger {
	var buf bytes.Buffer
	return logger.New(logger.Config{
		Level:  "debug",
		Format: "json",
		Output: &buf,
	})
}

func TestNewManager(t *testing.T) {
	log := newTestLogger()

	t.Run("with default timeout", func(t *testing.T) {
		mgr := NewManager(log, 0)
		if mgr == nil {
			t.Fatal("expected manager to be non-nil")
		}
		if mgr.timeout != 30*time.Second {
			t.Errorf("expected default 30s timeout, got %s", mgr.timeout)
		}
	})

	t.Run("with custom timeout", func(t *testing.T) {
		mgr := NewManager(log, 10*time.Second)
		if mgr.timeout != 10*time.Second {
			t.Errorf("expected 10s timeout, got %s", mgr.timeout)
		}
	})
}

func TestRegister(t *testing.T) {
	log := newTestLogger()
	mgr := NewManager(log, 5*time.Second)

	mgr.Register("test", func(ctx context.Context) error {
		return nil
	})

	if len(mgr.handlers) != 1 {
		t.Errorf("expected 1 handler, got %d", len(mgr.handlers))
	}
	if mgr.handlers[0].Name != "test" {
		t.Errorf("expected handler name 'test', got %s", mgr.handlers[0].Name)
	}
}

func TestShutdown(t *testing.T) {
	log := newTestLogger()

	t.Run("runs all handlers", func(t *testing.T) {
		mgr := NewManager(log, 5*time.Second)

		var mu sync.Mutex
		var ran []string
		for _, name := range []string{"a", "b", "c"} {
			n := name
			mgr.Register(n, func(ctx context.Context) error {
				mu.Lock()
				ran = append(ran, n)
				mu.Unlock()
				return nil
			})
		}

		mgr.Shutdown()

		mu.Lock()
		defer mu.Unlock()
		if len(ran) != 3 {
			t.Errorf("expected 3 handlers to run, got %d", len(ran))
		}
	})

	t.Run("handler error does not block others", func(t *testing.T) {
		mgr := NewManager(log, 5*time.Second)

		var ok bool
		mgr.Register("failing", func(ctx context.Context) error {
			return fmt.Errorf("cleanup failed")
		})
		mgr.Register("healthy", func(ctx context.Context) error {
			ok = true
			return nil
		})

		mgr.Shutdown()

		if !ok {
			t.Error("expected healthy handler to run despite failing sibling")
		}
	})

	t.Run("closes done channel", func(t *testing.T) {
		mgr := NewManager(log, time.Second)
		mgr.Shutdown()

		select {
		case <-mgr.Done():
		case <-time.After(time.Second):
			t.Error("expected done channel to be closed")
		}
	})

	t.Run("slow handler hits timeout", func(t *testing.T) {
		mgr := NewManager(log, 50*time.Millisecond)
		mgr.Register("slow", func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})

		start := time.Now()
		mgr.Shutdown()
		if elapsed := time.Since(start); elapsed > 2*time.Second {
			t.Errorf("shutdown took too long: %s", elapsed)
		}
	})
}

func TestContext(t *testing.T) {
	log := newTestLogger()
	mgr := NewManager(log, time.Second)

	ctx := mgr.Context()
	select {
	case <-ctx.Done():
		t.Fatal("context canceled before shutdown")
	default:
	}

	mgr.Shutdown()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Error("expected context to be canceled after shutdown")
	}
}
