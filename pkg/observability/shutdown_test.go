package observability

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestNewShutdownManager(t *testing.T) {
	tests := []struct {
		name            string
		timeout         time.Duration
		expectedTimeout time.Duration
	}{
		{
			name:            "with custom timeout",
			timeout:         10 * time.Second,
			expectedTimeout: 10 * time.Second,
		},
		{
			name:            "with zero timeout uses default",
			timeout:         0,
			expectedTimeout: 30 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewLogger(InfoLevel, &bytes.Buffer{})
			server := &http.Server{}

			sm := NewShutdownManager(logger, server, tt.timeout)

			if sm == nil {
				t.Fatal("Expected non-nil shutdown manager")
			}
			if sm.shutdownTimeout != tt.expectedTimeout {
				t.Errorf("Expected timeout %v, got %v", tt.expectedTimeout, sm.shutdownTimeout)
			}
			if len(sm.shutdownFuncs) != 0 {
				t.Error("Expected empty shutdown functions slice")
			}
		})
	}
}

func TestRegisterShutdownFunc(t *testing.T) {
	logger := NewLogger(InfoLevel, &bytes.Buffer{})
	sm := NewShutdownManager(logger, nil, 5*time.Second)

	sm.RegisterShutdownFunc(func(ctx context.Context) error { return nil })
	sm.RegisterShutdownFunc(func(ctx context.Context) error { return nil })

	if len(sm.shutdownFuncs) != 2 {
		t.Errorf("Expected 2 shutdown functions, got %d", len(sm.shutdownFuncs))
	}

	// concurrent registration
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sm.RegisterShutdownFunc(func(ctx context.Context) error { return nil })
		}()
	}
	wg.Wait()

	if len(sm.shutdownFuncs) != 12 {
		t.Errorf("Expected 12 shutdown functions, got %d", len(sm.shutdownFuncs))
	}
}

func TestShutdown_FunctionExecution(t *testing.T) {
	tests := []struct {
		name           string
		funcs          []ShutdownFunc
		expectedErrors int
	}{
		{
			name: "successful shutdown functions",
			funcs: []ShutdownFunc{
				func(ctx context.Context) error { return nil },
				func(ctx context.Context) error { return nil },
			},
			expectedErrors: 0,
		},
		{
			name: "one failing function",
			funcs: []ShutdownFunc{
				func(ctx context.Context) error { return errors.New("shutdown error 1") },
				func(ctx context.Context) error { return nil },
			},
			expectedErrors: 1,
		},
		{
			name: "all failing functions",
			funcs: []ShutdownFunc{
				func(ctx context.Context) error { return errors.New("error 1") },
				func(ctx context.Context) error { return errors.New("error 2") },
				func(ctx context.Context) error { return errors.New("error 3") },
			},
			expectedErrors: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewLogger(InfoLevel, io.Discard)
			sm := NewShutdownManager(logger, nil, 5*time.Second)

			for _, fn := range tt.funcs {
				sm.RegisterShutdownFunc(fn)
			}

			err := sm.Shutdown()

			if tt.expectedErrors > 0 {
				if err == nil {
					t.Fatal("Expected error but got nil")
				}
				expectedMsg := fmt.Sprintf("shutdown completed with %d errors", tt.expectedErrors)
				if err.Error() != expectedMsg {
					t.Errorf("Expected error message %q, got %q", expectedMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}

func TestShutdown_HTTPServer(t *testing.T) {
	logger := NewLogger(InfoLevel, io.Discard)

	server := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	server.Start()

	sm := NewShutdownManager(logger, server.Config, 5*time.Second)

	if err := sm.Shutdown(); err != nil {
		t.Errorf("Expected no error but got: %v", err)
	}
}

func TestShutdown_Timeout(t *testing.T) {
	logger := NewLogger(InfoLevel, io.Discard)
	sm := NewShutdownManager(logger, nil, 500*time.Millisecond)

	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		select {
		case <-time.After(2 * time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	start := time.Now()
	err := sm.Shutdown()
	elapsed := time.Since(start)

	if err == nil {
		t.Error("Expected timeout error but got nil")
	}
	if err.Error() != "shutdown timeout reached" {
		t.Errorf("Expected 'shutdown timeout reached' error, got: %v", err)
	}
	if elapsed > 1*time.Second {
		t.Errorf("Shutdown took too long: %v", elapsed)
	}
}

func TestShutdown_ConcurrentExecution(t *testing.T) {
	logger := NewLogger(InfoLevel, io.Discard)
	sm := NewShutdownManager(logger, nil, 5*time.Second)

	var mu sync.Mutex
	executed := 0

	for i := 0; i < 3; i++ {
		sm.RegisterShutdownFunc(func(ctx context.Context) error {
			time.Sleep(100 * time.Millisecond)
			mu.Lock()
			executed++
			mu.Unlock()
			return nil
		})
	}

	start := time.Now()
	err := sm.Shutdown()
	elapsed := time.Since(start)

	if err != nil {
		t.Errorf("Expected no error but got: %v", err)
	}

	// concurrent run takes ~100ms, sequential would take ~300ms
	if elapsed > 250*time.Millisecond {
		t.Error("Functions did not run concurrently")
	}

	mu.Lock()
	defer mu.Unlock()
	if executed != 3 {
		t.Errorf("Expected 3 functions to execute, got %d", executed)
	}
}

func TestShutdown_NilFunctionsSkipped(t *testing.T) {
	logger := NewLogger(InfoLevel, io.Discard)
	sm := NewShutdownManager(logger, nil, 5*time.Second)

	sm.RegisterShutdownFunc(nil)
	sm.RegisterShutdownFunc(nil)

	if err := sm.Shutdown(); err != nil {
		t.Errorf("Expected no error but got: %v", err)
	}
}

func TestShutdown_ContextDeadline(t *testing.T) {
	logger := NewLogger(InfoLevel, io.Discard)
	sm := NewShutdownManager(logger, nil, 2*time.Second)

	var hasDeadline bool
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		_, hasDeadline = ctx.Deadline()
		return nil
	})

	if err := sm.Shutdown(); err != nil {
		t.Errorf("Expected no error but got: %v", err)
	}
	if !hasDeadline {
		t.Error("Context should have a deadline")
	}
}
