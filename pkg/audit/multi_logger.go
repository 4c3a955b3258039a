package audit

import (
	"context"
	"fmt"
	"sync"
)

// MultiLogger fans each record out to several sinks. A failing sink does not
// stop the others; the first error is returned.
type MultiLogger struct {
	loggers []Logger
	async   bool
	wg      sync.WaitGroup
	errChan chan error
}

// NewMultiLogger creates a multi-logger. Writes are asynchronous by default.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{
		loggers: loggers,
		async:   true,
		errChan: make(chan error, len(loggers)),
	}
}

// SetAsync switches between asynchronous and synchronous fan-out.
func (m *MultiLogger) SetAsync(async bool) {
	m.async = async
}

// Log writes the record to every sink.
func (m *MultiLogger) Log(ctx context.Context, record *Record) error {
	if len(m.loggers) == 0 {
		return nil
	}

	if m.async {
		for _, logger := range m.loggers {
			m.wg.Add(1)
			go func(l Logger) {
				defer m.wg.Done()
				if err := l.Log(ctx, record); err != nil {
					select {
					case m.errChan <- err:
					default:
						// channel full, drop
					}
				}
			}(logger)
		}
		return nil
	}

	var firstErr error
	for _, logger := range m.loggers {
		if err := logger.Log(ctx, record); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Wait blocks until all pending async writes finish.
func (m *MultiLogger) Wait() {
	m.wg.Wait()
}

// Errors drains and returns errors collected from async writes.
func (m *MultiLogger) Errors() []error {
	var errs []error
	for {
		select {
		case err := <-m.errChan:
			errs = append(errs, err)
		default:
			return errs
		}
	}
}

// Close waits for pending writes and closes every sink.
func (m *MultiLogger) Close() error {
	m.wg.Wait()

	var firstErr error
	for _, logger := range m.loggers {
		if err := logger.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close logger: %w", err)
		}
	}
	return firstErr
}
