package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/psantana5/timinghooks/pkg/logging"
)

// Manager runs registered shutdown functions in reverse registration order
type Manager struct {
	mu            sync.Mutex
	shutdownFuncs []namedFunc
	timeout       time.Duration
	logger        *logging.Logger
	done          chan struct{}
	once          sync.Once
}

type namedFunc struct {
	name string
	fn   func(context.Context) error
}

// New creates a new shutdown manager. timeout bounds the whole shutdown.
func New(timeout time.Duration, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NewLogger(logging.INFO, false)
	}
	return &Manager{
		timeout: timeout,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Register adds a shutdown function. Functions are called LIFO.
func (m *Manager) Register(name string, fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownFuncs = append(m.shutdownFuncs, namedFunc{name: name, fn: fn})
}

// Done returns a channel that is closed when shutdown starts
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Shutdown executes all registered shutdown functions and returns their
// errors joined. Only the first call does anything.
func (m *Manager) Shutdown() error {
	var err error
	m.once.Do(func() {
		close(m.done)
		err = m.run()
	})
	return err
}

func (m *Manager) run() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	var errs []error
	for i := len(m.shutdownFuncs) - 1; i >= 0; i-- {
		f := m.shutdownFuncs[i]
		m.logger.Info("stopping", map[string]interface{}{"component": f.name})
		if err := f.fn(ctx); err != nil {
			m.logger.Error("shutdown step failed", map[string]interface{}{
				"component": f.name,
				"error":     err.Error(),
			})
			errs = append(errs, fmt.Errorf("%s: %w", f.name, err))
		}
	}

	m.logger.Info("graceful shutdown complete")
	return errors.Join(errs...)
}

// WaitWithContext blocks until SIGINT/SIGTERM or ctx is done, then shuts
// down. A cancelled ctx also triggers the shutdown.
func (m *Manager) WaitWithContext(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	m.logger.Info("initiating graceful shutdown", map[string]interface{}{"cause": context.Cause(ctx).Error()})
	return m.Shutdown()
}

// StopHTTPServer creates a shutdown function for http.Server
func StopHTTPServer(server interface{ Shutdown(context.Context) error }) func(context.Context) error {
	return func(ctx context.Context) error {
		return server.Shutdown(ctx)
	}
}

// CloseResource creates a shutdown function for io.Closer
func CloseResource(closer interface{ Close() error }) func(context.Context) error {
	return func(context.Context) error {
		return closer.Close()
	}
}
