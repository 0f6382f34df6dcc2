// Package stress opens many realtime connections at once and reports how many
// of them succeeded.
package stress

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultHold is how long each connection stays open before disconnecting.
	DefaultHold = 2 * time.Second

	// A run passes when at least passNumerator/passDenominator connections succeed.
	passNumerator   = 4
	passDenominator = 5
)

// Conn is the part of a realtime client the runner drives.
type Conn interface {
	Connect(ctx context.Context, timeout time.Duration) bool
	Connected() bool
	Disconnect()
	LastError() error
}

// Factory builds the connection for worker id.
type Factory func(id int) Conn

// Result summarizes one stress run.
type Result struct {
	Requested int
	Succeeded int
	Ratio     float64
	Passed    bool
	Errors    []string
	Elapsed   time.Duration
}

// Summary renders "k/n connections successful".
func (r Result) Summary() string {
	return fmt.Sprintf("%d/%d connections successful", r.Succeeded, r.Requested)
}

// Option configures a Runner.
type Option func(*Runner)

// WithHold overrides how long each connection is held open.
func WithHold(d time.Duration) Option {
	return func(r *Runner) {
		r.hold = d
	}
}

// Runner fans out connection attempts and joins on all of them.
type Runner struct {
	log     logrus.FieldLogger
	factory Factory
	hold    time.Duration
}

// NewRunner creates a runner that builds connections with factory.
func NewRunner(log logrus.FieldLogger, factory Factory, opts ...Option) *Runner {
	r := &Runner{
		log:     log.WithField("component", "stress"),
		factory: factory,
		hold:    DefaultHold,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Run opens count connections in parallel, holds each one, disconnects, and
// waits for every worker before computing the result. A connection succeeds
// only if it is still open when its hold ends.
func (r *Runner) Run(ctx context.Context, count int, timeout time.Duration) Result {
	result := Result{Requested: count}

	if count <= 0 {
		return result
	}

	start := time.Now()

	var (
		mu      sync.Mutex
		g, gctx = errgroup.WithContext(ctx)
	)

	failed := func(msg string) {
		mu.Lock()
		result.Errors = append(result.Errors, msg)
		mu.Unlock()
	}

	for i := 0; i < count; i++ {
		id := i

		g.Go(func() error {
			conn := r.factory(id)

			if !conn.Connect(gctx, timeout) {
				msg := fmt.Sprintf("connection %d failed", id)
				if err := conn.LastError(); err != nil {
					msg = fmt.Sprintf("connection %d: %v", id, err)
				}

				failed(msg)

				return nil
			}

			defer conn.Disconnect()

			select {
			case <-gctx.Done():
				failed(fmt.Sprintf("connection %d: hold interrupted: %v", id, gctx.Err()))
				return nil
			case <-time.After(r.hold):
			}

			// Only a connection still open after the hold completed its cycle.
			if !conn.Connected() {
				failed(fmt.Sprintf("connection %d dropped during hold", id))
				return nil
			}

			mu.Lock()
			result.Succeeded++
			mu.Unlock()

			return nil
		})
	}

	// Workers never return errors; Wait is the join barrier.
	_ = g.Wait()

	result.Elapsed = time.Since(start)
	result.Ratio = float64(result.Succeeded) / float64(result.Requested)
	result.Passed = result.Succeeded*passDenominator >= result.Requested*passNumerator

	r.log.WithFields(logrus.Fields{
		"requested": result.Requested,
		"succeeded": result.Succeeded,
		"elapsed":   result.Elapsed,
	}).Debug("Stress run complete")

	return result
}
