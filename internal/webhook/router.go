package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/navikt/appsec-orgbot/internal/ignorable"
)

// Listener handles one event. Returned errors are logged by the Router and
// never reach the webhook sender.
type Listener func(ctx context.Context, event *Event) error

type registration struct {
	script   string
	listener Listener
}

// Router maps canonical event names to listeners. Register every listener
// before the first Dispatch.
type Router struct {
	logger    *slog.Logger
	listeners map[Name][]registration
	inflight  sync.WaitGroup
}

func NewRouter(logger *slog.Logger) *Router {
	return &Router{
		logger:    logger,
		listeners: make(map[Name][]registration),
	}
}

// On registers listener for the exact event name. script names the owner
// in log records. Unknown names are rejected so misspelled registrations
// fail at startup instead of silently never firing.
func (r *Router) On(name Name, script string, listener Listener) error {
	if !name.Known() {
		return fmt.Errorf("script %s: unknown event name %q", script, name)
	}
	r.listeners[name] = append(r.listeners[name], registration{script: script, listener: listener})
	return nil
}

// Listeners returns how many listeners are registered for name.
func (r *Router) Listeners(name Name) int {
	return len(r.listeners[name])
}

// Dispatch starts every listener registered for event.Name, plus those
// registered for Any, each in its own goroutine and returns immediately. One
// listener failing or panicking does not affect the others.
func (r *Router) Dispatch(ctx context.Context, event *Event) int {
	registrations := append([]registration(nil), r.listeners[event.Name]...)
	if event.Name != Any {
		registrations = append(registrations, r.listeners[Any]...)
	}
	for _, reg := range registrations {
		r.inflight.Add(1)
		go r.run(ctx, reg, event)
	}
	return len(registrations)
}

func (r *Router) run(ctx context.Context, reg registration, event *Event) {
	defer r.inflight.Done()
	logger := r.logger.With(
		slog.String("script", reg.script),
		slog.String("event", string(event.Name)),
		slog.String("org", event.Org),
		slog.String("repo", event.Repo),
	)
	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Error("Listener panicked", slog.Any("panic", recovered))
		}
	}()

	err := reg.listener(ctx, event)
	switch {
	case err == nil:
		logger.Debug("Listener finished")
	case ignorable.Is(err):
		logger.Debug("Listener skipped event", slog.String("reason", err.Error()))
	default:
		logger.Error("Listener failed", slog.Any("error", err))
	}
}

// Wait blocks until every dispatched listener has returned.
func (r *Router) Wait() {
	r.inflight.Wait()
}
