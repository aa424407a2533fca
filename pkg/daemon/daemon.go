// Package daemon is a small lifecycle manager for the long-running
// services that make up the waytray process.
package daemon

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"go.uber.org/zap"
)

// Initializer is initialized before services are started. Returning
// an error will cancel the start of daemon services.
type Initializer interface {
	InitializeDaemon() error
}

// Terminator is terminated when the daemon gets a stop signal.
type Terminator interface {
	TerminateDaemon() error
}

// Service is run after the daemon is initialized. Serve must return once
// ctx is cancelled.
type Service interface {
	Serve(ctx context.Context)
}

// Daemon runs a set of services until it is terminated by a signal or by
// cancellation of its context.
type Daemon struct {
	Services []Service
	Logger   *zap.SugaredLogger
	Context  context.Context

	state  int32
	cancel context.CancelFunc
	errs   chan []error
}

// New builds a daemon for the given services. Services that also implement
// Initializer or Terminator take part in those phases.
func New(services ...Service) *Daemon {
	return &Daemon{Services: services}
}

// Run executes the daemon lifecycle: initializers, then all services
// concurrently, then terminators in reverse order once Terminate fires.
func (d *Daemon) Run(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&d.state, 0, 1) {
		return errors.New("already running")
	}

	for _, s := range d.Services {
		i, ok := s.(Initializer)
		if !ok {
			continue
		}
		if err := i.InitializeDaemon(); err != nil {
			return err
		}
	}

	if len(d.Services) == 0 {
		return errors.New("no services to run")
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	d.Context = ctx
	d.cancel = cancel
	d.errs = make(chan []error)

	go d.terminateOnSignal()
	go d.terminateOnContextDone()

	var wg sync.WaitGroup
	for _, service := range d.Services {
		wg.Add(1)
		go func(s Service) {
			s.Serve(ctx)
			wg.Done()
		}(service)
	}
	wg.Wait()

	errs := <-d.errs
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// Terminate cancels the daemon context and calls Terminators in reverse
// order of registration.
func (d *Daemon) Terminate() {
	if d == nil {
		return
	}
	if !atomic.CompareAndSwapInt32(&d.state, 1, 0) {
		return
	}

	if d.cancel != nil {
		d.cancel()
	}

	var errs []error
	for i := len(d.Services) - 1; i >= 0; i-- {
		t, ok := d.Services[i].(Terminator)
		if !ok {
			continue
		}
		if err := t.TerminateDaemon(); err != nil {
			if d.Logger != nil {
				d.Logger.Warnw("terminator failed", "error", err)
			}
			errs = append(errs, err)
		}
	}
	d.errs <- errs
}

func (d *Daemon) terminateOnSignal() {
	termSigs := make(chan os.Signal, 1)
	signal.Notify(termSigs, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	<-termSigs
	d.Terminate()
}

func (d *Daemon) terminateOnContextDone() {
	<-d.Context.Done()
	d.Terminate()
}
