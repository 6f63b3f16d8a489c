package kiosk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Adedunmol/face-kiosk/camera"
	"github.com/Adedunmol/face-kiosk/capture"
	"github.com/Adedunmol/face-kiosk/logger"
	"github.com/Adedunmol/face-kiosk/notify"
	"github.com/Adedunmol/face-kiosk/registration"
	"github.com/sethvargo/go-retry"
)

var ErrStopped = errors.New("kiosk is shutting down")

type flowKind string

const (
	lookupFlow       flowKind = "lookup"
	registrationFlow flowKind = "registration"
)

// Deps are the collaborators a Kiosk builds its flows from.
type Deps struct {
	NewCamera   func() Camera
	NewDetector DetectorFactory
	Verifier    capture.Verifier
	Submitter   registration.Submitter
	Archiver    registration.Archiver // optional
	Notifier    notify.Notifier

	ReadyPollInterval time.Duration
	ReadyTimeout      time.Duration
	VerifyTimeout     time.Duration
}

// LookupStatus is the lookup session as the display sees it.
type LookupStatus struct {
	capture.Session
	Running bool   `json:"running"`
	Error   string `json:"error,omitempty"`
}

type activeFlow struct {
	kind   flowKind
	cancel context.CancelFunc
	done   chan struct{}
	err    error // written before done is closed

	gate *capture.Gate
	flow *registration.Flow
}

func (a *activeFlow) finished() (bool, error) {
	select {
	case <-a.done:
		return true, a.err
	default:
		return false, nil
	}
}

// Kiosk owns the camera. Starting either flow tears down the other one first.
type Kiosk struct {
	deps Deps

	mu      sync.Mutex
	active  *activeFlow
	stopped bool
}

func New(deps Deps) *Kiosk {
	if deps.Notifier == nil {
		deps.Notifier = notify.Discard
	}
	return &Kiosk{deps: deps}
}

// Run blocks until ctx is done, then stops whichever flow is active.
func (k *Kiosk) Run(ctx context.Context) error {
	<-ctx.Done()
	k.Stop()
	return nil
}

// Stop tears down the active flow and refuses new ones.
func (k *Kiosk) Stop() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.stopped = true
	k.stopActive()
}

// stopActive must be called with mu held.
func (k *Kiosk) stopActive() {
	if k.active == nil {
		return
	}
	k.active.cancel()
	<-k.active.done
	logger.Info("flow stopped", logger.LoggerOptions{Key: "flow", Data: k.active.kind})
	k.active = nil
}

func (k *Kiosk) backoff() retry.Backoff {
	return camera.PollBackoff(k.deps.ReadyPollInterval, k.deps.ReadyTimeout)
}

// StartLookup begins a fresh lookup session, replacing any running flow.
func (k *Kiosk) StartLookup() (*capture.Gate, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.stopped {
		return nil, ErrStopped
	}
	k.stopActive()

	cam := k.deps.NewCamera()
	gate := capture.New(cam, k.deps.Verifier,
		capture.WithNotifier(k.deps.Notifier),
		capture.WithVerifyTimeout(k.deps.VerifyTimeout),
	)
	lookup := NewLookup(cam, gate, k.deps.NewDetector, k.backoff, k.deps.Notifier)

	ctx, cancel := context.WithCancel(context.Background())
	a := &activeFlow{kind: lookupFlow, cancel: cancel, done: make(chan struct{}), gate: gate}
	go func() {
		defer close(a.done)
		if err := lookup.Run(ctx); err != nil {
			logger.Error("lookup flow failed",
				logger.LoggerOptions{Key: "session", Data: gate.ID()},
				logger.LoggerOptions{Key: "error", Data: err},
			)
			a.err = err
		}
	}()
	k.active = a

	logger.Info("lookup session started", logger.LoggerOptions{Key: "session", Data: gate.ID()})
	return gate, nil
}

// Lookup returns the current lookup gate, or nil when lookup is not the
// active flow.
func (k *Kiosk) Lookup() *capture.Gate {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.active == nil || k.active.kind != lookupFlow {
		return nil
	}
	return k.active.gate
}

func (k *Kiosk) LookupStatus() (LookupStatus, bool) {
	k.mu.Lock()
	a := k.active
	k.mu.Unlock()
	if a == nil || a.kind != lookupFlow {
		return LookupStatus{}, false
	}

	status := LookupStatus{Session: a.gate.Snapshot()}
	done, err := a.finished()
	status.Running = !done
	if err != nil {
		status.Error = err.Error()
	}
	return status, true
}

// Registration returns the active registration flow, starting one if another
// flow (or none) is active.
func (k *Kiosk) Registration() (*registration.Flow, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.active != nil && k.active.kind == registrationFlow {
		return k.active.flow, nil
	}
	return k.startRegistration()
}

func (k *Kiosk) startRegistration() (*registration.Flow, error) {
	if k.stopped {
		return nil, ErrStopped
	}
	k.stopActive()

	ctx, cancel := context.WithCancel(context.Background())
	cam := k.deps.NewCamera()
	if err := cam.Start(ctx); err != nil {
		cancel()
		k.deps.Notifier.Notify(notify.Error, "Camera Unavailable: unable to access webcam.")
		return nil, fmt.Errorf("failed to start camera: %w", err)
	}

	opts := []registration.Option{registration.WithNotifier(k.deps.Notifier)}
	if k.deps.Archiver != nil {
		opts = append(opts, registration.WithArchiver(k.deps.Archiver))
	}
	flow := registration.NewFlow(cam, k.deps.Submitter, opts...)

	a := &activeFlow{kind: registrationFlow, cancel: cancel, done: make(chan struct{}), flow: flow}
	go func() {
		defer close(a.done)
		<-ctx.Done()
		cam.Close()
	}()
	k.active = a

	logger.Info("registration started")
	return flow, nil
}
