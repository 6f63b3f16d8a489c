// Package capture holds the single-shot capture gate of the identity lookup
// flow: it turns a stream of face-present verdicts into exactly one still and
// exactly one verification request per armed period.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Adedunmol/face-kiosk/api/models"
	"github.com/Adedunmol/face-kiosk/camera"
	"github.com/Adedunmol/face-kiosk/logger"
	"github.com/Adedunmol/face-kiosk/notify"
	"github.com/google/uuid"
)

const defaultVerifyTimeout = 30 * time.Second

var (
	ErrNotArmable      = errors.New("gate cannot be armed")
	ErrRetryNotAllowed = errors.New("retry is only allowed after a failed verification")
	ErrSessionClosed   = errors.New("capture session closed")
)

// Verifier submits a still to the identity-match service.
type Verifier interface {
	Verify(ctx context.Context, image camera.ImageBlob) (models.Verdict, error)
}

type Option func(*Gate)

// WithVerifyTimeout bounds each verification request.
func WithVerifyTimeout(d time.Duration) Option {
	return func(g *Gate) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func WithNotifier(n notify.Notifier) Option {
	return func(g *Gate) {
		if n != nil {
			g.notifier = n
		}
	}
}

// Gate is the capture-and-verify state machine. All transitions happen under
// mu; the Armed -> Captured step is recorded before the still is taken, so any
// verdict that arrives afterwards, concurrent or not, finds the gate past
// Armed and is dropped.
type Gate struct {
	id       string
	camera   camera.Session
	verifier Verifier
	notifier notify.Notifier
	timeout  time.Duration

	mu        sync.Mutex
	state     State
	ready     bool
	detecting bool
	face      bool
	frame     *camera.ImageBlob
	match     *models.UserRecord
	failure   *Failure
	attempts  int
	epoch     uint64
	closed    bool

	inflight sync.WaitGroup
}

func New(cam camera.Session, verifier Verifier, opts ...Option) *Gate {
	g := &Gate{
		id:       uuid.NewString(),
		camera:   cam,
		verifier: verifier,
		notifier: notify.Discard,
		timeout:  defaultVerifyTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gate) ID() string { return g.id }

// SetCameraReady records that the device is producing readable frames.
func (g *Gate) SetCameraReady() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ready = true
}

// SetDetectionActive records whether the detector is wired to the stream.
func (g *Gate) SetDetectionActive(active bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.detecting = active
}

// Arm moves Idle -> Armed. The camera must be ready and detection active.
func (g *Gate) Arm() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch {
	case g.closed:
		return ErrSessionClosed
	case g.state != Idle:
		return fmt.Errorf("%w: state is %s", ErrNotArmable, g.state)
	case !g.ready || !g.detecting:
		return fmt.Errorf("%w: camera ready=%t, detection active=%t", ErrNotArmable, g.ready, g.detecting)
	}

	g.state = Armed
	logger.Info("capture gate armed", logger.LoggerOptions{Key: "session", Data: g.id})
	return nil
}

// OnResult consumes one detector verdict. Only the first positive verdict
// seen while Armed has an effect.
func (g *Gate) OnResult(present bool) {
	g.mu.Lock()
	g.face = present
	if g.closed || g.state != Armed || !present {
		g.mu.Unlock()
		return
	}
	g.state = Captured
	g.attempts++
	epoch := g.epoch
	g.inflight.Add(1)
	g.mu.Unlock()

	g.capture(epoch)
}

// capture takes the still and, on success, dispatches the single
// verification request of this cycle.
func (g *Gate) capture(epoch uint64) {
	still, err := g.camera.CaptureStill()

	g.mu.Lock()
	if g.closed || epoch != g.epoch {
		g.mu.Unlock()
		g.inflight.Done()
		return
	}
	if err != nil {
		g.state = Failed
		g.failure = &Failure{Kind: FailureCapture, Message: err.Error()}
		g.mu.Unlock()
		g.inflight.Done()

		logger.Error("still capture failed", logger.LoggerOptions{Key: "error", Data: err})
		g.notifier.Notify(notify.Error, "Capture Failed: unable to access the camera or capture the image.")
		return
	}
	g.frame = &still
	g.state = Submitting
	g.mu.Unlock()

	logger.Info("face captured, verifying", logger.LoggerOptions{Key: "session", Data: g.id})
	g.notifier.Notify(notify.Info, "Face Detected: hold on, we are verifying your identity...")

	go g.submit(epoch, still)
}

func (g *Gate) submit(epoch uint64, still camera.ImageBlob) {
	defer g.inflight.Done()

	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	verdict, err := g.verifier.Verify(ctx, still)
	g.resolve(epoch, verdict, err)
}

func (g *Gate) resolve(epoch uint64, verdict models.Verdict, err error) {
	g.mu.Lock()
	if g.closed || epoch != g.epoch || g.state != Submitting {
		g.mu.Unlock()
		logger.Warning("dropping late verification response", logger.LoggerOptions{Key: "session", Data: g.id})
		return
	}

	var kind notify.Kind
	var message string
	switch {
	case err != nil:
		g.state = Failed
		g.failure = &Failure{Kind: FailureTransport, Message: err.Error()}
		kind = notify.Error
		message = fmt.Sprintf("Verification Failed: %s. Please check your connection or try again.", err)
	case verdict.Found && verdict.Record != nil:
		g.state = Found
		g.match = verdict.Record
		kind = notify.Success
		name := verdict.Record.Username
		if name == "" {
			name = "user"
		}
		message = fmt.Sprintf("User Found: Welcome, %s!", name)
	default:
		g.state = NotFound
		kind = notify.Warning
		message = "User Not Found: we couldn't match the face with any user."
	}
	state := g.state
	g.mu.Unlock()

	logger.Info("verification resolved",
		logger.LoggerOptions{Key: "session", Data: g.id},
		logger.LoggerOptions{Key: "state", Data: state.String()},
		logger.LoggerOptions{Key: "detail", Data: verdict.Detail},
	)
	g.notifier.Notify(kind, message)
}

// Retry re-arms a gate whose verification failed. The failed still is
// discarded so the next positive verdict takes a fresh one.
func (g *Gate) Retry() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return ErrSessionClosed
	}
	if !g.state.Resolved() || g.state.Terminal() {
		state := g.state
		g.mu.Unlock()
		return fmt.Errorf("%w: state is %s", ErrRetryNotAllowed, state)
	}
	g.epoch++
	g.frame = nil
	g.failure = nil
	g.state = Armed
	g.mu.Unlock()

	logger.Info("capture gate re-armed", logger.LoggerOptions{Key: "session", Data: g.id})
	return nil
}

// Close ends the session. Anything still outstanding resolves into a no-op.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	g.detecting = false
}

// Wait blocks until no capture or verification is outstanding.
func (g *Gate) Wait() {
	g.inflight.Wait()
}

func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Snapshot returns a copy of the session data.
func (g *Gate) Snapshot() Session {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := Session{
		ID:              g.id,
		CameraReady:     g.ready,
		DetectionActive: g.detecting,
		FaceDetected:    g.face,
		State:           g.state,
		RequestState:    g.state.RequestState(),
		Attempts:        g.attempts,
		Retryable:       !g.closed && g.state.Resolved() && !g.state.Terminal(),
		Closed:          g.closed,
	}
	if g.frame != nil {
		frame := camera.NewJPEG(g.frame.Data)
		frame.MIME = g.frame.MIME
		s.CapturedFrame = &frame
	}
	if g.match != nil {
		match := *g.match
		s.Match = &match
	}
	if g.failure != nil {
		failure := *g.failure
		s.Failure = &failure
	}
	return s
}
