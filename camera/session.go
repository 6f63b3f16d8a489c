package camera

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
)

var (
	// ErrCaptureUnavailable is returned when a still is requested before the
	// device is ready or while it has no frame to give.
	ErrCaptureUnavailable = errors.New("camera capture unavailable")
	ErrNotReady           = errors.New("camera not ready")
	// ErrStreamEnded is reported when the device stops producing frames
	// without being closed.
	ErrStreamEnded = errors.New("camera stream ended")
)

// Session is the capture device as seen by both flows.
type Session interface {
	IsReady() bool
	CaptureStill() (ImageBlob, error)
}

// FrameSource is a Session that can also stream every frame it reads.
type FrameSource interface {
	Session
	Frames() <-chan ImageBlob
}

// PollBackoff is the readiness poll schedule: a fixed interval, optionally
// capped at maxWait in total.
func PollBackoff(interval, maxWait time.Duration) retry.Backoff {
	b := retry.NewConstant(interval)
	if maxWait > 0 {
		b = retry.WithMaxDuration(maxWait, b)
	}
	return b
}

// WaitReady polls s until it reports a readable frame, the backoff gives up,
// or ctx is cancelled.
func WaitReady(ctx context.Context, s Session, b retry.Backoff) error {
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		if s.IsReady() {
			return nil
		}
		return retry.RetryableError(ErrNotReady)
	})
	if err != nil {
		return fmt.Errorf("waiting for camera: %w", err)
	}
	return nil
}
