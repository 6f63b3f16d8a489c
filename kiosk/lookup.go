// Package kiosk runs the two camera flows, lookup and registration, and
// makes sure only one of them holds the camera at a time.
package kiosk

import (
	"context"
	"errors"
	"fmt"

	"github.com/Adedunmol/face-kiosk/camera"
	"github.com/Adedunmol/face-kiosk/capture"
	"github.com/Adedunmol/face-kiosk/detector"
	"github.com/Adedunmol/face-kiosk/logger"
	"github.com/Adedunmol/face-kiosk/notify"
	"github.com/sethvargo/go-retry"
)

// Camera is a capture device that can be opened and closed. Err reports why
// the frame feed closed when the device went away on its own.
type Camera interface {
	camera.FrameSource
	Start(ctx context.Context) error
	Err() error
	Close() error
}

// DetectorFactory builds the detector for one lookup session. A failure here
// is reported as detector.ErrDetectionInit.
type DetectorFactory func() (*detector.Detector, error)

// Lookup drives one capture-and-verify session from camera start to teardown.
type Lookup struct {
	cam         Camera
	gate        *capture.Gate
	newDetector DetectorFactory
	backoff     func() retry.Backoff
	notifier    notify.Notifier
}

func NewLookup(cam Camera, gate *capture.Gate, newDetector DetectorFactory, backoff func() retry.Backoff, notifier notify.Notifier) *Lookup {
	if notifier == nil {
		notifier = notify.Discard
	}
	return &Lookup{
		cam:         cam,
		gate:        gate,
		newDetector: newDetector,
		backoff:     backoff,
		notifier:    notifier,
	}
}

// Run opens the camera, waits for it, starts detection and arms the gate,
// then blocks until ctx is done or the camera stops producing frames. A lost
// camera is returned as camera.ErrCaptureUnavailable. Detector, gate and
// camera are torn down in that order on the way out.
func (l *Lookup) Run(ctx context.Context) error {
	if err := l.cam.Start(ctx); err != nil {
		l.notifier.Notify(notify.Error, "Camera Unavailable: unable to access webcam.")
		return fmt.Errorf("failed to start camera: %w", err)
	}
	defer l.cam.Close()
	defer l.gate.Close()

	if err := camera.WaitReady(ctx, l.cam, l.backoff()); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		l.notifier.Notify(notify.Error, "Camera Unavailable: the webcam never produced a frame.")
		return err
	}
	l.gate.SetCameraReady()
	logger.Info("camera ready", logger.LoggerOptions{Key: "session", Data: l.gate.ID()})

	det, err := l.newDetector()
	if err != nil {
		l.notifier.Notify(notify.Error, "Face Detection Unavailable: could not load the face detector.")
		if !errors.Is(err, detector.ErrDetectionInit) {
			err = fmt.Errorf("%w: %v", detector.ErrDetectionInit, err)
		}
		return err
	}
	if err := det.Start(ctx, l.cam, l.gate.OnResult); err != nil {
		l.notifier.Notify(notify.Error, "Face Detection Unavailable: could not load the face detector.")
		return err
	}
	defer det.Stop()
	l.gate.SetDetectionActive(true)

	if err := l.gate.Arm(); err != nil {
		return err
	}
	logger.Info("lookup armed", logger.LoggerOptions{Key: "session", Data: l.gate.ID()})

	select {
	case <-ctx.Done():
		return nil
	case <-det.Done():
	}
	if ctx.Err() != nil {
		return nil
	}

	l.gate.SetDetectionActive(false)
	l.gate.Wait()

	cause := l.cam.Err()
	if cause == nil {
		cause = camera.ErrStreamEnded
	}
	l.notifier.Notify(notify.Error, "Camera Unavailable: the webcam stopped sending frames.")
	return fmt.Errorf("%w: %w", camera.ErrCaptureUnavailable, cause)
}
