// Package detector turns a stream of camera frames into a stream of
// face-present verdicts.
package detector

import (
	"context"
	"errors"
	"sync"

	"github.com/Adedunmol/face-kiosk/camera"
	"github.com/Adedunmol/face-kiosk/core"
	"github.com/Adedunmol/face-kiosk/logger"
)

var (
	// ErrDetectionInit means the detection capability could not be brought up.
	// It is fatal to the flow that needed it.
	ErrDetectionInit = errors.New("face detection failed to initialize")
	ErrAlreadyActive = errors.New("detector already started")
)

// Classifier reports the faces found in one encoded frame.
type Classifier interface {
	Detect(frame []byte) ([]core.Detection, error)
}

// FrameSource supplies frames until it closes the channel.
type FrameSource interface {
	Frames() <-chan camera.ImageBlob
}

// Detector feeds frames to a Classifier and reports, per processed frame,
// whether a face at or above the confidence floor was present. Results are
// delivered from a single goroutine in frame order, so callbacks never overlap.
type Detector struct {
	classifier    Classifier
	minConfidence float64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(classifier Classifier, minConfidence float64) *Detector {
	return &Detector{classifier: classifier, minConfidence: minConfidence}
}

// Start begins processing frames from src. It returns ErrDetectionInit when
// there is no classifier to run.
func (d *Detector) Start(ctx context.Context, src FrameSource, onResult func(present bool)) error {
	if d.classifier == nil {
		return ErrDetectionInit
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return ErrAlreadyActive
	}

	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})

	frames := src.Frames()
	go d.run(ctx, frames, onResult, d.done)
	return nil
}

func (d *Detector) run(ctx context.Context, frames <-chan camera.ImageBlob, onResult func(bool), done chan struct{}) {
	defer close(done)
	processed := 0

	for {
		select {
		case <-ctx.Done():
			logger.Debug("detector stopped", logger.LoggerOptions{Key: "frames", Data: processed})
			return
		case frame, ok := <-frames:
			if !ok {
				logger.Info("detector frame source closed", logger.LoggerOptions{Key: "frames", Data: processed})
				return
			}
			processed++
			present := d.present(frame.Data)
			if ctx.Err() != nil {
				return
			}
			onResult(present)
		}
	}
}

func (d *Detector) present(frame []byte) bool {
	detections, err := d.classifier.Detect(frame)
	if err != nil {
		logger.Warning("frame detection failed", logger.LoggerOptions{Key: "error", Data: err})
		return false
	}
	for _, det := range detections {
		if det.Confidence >= d.minConfidence {
			return true
		}
	}
	return false
}

// Active reports whether the detector is wired to a frame source.
func (d *Detector) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel == nil {
		return false
	}
	select {
	case <-d.done:
		return false
	default:
		return true
	}
}

// Done is closed once processing ends, either because the frame source
// closed or because the detector was stopped. It is nil before Start.
func (d *Detector) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

// Stop halts processing and waits for the in-progress callback, if any, to return.
// A stopped detector can be started again.
func (d *Detector) Stop() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel, d.done = nil, nil
	d.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
