package detector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Adedunmol/face-kiosk/camera"
	"github.com/Adedunmol/face-kiosk/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedClassifier maps the first byte of a frame to a canned confidence.
// A negative confidence means no face, 0xEE means a detection error.
type scriptedClassifier struct{}

func (scriptedClassifier) Detect(frame []byte) ([]core.Detection, error) {
	switch frame[0] {
	case 0xEE:
		return nil, errors.New("corrupt frame")
	case 0x00:
		return nil, nil
	default:
		return []core.Detection{{Confidence: float64(frame[0]) / 100}}, nil
	}
}

type chanSource chan camera.ImageBlob

func (c chanSource) Frames() <-chan camera.ImageBlob { return c }

func collect(t *testing.T, frames ...byte) []bool {
	t.Helper()
	src := make(chanSource, len(frames))
	for _, f := range frames {
		src <- camera.ImageBlob{Data: []byte{f}}
	}
	close(src)

	var mu sync.Mutex
	var results []bool
	d := New(scriptedClassifier{}, 0.9)
	require.NoError(t, d.Start(context.Background(), src, func(present bool) {
		mu.Lock()
		results = append(results, present)
		mu.Unlock()
	}))

	require.Eventually(t, func() bool { return !d.Active() }, time.Second, 5*time.Millisecond)
	d.Stop()

	mu.Lock()
	defer mu.Unlock()
	return results
}

func TestDetectorAppliesConfidenceFloor(t *testing.T) {
	// 0.50 is below the floor, 0.90 and 0.95 pass, 0xEE fails to decode.
	got := collect(t, 0x00, 50, 90, 0xEE, 95)
	assert.Equal(t, []bool{false, false, true, false, true}, got)
}

func TestDetectorWithoutClassifier(t *testing.T) {
	d := New(nil, 0.9)
	err := d.Start(context.Background(), make(chanSource), func(bool) {})
	assert.ErrorIs(t, err, ErrDetectionInit)
}

func TestDetectorStartTwice(t *testing.T) {
	src := make(chanSource)
	d := New(scriptedClassifier{}, 0.9)
	require.NoError(t, d.Start(context.Background(), src, func(bool) {}))
	defer d.Stop()

	assert.True(t, d.Active())
	assert.ErrorIs(t, d.Start(context.Background(), src, func(bool) {}), ErrAlreadyActive)
}

func TestDetectorStopSilencesCallbacks(t *testing.T) {
	src := make(chanSource, 1)
	d := New(scriptedClassifier{}, 0.9)

	calls := make(chan bool, 10)
	require.NoError(t, d.Start(context.Background(), src, func(p bool) { calls <- p }))

	src <- camera.ImageBlob{Data: []byte{95}}
	assert.True(t, <-calls)

	d.Stop()
	assert.False(t, d.Active())

	src <- camera.ImageBlob{Data: []byte{95}}
	select {
	case <-calls:
		t.Fatal("callback delivered after Stop")
	case <-time.After(20 * time.Millisecond):
	}
}
