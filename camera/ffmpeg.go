package camera

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/Adedunmol/face-kiosk/logger"
)

const megabyte = 1024 * 1024

var (
	jpegSOI = []byte{0xFF, 0xD8} // Start of Image
	jpegEOI = []byte{0xFF, 0xD9} // End of Image
)

type Options struct {
	Device string
	Format string
	Width  int
	Height int
}

// FFmpegSession reads MJPEG frames from a capture device through ffmpeg.
// It keeps the most recent frame for stills and, once Frames has been called,
// pushes every frame to the returned channel, dropping frames the consumer
// is too slow to take.
type FFmpegSession struct {
	opts Options

	cmd    *exec.Cmd
	stderr bytes.Buffer

	mu     sync.RWMutex
	latest []byte

	ready   atomic.Bool
	feeding atomic.Bool
	frames  chan ImageBlob
	done    chan struct{}

	closeOnce sync.Once
	cancel    context.CancelFunc
	err       error
}

func NewFFmpegSession(opts Options) *FFmpegSession {
	return &FFmpegSession{
		opts:   opts,
		frames: make(chan ImageBlob, 1),
		done:   make(chan struct{}),
	}
}

// Args returns the ffmpeg command line used to open the device.
func (s *FFmpegSession) Args() []string {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if s.opts.Format != "" {
		args = append(args, "-f", s.opts.Format)
	}
	if s.opts.Width > 0 && s.opts.Height > 0 {
		args = append(args, "-video_size", strconv.Itoa(s.opts.Width)+"x"+strconv.Itoa(s.opts.Height))
	}
	return append(args, "-i", s.opts.Device, "-f", "image2pipe", "-vcodec", "mjpeg", "-")
}

// Start spawns ffmpeg and returns immediately. Readiness arrives later, with
// the first complete frame.
func (s *FFmpegSession) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.cmd = exec.CommandContext(ctx, "ffmpeg", s.Args()...)
	s.cmd.Stderr = &s.stderr

	out, err := s.cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := s.cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	logger.Info("camera stream started", logger.LoggerOptions{Key: "device", Data: s.opts.Device})

	go func() {
		s.consume(out)
		err := s.cmd.Wait()
		if ctx.Err() != nil {
			s.finish(nil)
			return
		}
		if err != nil {
			err = fmt.Errorf("%w: ffmpeg exited: %v: %s", ErrStreamEnded, err, s.stderr.String())
		} else {
			err = ErrStreamEnded
		}
		logger.Error("camera stream stopped", logger.LoggerOptions{Key: "error", Data: err})
		s.finish(err)
	}()
	return nil
}

// finish records why the stream ended before closing the frame feed, so a
// consumer that sees the feed close can read Err.
func (s *FFmpegSession) finish(err error) {
	s.err = err
	close(s.done)
	close(s.frames)
}

// consume splits r into JPEG frames until EOF.
func (s *FFmpegSession) consume(r io.Reader) {
	defer s.ready.Store(false)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, megabyte), 16*megabyte)
	scanner.Split(SplitJpeg)

	for scanner.Scan() {
		frame := NewJPEG(scanner.Bytes())

		s.mu.Lock()
		s.latest = frame.Data
		s.mu.Unlock()
		s.ready.Store(true)

		if s.feeding.Load() {
			select {
			case s.frames <- frame:
			default:
			}
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Warning("camera frame scanner failed", logger.LoggerOptions{Key: "error", Data: err})
	}
}

func (s *FFmpegSession) IsReady() bool {
	return s.ready.Load()
}

func (s *FFmpegSession) CaptureStill() (ImageBlob, error) {
	if !s.ready.Load() {
		return ImageBlob{}, ErrCaptureUnavailable
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.latest) == 0 {
		return ImageBlob{}, ErrCaptureUnavailable
	}
	return NewJPEG(s.latest), nil
}

// Frames starts the frame feed. The channel closes when the stream ends.
func (s *FFmpegSession) Frames() <-chan ImageBlob {
	s.feeding.Store(true)
	return s.frames
}

// Err reports why the stream ended, if it ended on its own.
func (s *FFmpegSession) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Close stops ffmpeg and waits for the reader to drain. Safe to call more than once.
func (s *FFmpegSession) Close() error {
	s.closeOnce.Do(func() {
		s.ready.Store(false)
		if s.cancel != nil {
			s.cancel()
			<-s.done
		}
	})
	return nil
}

// SplitJpeg is a bufio.SplitFunc that yields whole JPEG images delimited by
// the SOI (FFD8) and EOI (FFD9) markers.
func SplitJpeg(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	start := bytes.Index(data, jpegSOI)
	if start == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
	end := bytes.Index(data[start+len(jpegSOI):], jpegEOI)
	if end == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
	stop := start + len(jpegSOI) + end + len(jpegEOI)
	return stop, data[start:stop], nil
}
