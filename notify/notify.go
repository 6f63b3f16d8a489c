package notify

import (
	"sync"
	"time"

	"github.com/Adedunmol/face-kiosk/logger"
)

type Kind string

const (
	Info    Kind = "info"
	Success Kind = "success"
	Warning Kind = "warning"
	Error   Kind = "error"
)

// Notifier is the presentation capability the flows talk to. Implementations
// must be safe for concurrent use.
type Notifier interface {
	Notify(kind Kind, message string)
}

type Notification struct {
	Kind    Kind      `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Recorder logs every notification and keeps the most recent ones for a
// display to poll.
type Recorder struct {
	mu    sync.Mutex
	limit int
	items []Notification
}

func NewRecorder(limit int) *Recorder {
	if limit < 1 {
		limit = 1
	}
	return &Recorder{limit: limit}
}

func (r *Recorder) Notify(kind Kind, message string) {
	opts := []logger.LoggerOptions{{Key: "kind", Data: kind}}
	switch kind {
	case Error:
		logger.Error(message, opts...)
	case Warning:
		logger.Warning(message, opts...)
	default:
		logger.Info(message, opts...)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, Notification{Kind: kind, Message: message, At: time.Now()})
	if over := len(r.items) - r.limit; over > 0 {
		r.items = append(r.items[:0], r.items[over:]...)
	}
}

// Recent returns the retained notifications, oldest first.
func (r *Recorder) Recent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.items))
	copy(out, r.items)
	return out
}

// Discard drops every notification.
var Discard Notifier = discard{}

type discard struct{}

func (discard) Notify(Kind, string) {}
