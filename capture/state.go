package capture

import (
	"github.com/Adedunmol/face-kiosk/api/models"
	"github.com/Adedunmol/face-kiosk/camera"
)

type State int

const (
	Idle State = iota
	Armed
	Captured
	Submitting
	Found    // Resolved{Found}
	NotFound // Resolved{NotFound}
	Failed   // Resolved{Error}
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Captured:
		return "captured"
	case Submitting:
		return "submitting"
	case Found:
		return "found"
	case NotFound:
		return "not_found"
	case Failed:
		return "error"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Resolved reports whether a verification outcome has been reached.
func (s State) Resolved() bool {
	return s == Found || s == NotFound || s == Failed
}

// Terminal reports whether the session can make no further progress.
func (s State) Terminal() bool {
	return s == Found || s == NotFound
}

type RequestState string

const (
	RequestIdle     RequestState = "idle"
	RequestInFlight RequestState = "in_flight"
	RequestFound    RequestState = "found"
	RequestNotFound RequestState = "not_found"
	RequestError    RequestState = "error"
)

// RequestState projects the gate state onto the request lifecycle.
func (s State) RequestState() RequestState {
	switch s {
	case Submitting:
		return RequestInFlight
	case Found:
		return RequestFound
	case NotFound:
		return RequestNotFound
	case Failed:
		return RequestError
	default:
		return RequestIdle
	}
}

type FailureKind string

const (
	FailureCapture   FailureKind = "capture"
	FailureTransport FailureKind = "transport"
)

// Failure explains a Resolved{Error} outcome.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

// Session is a point-in-time copy of one lookup session.
type Session struct {
	ID              string             `json:"id"`
	CameraReady     bool               `json:"camera_ready"`
	DetectionActive bool               `json:"detection_active"`
	FaceDetected    bool               `json:"face_detected"`
	CapturedFrame   *camera.ImageBlob  `json:"-"`
	State           State              `json:"state"`
	RequestState    RequestState       `json:"request_state"`
	Match           *models.UserRecord `json:"match,omitempty"`
	Failure         *Failure           `json:"failure,omitempty"`
	Attempts        int                `json:"attempts"`
	Retryable       bool               `json:"retryable"`
	Closed          bool               `json:"closed"`
}
