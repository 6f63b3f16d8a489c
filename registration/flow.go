// Package registration implements the operator-driven enrolment flow: fill
// in the form, take (and retake) a still, submit both.
package registration

import (
	"context"
	"errors"
	"sync"

	"github.com/Adedunmol/face-kiosk/api/models"
	"github.com/Adedunmol/face-kiosk/camera"
	"github.com/Adedunmol/face-kiosk/logger"
	"github.com/Adedunmol/face-kiosk/notify"
)

const duplicateFallback = "User already exists. Please try with a different image."

var ErrSubmissionInFlight = errors.New("a registration is already being submitted")

type Status string

const (
	Created           Status = "created"
	DuplicateRejected Status = "duplicate_rejected"
)

type Outcome struct {
	Status     Status `json:"status"`
	ID         string `json:"id,omitempty"`
	Message    string `json:"message,omitempty"`
	ArchiveURL string `json:"archive_url,omitempty"`
}

// Submitter sends a completed registration to the identity service.
type Submitter interface {
	Register(ctx context.Context, form models.RegisterForm, image camera.ImageBlob) (models.RegisterUserResponse, error)
}

// Archiver keeps a copy of an enrolled still somewhere durable.
type Archiver interface {
	Archive(ctx context.Context, image camera.ImageBlob, id string) (string, error)
}

type Option func(*Flow)

func WithNotifier(n notify.Notifier) Option {
	return func(f *Flow) {
		if n != nil {
			f.notifier = n
		}
	}
}

func WithArchiver(a Archiver) Option {
	return func(f *Flow) { f.archiver = a }
}

// Snapshot is what a display needs to render the registration page.
type Snapshot struct {
	Form       models.RegisterForm `json:"form"`
	HasStill   bool                `json:"has_still"`
	Errors     FieldErrors         `json:"errors,omitempty"`
	Submitting bool                `json:"submitting"`
	Last       *Outcome            `json:"last,omitempty"`
}

type Flow struct {
	camera    camera.Session
	submitter Submitter
	notifier  notify.Notifier
	archiver  Archiver

	mu         sync.Mutex
	form       models.RegisterForm
	still      *camera.ImageBlob
	errors     FieldErrors
	submitting bool
	last       *Outcome
}

func NewFlow(cam camera.Session, submitter Submitter, opts ...Option) *Flow {
	f := &Flow{camera: cam, submitter: submitter, notifier: notify.Discard}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Capture toggles between the live feed and a still. With no still it takes
// one; with a still it discards it so the operator can retake.
func (f *Flow) Capture() (bool, error) {
	f.mu.Lock()
	if f.still != nil {
		f.still = nil
		f.mu.Unlock()
		return false, nil
	}
	f.mu.Unlock()

	still, err := f.camera.CaptureStill()
	if err != nil {
		f.notifier.Notify(notify.Error, "Capture Failed! Unable to access webcam or capture the image.")
		return false, err
	}

	f.mu.Lock()
	f.still = &still
	delete(f.errors, "image")
	f.mu.Unlock()

	f.notifier.Notify(notify.Success, "Picture Captured! Your image was successfully captured.")
	return true, nil
}

// Validate runs the form checks against the current form and still and
// remembers the result for display.
func (f *Flow) Validate() FieldErrors {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = Validate(f.form, f.still)
	return f.errors
}

// Submit stores form, validates it and sends the registration. Only one
// submission may be outstanding, and a refused call leaves the stored form
// untouched. The form is cleared only when the record is created.
func (f *Flow) Submit(ctx context.Context, form models.RegisterForm) (Outcome, error) {
	f.mu.Lock()
	if f.submitting {
		f.mu.Unlock()
		return Outcome{}, ErrSubmissionInFlight
	}
	f.form = form
	still := f.still
	errs := Validate(form, still)
	f.errors = errs
	if len(errs) > 0 {
		f.mu.Unlock()
		f.notifier.Notify(notify.Warning, "Please fix the errors: some fields are missing or incorrect.")
		return Outcome{}, &ValidationError{Fields: errs}
	}
	f.submitting = true
	image := *still
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.submitting = false
		f.mu.Unlock()
	}()

	resp, err := f.submitter.Register(ctx, form, image)
	if err != nil {
		logger.Error("registration submit failed", logger.LoggerOptions{Key: "error", Data: err})
		f.notifier.Notify(notify.Error, "Upload Failed: "+err.Error())
		return Outcome{}, err
	}

	if !resp.Success {
		message := resp.Error
		if message == "" {
			message = duplicateFallback
		}
		outcome := Outcome{Status: DuplicateRejected, Message: message}
		f.record(&outcome, false)
		f.notifier.Notify(notify.Warning, "Duplicate User: "+message)
		return outcome, nil
	}

	outcome := Outcome{Status: Created, ID: resp.ID, Message: resp.Message}
	if f.archiver != nil {
		url, err := f.archiver.Archive(ctx, image, resp.ID)
		if err != nil {
			logger.Warning("failed to archive registration still", logger.LoggerOptions{Key: "error", Data: err})
		} else {
			outcome.ArchiveURL = url
		}
	}
	f.record(&outcome, true)

	logger.Info("user registered", logger.LoggerOptions{Key: "id", Data: resp.ID})
	f.notifier.Notify(notify.Success, "Success! User data uploaded successfully!")
	return outcome, nil
}

func (f *Flow) record(outcome *Outcome, clear bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = outcome
	if clear {
		f.form = models.RegisterForm{}
		f.still = nil
		f.errors = nil
	}
}

func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := Snapshot{
		Form:       f.form,
		HasStill:   f.still != nil,
		Submitting: f.submitting,
	}
	if len(f.errors) > 0 {
		s.Errors = make(FieldErrors, len(f.errors))
		for k, v := range f.errors {
			s.Errors[k] = v
		}
	}
	if f.last != nil {
		last := *f.last
		s.Last = &last
	}
	return s
}
