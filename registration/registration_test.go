package registration

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Adedunmol/face-kiosk/api/client"
	"github.com/Adedunmol/face-kiosk/api/models"
	"github.com/Adedunmol/face-kiosk/camera"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var validForm = models.RegisterForm{
	Username: "ada",
	Age:      "36",
	Phone:    "5550001111",
	Address:  "12 Analytical Way",
	Email:    "ada@example.com",
	Gender:   "female",
}

type fakeCamera struct {
	err      error
	captures int
}

func (c *fakeCamera) IsReady() bool { return true }

func (c *fakeCamera) CaptureStill() (camera.ImageBlob, error) {
	c.captures++
	if c.err != nil {
		return camera.ImageBlob{}, c.err
	}
	return camera.NewJPEG([]byte{0xFF, 0xD8, byte(c.captures), 0xFF, 0xD9}), nil
}

type fakeSubmitter struct {
	mu    sync.Mutex
	resp  models.RegisterUserResponse
	err   error
	forms []models.RegisterForm
	hold  chan struct{}
	entry chan struct{}
}

func (s *fakeSubmitter) Register(ctx context.Context, form models.RegisterForm, _ camera.ImageBlob) (models.RegisterUserResponse, error) {
	s.mu.Lock()
	s.forms = append(s.forms, form)
	s.mu.Unlock()
	if s.entry != nil {
		close(s.entry)
	}
	if s.hold != nil {
		<-s.hold
	}
	return s.resp, s.err
}

type fakeArchiver struct {
	url string
	err error
	ids []string
}

func (a *fakeArchiver) Archive(_ context.Context, _ camera.ImageBlob, id string) (string, error) {
	a.ids = append(a.ids, id)
	return a.url, a.err
}

func TestValidate(t *testing.T) {
	still := camera.NewJPEG([]byte{0xFF, 0xD8, 0xFF, 0xD9})

	tests := []struct {
		name   string
		mutate func(f *models.RegisterForm)
		image  *camera.ImageBlob
		want   FieldErrors
	}{
		{"Valid form", func(f *models.RegisterForm) {}, &still, FieldErrors{}},
		{"Blank username", func(f *models.RegisterForm) { f.Username = "   " }, &still, FieldErrors{"username": "Username is required"}},
		{"Minor", func(f *models.RegisterForm) { f.Age = "17" }, &still, FieldErrors{"age": "Age must be 18 or above"}},
		{"Age exactly eighteen", func(f *models.RegisterForm) { f.Age = "18" }, &still, FieldErrors{}},
		{"Age not a number", func(f *models.RegisterForm) { f.Age = "old" }, &still, FieldErrors{"age": "Age must be 18 or above"}},
		{"Short phone", func(f *models.RegisterForm) { f.Phone = "555000111" }, &still, FieldErrors{"phone": "Enter valid 10-digit phone number"}},
		{"Phone with letters", func(f *models.RegisterForm) { f.Phone = "555000111a" }, &still, FieldErrors{"phone": "Enter valid 10-digit phone number"}},
		{"Email without domain dot", func(f *models.RegisterForm) { f.Email = "ada@example" }, &still, FieldErrors{"email": "Enter valid email"}},
		{"No gender", func(f *models.RegisterForm) { f.Gender = "" }, &still, FieldErrors{"gender": "Select gender"}},
		{"No picture", func(f *models.RegisterForm) {}, nil, FieldErrors{"image": "Please take a picture"}},
		{"Empty picture", func(f *models.RegisterForm) {}, &camera.ImageBlob{}, FieldErrors{"image": "Please take a picture"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := validForm
			tt.mutate(&form)
			assert.Equal(t, tt.want, Validate(form, tt.image))
		})
	}
}

func TestValidateReportsEveryViolation(t *testing.T) {
	errs := Validate(models.RegisterForm{}, nil)
	assert.Len(t, errs, 7)

	err := errs.Err()
	require.Error(t, err)
	assert.Equal(t,
		"address: Address is required; age: Age must be 18 or above; email: Enter valid email; "+
			"gender: Select gender; image: Please take a picture; phone: Enter valid 10-digit phone number; "+
			"username: Username is required",
		err.Error())
}

func TestCaptureToggles(t *testing.T) {
	cam := &fakeCamera{}
	f := NewFlow(cam, &fakeSubmitter{})

	captured, err := f.Capture()
	require.NoError(t, err)
	assert.True(t, captured)
	assert.True(t, f.Snapshot().HasStill)

	captured, err = f.Capture()
	require.NoError(t, err)
	assert.False(t, captured, "second press returns to the live feed")
	assert.False(t, f.Snapshot().HasStill)
	assert.Equal(t, 1, cam.captures)
}

func TestCaptureFailureKeepsLiveFeed(t *testing.T) {
	f := NewFlow(&fakeCamera{err: camera.ErrCaptureUnavailable}, &fakeSubmitter{})

	_, err := f.Capture()
	assert.ErrorIs(t, err, camera.ErrCaptureUnavailable)
	assert.False(t, f.Snapshot().HasStill)
}

func TestSubmitInvalidFormDoesNotSend(t *testing.T) {
	sub := &fakeSubmitter{}
	f := NewFlow(&fakeCamera{}, sub)

	_, err := f.Submit(context.Background(), validForm)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, FieldErrors{"image": "Please take a picture"}, verr.Fields)
	assert.Empty(t, sub.forms)
	assert.Equal(t, verr.Fields, f.Snapshot().Errors)
}

func TestSubmitCreatedClearsForm(t *testing.T) {
	sub := &fakeSubmitter{resp: models.RegisterUserResponse{Success: true, Message: "User added", ID: "4f1c"}}
	arch := &fakeArchiver{url: "https://res.example.com/face-kiosk/4f1c.jpg"}
	f := NewFlow(&fakeCamera{}, sub, WithArchiver(arch))
	_, err := f.Capture()
	require.NoError(t, err)

	outcome, err := f.Submit(context.Background(), validForm)
	require.NoError(t, err)
	assert.Equal(t, Created, outcome.Status)
	assert.Equal(t, "4f1c", outcome.ID)
	assert.Equal(t, arch.url, outcome.ArchiveURL)
	assert.Equal(t, []string{"4f1c"}, arch.ids)

	s := f.Snapshot()
	assert.Equal(t, models.RegisterForm{}, s.Form)
	assert.False(t, s.HasStill)
	require.NotNil(t, s.Last)
	assert.Equal(t, Created, s.Last.Status)
}

func TestSubmitArchiveFailureStillCreates(t *testing.T) {
	sub := &fakeSubmitter{resp: models.RegisterUserResponse{Success: true, ID: "4f1c"}}
	f := NewFlow(&fakeCamera{}, sub, WithArchiver(&fakeArchiver{err: errors.New("quota exceeded")}))
	_, _ = f.Capture()

	outcome, err := f.Submit(context.Background(), validForm)
	require.NoError(t, err)
	assert.Equal(t, Created, outcome.Status)
	assert.Empty(t, outcome.ArchiveURL)
}

func TestSubmitDuplicateKeepsForm(t *testing.T) {
	sub := &fakeSubmitter{resp: models.RegisterUserResponse{Success: false, Error: "duplicate"}}
	f := NewFlow(&fakeCamera{}, sub)
	_, _ = f.Capture()

	outcome, err := f.Submit(context.Background(), validForm)
	require.NoError(t, err)
	assert.Equal(t, DuplicateRejected, outcome.Status)
	assert.Equal(t, "duplicate", outcome.Message)

	s := f.Snapshot()
	assert.Equal(t, validForm, s.Form)
	assert.True(t, s.HasStill)
}

func TestSubmitDuplicateFallbackMessage(t *testing.T) {
	f := NewFlow(&fakeCamera{}, &fakeSubmitter{})
	_, _ = f.Capture()

	outcome, err := f.Submit(context.Background(), validForm)
	require.NoError(t, err)
	assert.Equal(t, DuplicateRejected, outcome.Status)
	assert.Equal(t, duplicateFallback, outcome.Message)
}

func TestSubmitTransportErrorKeepsForm(t *testing.T) {
	sub := &fakeSubmitter{err: &client.TransportError{StatusCode: 500, Detail: "boom"}}
	f := NewFlow(&fakeCamera{}, sub)
	_, _ = f.Capture()

	_, err := f.Submit(context.Background(), validForm)
	assert.True(t, client.IsTransportError(err))

	s := f.Snapshot()
	assert.Equal(t, validForm, s.Form)
	assert.True(t, s.HasStill)
	assert.False(t, s.Submitting)
}

func TestSubmitOneAtATime(t *testing.T) {
	sub := &fakeSubmitter{
		resp:  models.RegisterUserResponse{Success: true, ID: "4f1c"},
		hold:  make(chan struct{}),
		entry: make(chan struct{}),
	}
	f := NewFlow(&fakeCamera{}, sub)
	_, _ = f.Capture()

	done := make(chan error, 1)
	go func() {
		_, err := f.Submit(context.Background(), validForm)
		done <- err
	}()
	<-sub.entry

	assert.True(t, f.Snapshot().Submitting)
	_, err := f.Submit(context.Background(), validForm)
	assert.ErrorIs(t, err, ErrSubmissionInFlight)

	close(sub.hold)
	require.NoError(t, <-done)
	assert.Len(t, sub.forms, 1)
}

func TestRefusedSubmitKeepsStoredForm(t *testing.T) {
	sub := &fakeSubmitter{
		resp:  models.RegisterUserResponse{Success: false, Error: "duplicate"},
		hold:  make(chan struct{}),
		entry: make(chan struct{}),
	}
	f := NewFlow(&fakeCamera{}, sub)
	_, _ = f.Capture()

	done := make(chan error, 1)
	go func() {
		_, err := f.Submit(context.Background(), validForm)
		done <- err
	}()
	<-sub.entry

	other := validForm
	other.Username = "grace"
	_, err := f.Submit(context.Background(), other)
	require.ErrorIs(t, err, ErrSubmissionInFlight)
	assert.Equal(t, "ada", f.Snapshot().Form.Username)

	close(sub.hold)
	require.NoError(t, <-done)

	s := f.Snapshot()
	assert.Equal(t, validForm, s.Form)
	require.NotNil(t, s.Last)
	assert.Equal(t, DuplicateRejected, s.Last.Status)
	assert.Equal(t, []models.RegisterForm{validForm}, sub.forms)
}
