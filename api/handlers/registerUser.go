package handlers

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"

	"github.com/Adedunmol/face-kiosk/api/client"
	"github.com/Adedunmol/face-kiosk/api/models"
	"github.com/Adedunmol/face-kiosk/kiosk"
	"github.com/Adedunmol/face-kiosk/logger"
	"github.com/Adedunmol/face-kiosk/registration"
)

const maxFormBytes = 1 << 20

// activeRegistration returns the active flow, answering the request itself when
// there is none.
func (h *Handler) activeRegistration(w http.ResponseWriter) (*registration.Flow, bool) {
	flow, err := h.kiosk.Registration()
	if errors.Is(err, kiosk.ErrStopped) {
		respondWithError(w, "Kiosk is shutting down", http.StatusServiceUnavailable)
		return nil, false
	}
	if err != nil {
		respondWithError(w, "Camera unavailable: "+err.Error(), http.StatusServiceUnavailable)
		return nil, false
	}
	return flow, true
}

func (h *Handler) GetRegistration(w http.ResponseWriter, r *http.Request) {
	flow, ok := h.activeRegistration(w)
	if !ok {
		return
	}
	respondWithJSON(w, http.StatusOK, flow.Snapshot())
}

// CaptureStill takes a still, or discards the current one so the operator can
// retake it.
func (h *Handler) CaptureStill(w http.ResponseWriter, r *http.Request) {
	flow, ok := h.activeRegistration(w)
	if !ok {
		return
	}

	captured, err := flow.Capture()
	if err != nil {
		respondWithError(w, "Unable to capture the image: "+err.Error(), http.StatusServiceUnavailable)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]bool{"captured": captured})
}

func (h *Handler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	flow, ok := h.activeRegistration(w)
	if !ok {
		return
	}

	form, err := h.decodeForm(w, r)
	if err != nil {
		respondWithError(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	outcome, err := flow.Submit(r.Context(), form)

	var verr *registration.ValidationError
	switch {
	case errors.As(err, &verr):
		respondWithJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":  "Please fix the errors",
			"fields": verr.Fields,
		})
		return
	case errors.Is(err, registration.ErrSubmissionInFlight):
		respondWithError(w, "A registration is already being submitted", http.StatusConflict)
		return
	case client.IsTransportError(err):
		respondWithError(w, "Upload failed: "+err.Error(), http.StatusBadGateway)
		return
	case err != nil:
		logger.Error("registration failed", logger.LoggerOptions{Key: "error", Data: err})
		respondWithError(w, "Failed to register user: "+err.Error(), http.StatusInternalServerError)
		return
	}

	code := http.StatusCreated
	if outcome.Status == registration.DuplicateRejected {
		code = http.StatusOK
	}
	respondWithJSON(w, code, outcome)
}

// decodeForm accepts JSON or an url-encoded/multipart form.
func (h *Handler) decodeForm(w http.ResponseWriter, r *http.Request) (models.RegisterForm, error) {
	var form models.RegisterForm

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFormBytes)).Decode(&form)
		return form, err
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxFormBytes); err != nil {
			return form, err
		}
	} else if err := r.ParseForm(); err != nil {
		return form, err
	}

	err := h.decoder.Decode(&form, r.PostForm)
	return form, err
}
