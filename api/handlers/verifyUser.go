package handlers

import (
	"errors"
	"net/http"

	"github.com/Adedunmol/face-kiosk/capture"
	"github.com/Adedunmol/face-kiosk/kiosk"
	"github.com/Adedunmol/face-kiosk/logger"
)

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	status, ok := h.kiosk.LookupStatus()
	if !ok {
		respondWithError(w, "No lookup session is running", http.StatusNotFound)
		return
	}
	respondWithJSON(w, http.StatusOK, status)
}

// StartSession begins a new lookup, discarding whatever session or
// registration was on screen.
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	gate, err := h.kiosk.StartLookup()
	if errors.Is(err, kiosk.ErrStopped) {
		respondWithError(w, "Kiosk is shutting down", http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		logger.Error("failed to start lookup session", logger.LoggerOptions{Key: "error", Data: err})
		respondWithError(w, "Failed to start lookup session: "+err.Error(), http.StatusInternalServerError)
		return
	}

	respondWithJSON(w, http.StatusCreated, map[string]string{"id": gate.ID()})
}

// RetrySession is the user's confirmation after a failed verification.
func (h *Handler) RetrySession(w http.ResponseWriter, r *http.Request) {
	gate := h.kiosk.Lookup()
	if gate == nil {
		respondWithError(w, "No lookup session is running", http.StatusNotFound)
		return
	}

	err := gate.Retry()
	switch {
	case errors.Is(err, capture.ErrSessionClosed):
		respondWithError(w, "Lookup session has ended", http.StatusGone)
		return
	case errors.Is(err, capture.ErrRetryNotAllowed):
		respondWithError(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		respondWithError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondWithJSON(w, http.StatusOK, gate.Snapshot())
}

// GetSessionFrame returns the still that was submitted for verification.
func (h *Handler) GetSessionFrame(w http.ResponseWriter, r *http.Request) {
	gate := h.kiosk.Lookup()
	if gate == nil {
		respondWithError(w, "No lookup session is running", http.StatusNotFound)
		return
	}

	frame := gate.Snapshot().CapturedFrame
	if frame == nil {
		respondWithError(w, "No frame has been captured", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", frame.MIME)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(frame.Data)
}
