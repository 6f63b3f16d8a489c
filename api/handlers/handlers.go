// Package handlers serves the local kiosk surface: the display polls it for
// state and the operator drives the two flows through it.
package handlers

import (
	"net/http"

	"github.com/Adedunmol/face-kiosk/capture"
	"github.com/Adedunmol/face-kiosk/kiosk"
	"github.com/Adedunmol/face-kiosk/notify"
	"github.com/Adedunmol/face-kiosk/registration"
	"github.com/gorilla/schema"
)

// Kiosk is the part of kiosk.Kiosk the handlers drive.
type Kiosk interface {
	StartLookup() (*capture.Gate, error)
	Lookup() *capture.Gate
	LookupStatus() (kiosk.LookupStatus, bool)
	Registration() (*registration.Flow, error)
}

type Handler struct {
	kiosk         Kiosk
	notifications *notify.Recorder
	decoder       *schema.Decoder
}

func New(k Kiosk, notifications *notify.Recorder) *Handler {
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)
	return &Handler{kiosk: k, notifications: notifications, decoder: decoder}
}

// Routes registers every endpoint on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /session", h.GetSession)
	mux.HandleFunc("POST /session", h.StartSession)
	mux.HandleFunc("POST /session/retry", h.RetrySession)
	mux.HandleFunc("GET /session/frame", h.GetSessionFrame)

	mux.HandleFunc("GET /register", h.GetRegistration)
	mux.HandleFunc("POST /register/capture", h.CaptureStill)
	mux.HandleFunc("POST /register", h.RegisterUser)

	mux.HandleFunc("GET /notifications", h.GetNotifications)
}

func (h *Handler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.notifications.Recent())
}
