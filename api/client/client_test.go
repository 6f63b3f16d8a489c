package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Adedunmol/face-kiosk/api/models"
	"github.com/Adedunmol/face-kiosk/camera"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var still = camera.NewJPEG([]byte{0xFF, 0xD8, 0x01, 0xFF, 0xD9})

func newServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(server.URL, 5*time.Second)
}

func TestVerifyFound(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/user", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var payload models.VerifyUserPayload
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, still.DataURL(), payload.EncodedImage)

		w.Write([]byte(`{
			"message": "Embedding generated successfully",
			"embedding": {"data": [{
				"username": "ada", "age": 36, "phone": "5550001111",
				"email": "ada@example.com", "gender": "female",
				"address": "12 Analytical Way", "captured_image": "data:image/jpeg;base64,AA=="
			}]}
		}`))
	})

	verdict, err := c.Verify(context.Background(), still)
	require.NoError(t, err)
	require.True(t, verdict.Found)
	assert.Equal(t, "ada", verdict.Record.Username)
	assert.Equal(t, "36", verdict.Record.Age.String())
	assert.Equal(t, "12 Analytical Way", verdict.Record.Address)
}

func TestVerifyNotFound(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantDetail string
	}{
		{"Empty object", `{}`, ""},
		{"Empty match list", `{"embedding": {"data": []}}`, ""},
		{"Null first match", `{"message": "ok", "embedding": {"data": [null]}}`, ""},
		{"Server error string", `{"error": "list index out of range"}`, "list index out of range"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			})
			verdict, err := c.Verify(context.Background(), still)
			require.NoError(t, err)
			assert.False(t, verdict.Found)
			assert.Nil(t, verdict.Record)
			assert.Equal(t, tt.wantDetail, verdict.Detail)
		})
	}
}

func TestVerifyTransportErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantDetail string
	}{
		{"Bad request with detail", http.StatusBadRequest, `{"detail": "Face not found properly"}`, 400, "Face not found properly"},
		{"Server error plain text", http.StatusInternalServerError, "boom", 500, "boom"},
		{"Malformed body", http.StatusOK, "<html>", 0, "malformed verify response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			_, err := c.Verify(context.Background(), still)
			require.Error(t, err)

			var te *TransportError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, tt.wantStatus, te.StatusCode)
			assert.Equal(t, tt.wantDetail, te.Detail)
		})
	}
}

func TestVerifyUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := New(url, time.Second).Verify(context.Background(), still)
	assert.True(t, IsTransportError(err))
}

func TestRegisterSendsMultipartForm(t *testing.T) {
	form := models.RegisterForm{
		Username: "ada",
		Age:      "36",
		Phone:    "5550001111",
		Address:  "12 Analytical Way",
		Email:    "ada@example.com",
		Gender:   "female",
	}

	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/new_user", r.URL.Path)
		assert.NoError(t, r.ParseMultipartForm(1<<20))

		assert.Equal(t, "ada", r.FormValue("username"))
		assert.Equal(t, "36", r.FormValue("age"))
		assert.Equal(t, "5550001111", r.FormValue("phone"))
		assert.Equal(t, "12 Analytical Way", r.FormValue("address"))
		assert.Equal(t, "ada@example.com", r.FormValue("email"))
		assert.Equal(t, "female", r.FormValue("gender"))
		assert.Equal(t, still.DataURL(), r.FormValue("image"))

		w.Write([]byte(`{"success": true, "message": "User added", "id": "4f1c"}`))
	})

	resp, err := c.Register(context.Background(), form, still)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "4f1c", resp.ID)
}

func TestRegisterDuplicateIsNotAnError(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": false, "error": "duplicate"}`))
	})

	resp, err := c.Register(context.Background(), models.RegisterForm{Username: "ada"}, still)
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "duplicate", resp.Error)
}

func TestTransportErrorMessage(t *testing.T) {
	assert.Equal(t, "status 502: Bad Gateway", (&TransportError{StatusCode: 502}).Error())
	assert.Equal(t, "status 400: nope", (&TransportError{StatusCode: 400, Detail: "nope"}).Error())
}
