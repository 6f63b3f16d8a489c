package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/Adedunmol/face-kiosk/api/models"
	"github.com/Adedunmol/face-kiosk/camera"
	"github.com/Adedunmol/face-kiosk/logger"
	"github.com/gorilla/schema"
)

const maxErrorBody = 512

// formFields is the multipart field order of POST /new_user.
var formFields = []string{"username", "age", "phone", "address", "email", "gender"}

// TransportError covers every way a request can fail to produce a usable
// answer: network failure, a non-2xx status, or a body that does not parse.
type TransportError struct {
	StatusCode int // zero when no response was received
	Detail     string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Detail != "":
		return fmt.Sprintf("status %d: %s", e.StatusCode, e.Detail)
	case e.StatusCode != 0:
		return fmt.Sprintf("status %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Detail
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransportError reports whether err came from the transport layer.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// Client talks to the identity service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	encoder    *schema.Encoder
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		encoder:    schema.NewEncoder(),
	}
}

// Verify submits a still to POST /user. A response without an embedded match
// is a normal not-found verdict, not an error.
func (c *Client) Verify(ctx context.Context, image camera.ImageBlob) (models.Verdict, error) {
	body, err := json.Marshal(models.VerifyUserPayload{EncodedImage: image.DataURL()})
	if err != nil {
		return models.Verdict{}, fmt.Errorf("failed to marshal verify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/user", bytes.NewReader(body))
	if err != nil {
		return models.Verdict{}, fmt.Errorf("failed to create verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	respBody, err := c.do(req)
	if err != nil {
		return models.Verdict{}, err
	}

	var result models.VerifyUserResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return models.Verdict{}, &TransportError{Detail: "malformed verify response", Err: err}
	}

	if result.Embedding == nil || len(result.Embedding.Data) == 0 || result.Embedding.Data[0] == nil {
		if result.Error != "" {
			logger.Warning("lookup returned no match", logger.LoggerOptions{Key: "detail", Data: result.Error})
		}
		return models.Verdict{Found: false, Detail: result.Error}, nil
	}

	return models.Verdict{Found: true, Record: result.Embedding.Data[0]}, nil
}

// Register submits the registration form and still to POST /new_user.
// A success=false reply is returned as-is; it is a business outcome.
func (c *Client) Register(ctx context.Context, form models.RegisterForm, image camera.ImageBlob) (models.RegisterUserResponse, error) {
	values := map[string][]string{}
	if err := c.encoder.Encode(form, values); err != nil {
		return models.RegisterUserResponse{}, fmt.Errorf("failed to encode registration form: %w", err)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, name := range formFields {
		value := ""
		if v := values[name]; len(v) > 0 {
			value = v[0]
		}
		if err := w.WriteField(name, value); err != nil {
			return models.RegisterUserResponse{}, fmt.Errorf("failed to write field %s: %w", name, err)
		}
	}
	if err := w.WriteField("image", image.DataURL()); err != nil {
		return models.RegisterUserResponse{}, fmt.Errorf("failed to write field image: %w", err)
	}
	if err := w.Close(); err != nil {
		return models.RegisterUserResponse{}, fmt.Errorf("failed to close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/new_user", &buf)
	if err != nil {
		return models.RegisterUserResponse{}, fmt.Errorf("failed to create register request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	respBody, err := c.do(req)
	if err != nil {
		return models.RegisterUserResponse{}, err
	}

	var result models.RegisterUserResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return models.RegisterUserResponse{}, &TransportError{Detail: "malformed register response", Err: err}
	}
	return result, nil
}

// do executes req and returns the body of a 2xx response.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Error("identity service unreachable",
			logger.LoggerOptions{Key: "path", Data: req.URL.Path},
			logger.LoggerOptions{Key: "error", Data: err},
		)
		return nil, &TransportError{Detail: "no response from identity service", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{StatusCode: resp.StatusCode, Detail: "failed to read response body", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.Error("identity service returned an error status",
			logger.LoggerOptions{Key: "path", Data: req.URL.Path},
			logger.LoggerOptions{Key: "status_code", Data: resp.StatusCode},
		)
		return nil, &TransportError{StatusCode: resp.StatusCode, Detail: errorDetail(body)}
	}
	return body, nil
}

// errorDetail pulls a message out of an error body, preferring a
// {"detail": "..."} object.
func errorDetail(body []byte) string {
	var e models.ErrorResponse
	if json.Unmarshal(body, &e) == nil && len(e.Detail) > 0 {
		var s string
		if json.Unmarshal(e.Detail, &s) == nil {
			return s
		}
		return string(e.Detail)
	}
	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody]
	}
	return text
}
