package models

import "encoding/json"

// VerifyUserPayload is the body of POST /user.
type VerifyUserPayload struct {
	EncodedImage string `json:"image"` // data URL of the captured still
}

// UserRecord is the identity record returned on a match.
type UserRecord struct {
	Username      string      `json:"username"`
	Age           json.Number `json:"age"`
	Phone         string      `json:"phone"`
	Email         string      `json:"email"`
	Gender        string      `json:"gender"`
	Address       string      `json:"address"`
	CapturedImage string      `json:"captured_image"`
}

// VerifyUserResponse mirrors the lookup response. The match, when there is
// one, sits at embedding.data[0]; a null entry there means no match.
type VerifyUserResponse struct {
	Message   string `json:"message"`
	Error     string `json:"error"`
	Embedding *struct {
		Data []*UserRecord `json:"data"`
	} `json:"embedding"`
}

// Verdict is the outcome of a lookup that reached the service.
type Verdict struct {
	Found  bool        `json:"found"`
	Record *UserRecord `json:"record,omitempty"`
	// Detail carries a server-side explanation when no match was returned.
	Detail string `json:"detail,omitempty"`
}

// RegisterForm holds the registration fields as the operator typed them.
type RegisterForm struct {
	Username string `json:"username" schema:"username" validate:"notblank"`
	Age      string `json:"age" schema:"age" validate:"adult"`
	Phone    string `json:"phone" schema:"phone" validate:"phone10"`
	Address  string `json:"address" schema:"address" validate:"notblank"`
	Email    string `json:"email" schema:"email" validate:"emailshape"`
	Gender   string `json:"gender" schema:"gender" validate:"required"`
}

// RegisterUserResponse is the body of the POST /new_user reply.
type RegisterUserResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
	ID      string `json:"id"`
}

// ErrorResponse is the FastAPI-style error body ({"detail": "..."}).
type ErrorResponse struct {
	Detail json.RawMessage `json:"detail"`
}
