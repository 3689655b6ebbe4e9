package api

import "time"

// APIError is the error body returned by every failing endpoint.
type APIError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// ParticipantRequest names one field and who must sign it.
type ParticipantRequest struct {
	Field  string `json:"field"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	OTPRef string `json:"otp_ref,omitempty"`
}

// RegisterRequest creates a draft document.
type RegisterRequest struct {
	Title        string               `json:"title"`
	Base         []byte               `json:"base"` // base64 in JSON
	Participants []ParticipantRequest `json:"participants"`
}

// RequestResponse is one signature request.
type RequestResponse struct {
	ID          string     `json:"id"`
	Field       string     `json:"field"`
	SignerName  string     `json:"signer_name"`
	SignerEmail string     `json:"signer_email"`
	LinkToken   string     `json:"link_token"`
	Status      string     `json:"status"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// RegisterResponse returns the new document and its signing links.
type RegisterResponse struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Status   string            `json:"status"`
	Requests []RequestResponse `json:"requests"`
}

// SignRequest carries the signer's one-time code.
type SignRequest struct {
	Code string `json:"code"`
}

// SignResponse summarizes the applied signature.
type SignResponse struct {
	ID           string    `json:"id"`
	Field        string    `json:"field"`
	SignerName   string    `json:"signer_name"`
	CertSerial   string    `json:"cert_serial"`
	DigestBefore string    `json:"digest_before"`
	DigestAfter  string    `json:"digest_after"`
	SignedAt     time.Time `json:"signed_at"`
}

// CancelRequest carries the cancellation reason.
type CancelRequest struct {
	Reason string `json:"reason"`
}

// StatusResponse is the document's persisted state.
type StatusResponse struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Status      string            `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Requests    []RequestResponse `json:"requests"`
}

// HealthResponse reports service liveness.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}
