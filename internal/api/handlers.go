// Package api exposes the signing pipeline over HTTP: document lifecycle
// endpoints under /api/v1 and a binary RFC 3161 endpoint at /tsa.
package api

import (
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hestia-platform/esign/internal/ceremony"
	"github.com/hestia-platform/esign/internal/identity"
	"github.com/hestia-platform/esign/internal/metrics"
	"github.com/hestia-platform/esign/internal/store"
	"github.com/hestia-platform/esign/internal/tsa"
)

const maxRequestBody = 10 << 20 // 10 MiB

// Handler serves the pipeline endpoints.
type Handler struct {
	ceremony  *ceremony.Ceremony
	responder *tsa.Responder
	confirmer identity.Confirmer
	logger    zerolog.Logger
}

// NewHandler builds a Handler.
func NewHandler(c *ceremony.Ceremony, responder *tsa.Responder, confirmer identity.Confirmer, logger zerolog.Logger) *Handler {
	return &Handler{
		ceremony:  c,
		responder: responder,
		confirmer: confirmer,
		logger:    logger,
	}
}

// Register handles POST /api/v1/documents.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return
	}
	if req.Title == "" || len(req.Base) == 0 || len(req.Participants) == 0 {
		respondError(w, http.StatusBadRequest, &APIError{
			Code:    CodeInvalidRequest,
			Message: "title, base and participants are required",
		})
		return
	}

	participants := make([]ceremony.Participant, 0, len(req.Participants))
	for _, p := range req.Participants {
		participants = append(participants, ceremony.Participant{
			Field: p.Field,
			Signer: identity.Signer{
				ID:    uuid.New(),
				Kind:  identity.KindExternal,
				Name:  p.Name,
				Email: p.Email,
			},
			OTPRef: p.OTPRef,
		})
	}

	rec, requests, err := h.ceremony.Register(r.Context(), req.Title, req.Base, participants)
	if err != nil {
		respondMapped(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, RegisterResponse{
		ID:       rec.ID.String(),
		Title:    rec.Title,
		Status:   string(rec.Status),
		Requests: toRequestResponses(requests),
	})
}

// Certify handles POST /api/v1/documents/{id}/certify.
func (h *Handler) Certify(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := h.ceremony.Certify(r.Context(), id); err != nil {
		respondMapped(w, err)
		return
	}
	h.status(w, r, id)
}

// Sign handles POST /api/v1/sign/{token}.
func (h *Handler) Sign(w http.ResponseWriter, r *http.Request) {
	token, ok := pathUUID(w, r, "token")
	if !ok {
		return
	}
	var body SignRequest
	if err := decodeJSON(w, r, &body); err != nil {
		return
	}

	req, err := h.ceremony.Request(r.Context(), token)
	if err != nil {
		respondMapped(w, err)
		return
	}
	confirmation, err := h.confirmer.Confirm(r.Context(), req.OTPRef, body.Code)
	if err != nil {
		respondMapped(w, err)
		return
	}

	reqCtx := identity.RequestContext{
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
	}
	meta, err := h.ceremony.Sign(r.Context(), token, confirmation, reqCtx)
	if err != nil {
		respondMapped(w, err)
		return
	}

	respondJSON(w, http.StatusOK, SignResponse{
		ID:           meta.ID.String(),
		Field:        meta.Field,
		SignerName:   meta.SignerName,
		CertSerial:   meta.CertSerial,
		DigestBefore: hex.EncodeToString(meta.DigestBefore),
		DigestAfter:  hex.EncodeToString(meta.DigestAfter),
		SignedAt:     meta.SignedAt,
	})
}

// Cancel handles POST /api/v1/documents/{id}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var body CancelRequest
	if err := decodeJSON(w, r, &body); err != nil {
		return
	}
	if err := h.ceremony.Cancel(r.Context(), id, body.Reason); err != nil {
		respondMapped(w, err)
		return
	}
	h.status(w, r, id)
}

// Finalize handles POST /api/v1/documents/{id}/finalize: retry a
// finalization that failed after the last signature.
func (h *Handler) Finalize(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := h.ceremony.Finalize(r.Context(), id); err != nil {
		respondMapped(w, err)
		return
	}
	h.status(w, r, id)
}

// Status handles GET /api/v1/documents/{id}/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	h.status(w, r, id)
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	rec, requests, err := h.ceremony.Status(r.Context(), id)
	if err != nil {
		respondMapped(w, err)
		return
	}
	respondJSON(w, http.StatusOK, StatusResponse{
		ID:          rec.ID.String(),
		Title:       rec.Title,
		Status:      string(rec.Status),
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
		CompletedAt: rec.CompletedAt,
		Requests:    toRequestResponses(requests),
	})
}

// Journal handles GET /api/v1/documents/{id}/journal. The sealed journal
// is returned as raw COSE_Sign1 bytes.
func (h *Handler) Journal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	sealed, err := h.ceremony.Journal(r.Context(), id)
	if err != nil {
		respondMapped(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/cose")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(sealed)
}

// Download handles GET /api/v1/documents/{id}. It returns the current
// revision-chain bytes.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	data, err := h.ceremony.Document(id)
	if err != nil {
		respondMapped(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// TSARespond handles POST /tsa: a binary RFC 3161 request/response
// exchange. Rejections are valid responses, not HTTP errors.
func (h *Handler) TSARespond(w http.ResponseWriter, r *http.Request) {
	der, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		respondError(w, http.StatusBadRequest, &APIError{
			Code:    CodeInvalidRequest,
			Message: "failed to read request body",
		})
		return
	}

	resp, err := h.responder.Respond(r.Context(), der)
	if err != nil {
		respondMapped(w, err)
		return
	}
	metrics.TimestampsTotal.Inc()

	w.Header().Set("Content-Type", "application/timestamp-reply")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp)
}

func toRequestResponses(requests []*store.SignatureRequest) []RequestResponse {
	out := make([]RequestResponse, 0, len(requests))
	for _, req := range requests {
		out = append(out, RequestResponse{
			ID:          req.ID.String(),
			Field:       req.Field,
			SignerName:  req.SignerName,
			SignerEmail: req.SignerEmail,
			LinkToken:   req.LinkToken.String(),
			Status:      string(req.Status),
			CompletedAt: req.CompletedAt,
		})
	}
	return out
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		respondError(w, http.StatusBadRequest, &APIError{
			Code:    CodeInvalidRequest,
			Message: "invalid " + name,
		})
		return uuid.Nil, false
	}
	return id, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, &APIError{
			Code:    CodeInvalidRequest,
			Message: "invalid JSON request body",
		})
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, apiErr *APIError) {
	respondJSON(w, status, map[string]*APIError{"error": apiErr})
}

func respondMapped(w http.ResponseWriter, err error) {
	status, apiErr := MapError(err)
	respondError(w, status, apiErr)
}
