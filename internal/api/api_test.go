package api

import (
	"bytes"
	"crypto"
	"crypto/sha256"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/hestia-platform/esign/internal/audit"
	"github.com/hestia-platform/esign/internal/authority"
	"github.com/hestia-platform/esign/internal/ceremony"
	esigncrypto "github.com/hestia-platform/esign/internal/crypto"
	"github.com/hestia-platform/esign/internal/identity"
	"github.com/hestia-platform/esign/internal/store"
	"github.com/hestia-platform/esign/internal/tsa"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	certStore := authority.NewStore(t.TempDir())
	manager, err := authority.Initialize(certStore, authority.Config{
		CommonName:   "API Root",
		Organization: "Test Org",
		Country:      "FR",
		Algorithm:    esigncrypto.AlgEd25519,
	}, authority.WithSignerAlgorithm(esigncrypto.AlgECDSAP256))
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	responder := tsa.NewResponder(manager.TSA().Cert, manager.TSA().Signer)
	c := ceremony.New(store.NewMemory(), manager, &tsa.ResponderClient{Responder: responder},
		audit.NopWriter{}, zerolog.Nop())

	h := NewHandler(c, responder, identity.OTPConfirmer{}, zerolog.Nop())
	srv := httptest.NewServer(NewRouter(h, "test", zerolog.Nop()))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Post %s: %v", url, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestU_DocumentLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/documents", RegisterRequest{
		Title: "Lease",
		Base:  []byte("lease body"),
		Participants: []ParticipantRequest{
			{Field: "tenant", Name: "Alice Martin", Email: "alice@example.org", OTPRef: "111111"},
			{Field: "landlord", Name: "Bob Rey", Email: "bob@example.org", OTPRef: "222222"},
		},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d", resp.StatusCode)
	}
	reg := decodeBody[RegisterResponse](t, resp)
	if len(reg.Requests) != 2 {
		t.Fatalf("len(requests) = %d", len(reg.Requests))
	}

	// Sign before certify must be refused.
	resp = postJSON(t, srv.URL+"/api/v1/sign/"+reg.Requests[0].LinkToken, SignRequest{Code: "111111"})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("sign before certify status = %d, want 409", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/api/v1/documents/"+reg.ID+"/certify", struct{}{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("certify status = %d", resp.StatusCode)
	}
	status := decodeBody[StatusResponse](t, resp)
	if status.Status != "certified" {
		t.Fatalf("status = %s", status.Status)
	}

	// Wrong code is unauthorized.
	resp = postJSON(t, srv.URL+"/api/v1/sign/"+reg.Requests[0].LinkToken, SignRequest{Code: "000000"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong code status = %d, want 401", resp.StatusCode)
	}
	resp.Body.Close()

	for i, code := range []string{"111111", "222222"} {
		resp = postJSON(t, srv.URL+"/api/v1/sign/"+reg.Requests[i].LinkToken, SignRequest{Code: code})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("sign %d status = %d", i, resp.StatusCode)
		}
		signResp := decodeBody[SignResponse](t, resp)
		if signResp.CertSerial == "" || signResp.DigestAfter == "" {
			t.Errorf("incomplete sign response: %+v", signResp)
		}
	}

	httpResp, err := http.Get(srv.URL + "/api/v1/documents/" + reg.ID + "/status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	status = decodeBody[StatusResponse](t, httpResp)
	if status.Status != "signed" || status.CompletedAt == nil {
		t.Fatalf("final status: %+v", status)
	}

	httpResp, err = http.Get(srv.URL + "/api/v1/documents/" + reg.ID + "/journal")
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode != http.StatusOK {
		t.Fatalf("journal status = %d", httpResp.StatusCode)
	}
	if ct := httpResp.Header.Get("Content-Type"); ct != "application/cose" {
		t.Errorf("journal content type = %s", ct)
	}
}

func TestU_UnknownDocumentIs404(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/documents/3f8a0e9c-0000-4000-8000-00000000dead/status")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestU_TSAEndpoint(t *testing.T) {
	srv := newTestServer(t)

	digest := sha256.Sum256([]byte("timestamp me"))
	req, err := tsa.NewRequest(digest[:], crypto.SHA256, nil, true)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	der, err := req.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	resp, err := http.Post(srv.URL+"/tsa", "application/timestamp-query", bytes.NewReader(der))
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/timestamp-reply" {
		t.Errorf("content type = %s", ct)
	}

	body := new(bytes.Buffer)
	if _, err := body.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	tsResp, err := tsa.ParseResponse(body.Bytes())
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if !tsResp.IsGranted() {
		t.Errorf("timestamp not granted: %s", tsResp.FailureString())
	}
}
