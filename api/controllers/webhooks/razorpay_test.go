package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	razorpaywebhook "github.com/planmint/planmint-backend/internal/webhooks/razorpay"
	"github.com/planmint/planmint-backend/pkg/logger"
	"github.com/planmint/planmint-backend/pkg/razorpay"
)

const testWebhookSecret = "whsec_test"

type stubWebhookService struct {
	handled   []*razorpaywebhook.Event
	handleErr error
}

func (s *stubWebhookService) HandleEvent(_ context.Context, event *razorpaywebhook.Event) error {
	s.handled = append(s.handled, event)
	return s.handleErr
}

type stubVerifier struct {
	secret string
}

func (s stubVerifier) WebhookSecret() string { return s.secret }

func (s stubVerifier) VerifyWebhookSignature(body []byte, signature string) bool {
	if s.secret == "" {
		return false
	}
	return razorpay.ComputeSignature(body, s.secret) == signature
}

type stubGuard struct {
	marked   []string
	deleted  []string
	already  bool
	checkErr error
}

func (g *stubGuard) CheckAndMark(_ context.Context, eventID string) (bool, error) {
	g.marked = append(g.marked, eventID)
	return g.already, g.checkErr
}

func (g *stubGuard) Delete(_ context.Context, eventID string) error {
	g.deleted = append(g.deleted, eventID)
	return nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func deliver(t *testing.T, handler http.HandlerFunc, body, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/razorpay", strings.NewReader(body))
	if signature != "" {
		req.Header.Set(razorpaySignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func sign(body string) string {
	return razorpay.ComputeSignature([]byte(body), testWebhookSecret)
}

const capturedEventBody = `{"event_id":"evt_1","event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_1","status":"captured"}}}}`

func TestRazorpayWebhookProcessesSignedEvent(t *testing.T) {
	svc := &stubWebhookService{}
	guard := &stubGuard{}
	handler := RazorpayWebhook(svc, stubVerifier{secret: testWebhookSecret}, guard, testLogger())

	rec := deliver(t, handler, capturedEventBody, sign(capturedEventBody))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(svc.handled) != 1 || svc.handled[0].Event != "payment.captured" {
		t.Fatalf("handler saw %+v", svc.handled)
	}
	if len(guard.marked) != 1 || guard.marked[0] != "evt_1" {
		t.Fatalf("guard marked %v", guard.marked)
	}
	if len(guard.deleted) != 0 {
		t.Fatalf("mark must survive a successful delivery, deleted %v", guard.deleted)
	}
}

func TestRazorpayWebhookRequiresConfiguredSecret(t *testing.T) {
	svc := &stubWebhookService{}
	handler := RazorpayWebhook(svc, stubVerifier{secret: ""}, &stubGuard{}, testLogger())

	rec := deliver(t, handler, capturedEventBody, sign(capturedEventBody))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for missing secret, got %d", rec.Code)
	}
	if len(svc.handled) != 0 {
		t.Fatal("no event may be processed without a configured secret")
	}
}

func TestRazorpayWebhookRejectsMissingOrBadSignature(t *testing.T) {
	svc := &stubWebhookService{}
	handler := RazorpayWebhook(svc, stubVerifier{secret: testWebhookSecret}, &stubGuard{}, testLogger())

	if rec := deliver(t, handler, capturedEventBody, ""); rec.Code < 400 {
		t.Fatalf("missing signature: expected rejection, got %d", rec.Code)
	}
	if rec := deliver(t, handler, capturedEventBody, "deadbeef"); rec.Code < 400 {
		t.Fatalf("bad signature: expected rejection, got %d", rec.Code)
	}
	if len(svc.handled) != 0 {
		t.Fatal("unverified deliveries must never reach the handler")
	}
}

func TestRazorpayWebhookSkipsDuplicateDeliveries(t *testing.T) {
	svc := &stubWebhookService{}
	guard := &stubGuard{already: true}
	handler := RazorpayWebhook(svc, stubVerifier{secret: testWebhookSecret}, guard, testLogger())

	rec := deliver(t, handler, capturedEventBody, sign(capturedEventBody))
	if rec.Code != http.StatusOK {
		t.Fatalf("duplicates must be acknowledged, got %d", rec.Code)
	}
	if len(svc.handled) != 0 {
		t.Fatal("duplicate delivery must not be reprocessed")
	}
}

func TestRazorpayWebhookReleasesMarkOnHandlerFailure(t *testing.T) {
	svc := &stubWebhookService{handleErr: errors.New("db unavailable")}
	guard := &stubGuard{}
	handler := RazorpayWebhook(svc, stubVerifier{secret: testWebhookSecret}, guard, testLogger())

	rec := deliver(t, handler, capturedEventBody, sign(capturedEventBody))
	if rec.Code < 500 {
		t.Fatalf("expected 5xx so the provider retries, got %d", rec.Code)
	}
	if len(guard.deleted) != 1 || guard.deleted[0] != "evt_1" {
		t.Fatalf("failed delivery must release the idempotency mark, deleted %v", guard.deleted)
	}
}

func TestRazorpayWebhookFallsBackToSignatureAsEventID(t *testing.T) {
	svc := &stubWebhookService{}
	guard := &stubGuard{}
	handler := RazorpayWebhook(svc, stubVerifier{secret: testWebhookSecret}, guard, testLogger())

	body := `{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_2","order_id":"order_2","status":"captured"}}}}`
	signature := sign(body)
	rec := deliver(t, handler, body, signature)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(guard.marked) != 1 || guard.marked[0] != signature {
		t.Fatalf("expected the signature used as idempotency key, marked %v", guard.marked)
	}
}
