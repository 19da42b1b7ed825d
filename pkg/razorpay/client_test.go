package razorpay

import (
	"context"
	"io"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/planmint/planmint-backend/pkg/config"
	pkgerrors "github.com/planmint/planmint-backend/pkg/errors"
	"github.com/planmint/planmint-backend/pkg/logger"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	cfg := config.RazorpayConfig{
		KeyID:         "rzp_test_key",
		KeySecret:     "rzp_test_secret",
		WebhookSecret: "whsec_test",
	}
	client, err := NewClient(context.Background(), cfg, logg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if baseURL != "" {
		client.baseURL = baseURL
	}
	return client
}

func TestNewClientValidatesCredentials(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	ctx := context.Background()

	if _, err := NewClient(ctx, config.RazorpayConfig{KeySecret: "s"}, logg); err != errKeyIDRequired {
		t.Fatalf("expected key id error, got %v", err)
	}
	if _, err := NewClient(ctx, config.RazorpayConfig{KeyID: "k"}, logg); err != errKeySecretRequired {
		t.Fatalf("expected key secret error, got %v", err)
	}
	if _, err := NewClient(ctx, config.RazorpayConfig{KeyID: "k", KeySecret: "s", Env: "staging"}, logg); err != errInvalidEnv {
		t.Fatalf("expected env error, got %v", err)
	}
	if _, err := NewClient(ctx, config.RazorpayConfig{KeyID: "k", KeySecret: "s"}, nil); err != errLoggerRequired {
		t.Fatalf("expected logger error, got %v", err)
	}
}

func TestCreateOrderPostsBasicAuthJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/orders" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "rzp_test_key" || pass != "rzp_test_secret" {
			t.Errorf("missing basic auth credentials")
		}
		var body OrderCreateParams
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.Amount != 19900 || body.Currency != "INR" {
			t.Errorf("unexpected order params: %+v", body)
		}
		json.NewEncoder(w).Encode(Order{
			ID:       "order_ABC123",
			Amount:   body.Amount,
			Currency: body.Currency,
			Receipt:  body.Receipt,
			Status:   "created",
		})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	order, err := client.CreateOrder(context.Background(), OrderCreateParams{
		Amount:   19900,
		Currency: "INR",
		Receipt:  "rcpt_1",
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.ID != "order_ABC123" || order.Status != "created" {
		t.Fatalf("unexpected order: %+v", order)
	}
}

func TestCreateOrderMapsAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"invalid api key"}}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.CreateOrder(context.Background(), OrderCreateParams{Amount: 100, Currency: "INR"})
	if err == nil {
		t.Fatal("expected error")
	}
	domainErr := pkgerrors.As(err)
	if domainErr == nil {
		t.Fatalf("expected domain error, got %T", err)
	}
	if domainErr.Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("expected unauthorized code, got %s", domainErr.Code())
	}
}

func TestFetchOrderRequiresID(t *testing.T) {
	client := newTestClient(t, "")
	_, err := client.FetchOrder(context.Background(), "  ")
	if domainErr := pkgerrors.As(err); domainErr == nil || domainErr.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestVerifyPaymentSignature(t *testing.T) {
	client := newTestClient(t, "")
	sig := ComputeSignature([]byte("order_ABC|pay_XYZ"), "rzp_test_secret")

	if !client.VerifyPaymentSignature("order_ABC", "pay_XYZ", sig) {
		t.Fatal("expected valid signature to verify")
	}
	if client.VerifyPaymentSignature("order_ABC", "pay_XYZ", "deadbeef") {
		t.Fatal("expected bad signature to fail")
	}
	if client.VerifyPaymentSignature("", "pay_XYZ", sig) {
		t.Fatal("expected empty order id to fail")
	}
	if client.VerifyPaymentSignature("order_OTHER", "pay_XYZ", sig) {
		t.Fatal("expected mismatched order id to fail")
	}
}

func TestVerifyWebhookSignature(t *testing.T) {
	client := newTestClient(t, "")
	body := []byte(`{"event":"payment.captured"}`)
	sig := ComputeSignature(body, "whsec_test")

	if !client.VerifyWebhookSignature(body, sig) {
		t.Fatal("expected valid webhook signature to verify")
	}
	if client.VerifyWebhookSignature(append(body, '!'), sig) {
		t.Fatal("expected tampered body to fail")
	}

	client.webhookSecret = ""
	if client.VerifyWebhookSignature(body, sig) {
		t.Fatal("expected missing webhook secret to refuse verification")
	}
}
