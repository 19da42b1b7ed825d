package razorpaywebhook

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/planmint/planmint-backend/internal/billing"
	pkgerrors "github.com/planmint/planmint-backend/pkg/errors"
	"github.com/planmint/planmint-backend/pkg/metrics"
)

// Events the reconciler acts on. Everything else is acknowledged and
// dropped so Razorpay does not redeliver event types we never consume.
const (
	EventPaymentCaptured   = "payment.captured"
	EventPaymentAuthorized = "payment.authorized"
	EventPaymentFailed     = "payment.failed"
	EventOrderPaid         = "order.paid"
)

type reconciler interface {
	ReconcilePayment(ctx context.Context, params billing.ReconcileParams) (*billing.ReconcileResult, error)
	RecordPaymentAttempt(ctx context.Context, params billing.ReconcileParams) error
	MarkOrderPaid(ctx context.Context, providerOrderID string, rawOrder json.RawMessage) error
}

type ServiceParams struct {
	Billing reconciler
	Metrics *metrics.WebhookMetrics
}

type Service struct {
	billing reconciler
	metrics *metrics.WebhookMetrics
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Billing == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "billing service required")
	}
	metricsSink := params.Metrics
	if metricsSink == nil {
		metricsSink = metrics.NewWebhookMetrics(nil)
	}
	return &Service{billing: params.Billing, metrics: metricsSink}, nil
}

// Event is the Razorpay webhook envelope. Entities arrive nested one level
// deeper than the event type suggests: payment events under
// payload.payment.entity, order events under payload.order.entity.
type Event struct {
	EventID string       `json:"event_id"`
	Event   string       `json:"event"`
	Payload EventPayload `json:"payload"`
}

type EventPayload struct {
	Payment *EntityWrapper `json:"payment,omitempty"`
	Order   *EntityWrapper `json:"order,omitempty"`
}

type EntityWrapper struct {
	Entity json.RawMessage `json:"entity"`
}

// PaymentEntity is the subset of Razorpay's payment object the reconciler
// needs. The full entity is preserved verbatim in the order metadata.
type PaymentEntity struct {
	ID      string `json:"id"`
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Amount  int64  `json:"amount"`
}

// OrderEntity is the subset of Razorpay's order object used for order.paid.
type OrderEntity struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// HandleEvent routes one verified webhook delivery. Payment events drive
// the full reconciliation; order.paid with no payment entity marks the order
// paid from the order entity without provisioning. Unrecognized event types
// return nil so the provider stops retrying.
func (s *Service) HandleEvent(ctx context.Context, event *Event) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "event required")
	}

	eventType := strings.ToLower(strings.TrimSpace(event.Event))
	start := time.Now()
	defer func() {
		s.metrics.ObserveDuration(eventType, time.Since(start))
	}()
	switch eventType {
	case EventPaymentFailed:
		payment, raw, err := decodePayment(event)
		if err != nil {
			s.metrics.IncFailure(eventType)
			return err
		}
		if err := s.billing.RecordPaymentAttempt(ctx, billing.ReconcileParams{
			ProviderOrderID:   payment.OrderID,
			ProviderPaymentID: payment.ID,
			ProviderStatus:    "failed",
			RawPayload:        map[string]json.RawMessage{"payment": raw},
		}); err != nil {
			s.metrics.IncFailure(eventType)
			return err
		}
		s.metrics.IncIgnored(eventType)
		return nil
	case EventPaymentCaptured, EventPaymentAuthorized:
		payment, raw, err := decodePayment(event)
		if err != nil {
			s.metrics.IncFailure(eventType)
			return err
		}
		// Authorized-but-not-captured payments are recorded on the order
		// without provisioning; capture is the entitlement trigger.
		if eventType == EventPaymentAuthorized && !strings.EqualFold(payment.Status, "captured") {
			if err := s.billing.RecordPaymentAttempt(ctx, billing.ReconcileParams{
				ProviderOrderID:   payment.OrderID,
				ProviderPaymentID: payment.ID,
				ProviderStatus:    payment.Status,
				RawPayload:        map[string]json.RawMessage{"payment": raw},
			}); err != nil {
				s.metrics.IncFailure(eventType)
				return err
			}
			s.metrics.IncIgnored(eventType)
			return nil
		}
		result, err := s.billing.ReconcilePayment(ctx, billing.ReconcileParams{
			ProviderOrderID:   payment.OrderID,
			ProviderPaymentID: payment.ID,
			ProviderStatus:    payment.Status,
			RawPayload:        map[string]json.RawMessage{"payment": raw},
		})
		if err != nil {
			s.metrics.IncFailure(eventType)
			return err
		}
		if !result.OrderFound {
			s.metrics.IncIgnored(eventType)
			return nil
		}
		s.metrics.IncSuccess(eventType)
		return nil
	case EventOrderPaid:
		if event.Payload.Payment != nil && len(event.Payload.Payment.Entity) > 0 {
			payment, raw, err := decodePayment(event)
			if err != nil {
				s.metrics.IncFailure(eventType)
				return err
			}
			if _, err := s.billing.ReconcilePayment(ctx, billing.ReconcileParams{
				ProviderOrderID:   payment.OrderID,
				ProviderPaymentID: payment.ID,
				ProviderStatus:    "paid",
				RawPayload:        map[string]json.RawMessage{"payment": raw},
			}); err != nil {
				s.metrics.IncFailure(eventType)
				return err
			}
			s.metrics.IncSuccess(eventType)
			return nil
		}
		// No payment entity on board: record the paid status from the order
		// entity itself without provisioning anything.
		orderEntity, raw, err := decodeOrder(event)
		if err != nil {
			s.metrics.IncFailure(eventType)
			return err
		}
		if err := s.billing.MarkOrderPaid(ctx, orderEntity.ID, raw); err != nil {
			s.metrics.IncFailure(eventType)
			return err
		}
		s.metrics.IncSuccess(eventType)
		return nil
	default:
		s.metrics.IncIgnored(eventType)
		return nil
	}
}

func decodeOrder(event *Event) (*OrderEntity, json.RawMessage, error) {
	if event.Payload.Order == nil || len(event.Payload.Order.Entity) == 0 {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "order entity missing")
	}
	var order OrderEntity
	if err := json.Unmarshal(event.Payload.Order.Entity, &order); err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode order entity")
	}
	if order.ID == "" {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	return &order, event.Payload.Order.Entity, nil
}

func decodePayment(event *Event) (*PaymentEntity, json.RawMessage, error) {
	if event.Payload.Payment == nil || len(event.Payload.Payment.Entity) == 0 {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "payment entity missing")
	}
	var payment PaymentEntity
	if err := json.Unmarshal(event.Payload.Payment.Entity, &payment); err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment entity")
	}
	if payment.ID == "" || payment.OrderID == "" {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id and order id required")
	}
	return &payment, event.Payload.Payment.Entity, nil
}
