package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/planmint/planmint-backend/internal/products"
	"github.com/planmint/planmint-backend/internal/users"
	"github.com/planmint/planmint-backend/pkg/db/models"
	"github.com/planmint/planmint-backend/pkg/enums"
	pkgerrors "github.com/planmint/planmint-backend/pkg/errors"
	"github.com/planmint/planmint-backend/pkg/logger"
	"github.com/planmint/planmint-backend/pkg/razorpay"
)

const (
	providerRazorpay = "razorpay"
	providerCMSGrant = "manual_cms_grant"
)

type paymentClient interface {
	KeyID() string
	CreateOrder(ctx context.Context, params razorpay.OrderCreateParams) (*razorpay.Order, error)
	VerifyPaymentSignature(orderID, paymentID, signature string) bool
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams groups dependencies for the billing service.
type ServiceParams struct {
	Repo              Repository
	Users             users.Repository
	Products          *products.Service
	Payments          paymentClient
	TransactionRunner txRunner
	Logger            *logger.Logger
	GrantWindow       time.Duration
}

// Service orchestrates checkout and payment reconciliation.
type Service struct {
	repo        Repository
	users       users.Repository
	products    *products.Service
	payments    paymentClient
	txRunner    txRunner
	logger      *logger.Logger
	grantWindow time.Duration
}

// NewService builds a billing service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Users == nil {
		return nil, errors.New("users repo is required")
	}
	if params.Products == nil {
		return nil, errors.New("products service is required")
	}
	if params.Payments == nil {
		return nil, errors.New("payment client is required")
	}
	if params.TransactionRunner == nil {
		return nil, errors.New("transaction runner is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	grantWindow := params.GrantWindow
	if grantWindow <= 0 {
		grantWindow = 30 * 24 * time.Hour
	}
	return &Service{
		repo:        params.Repo,
		users:       params.Users,
		products:    params.Products,
		payments:    params.Payments,
		txRunner:    params.TransactionRunner,
		logger:      params.Logger,
		grantWindow: grantWindow,
	}, nil
}

// CheckoutDTO carries the client handoff for launching provider checkout.
type CheckoutDTO struct {
	KeyID           string `json:"key_id"`
	ProviderOrderID string `json:"provider_order_id"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	ProductKey      string `json:"product_key"`
}

// Checkout opens a provider order for the product and records it locally.
// A local persistence failure is logged but does not withhold checkout
// credentials: the webhook path, not order creation, is authoritative for
// activation.
func (s *Service) Checkout(ctx context.Context, userID uuid.UUID, productKey string) (*CheckoutDTO, error) {
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}

	product, err := s.products.FindActiveByKey(ctx, productKey)
	if err != nil {
		return nil, err
	}

	providerOrder, err := s.payments.CreateOrder(ctx, razorpay.OrderCreateParams{
		Amount:   product.Price,
		Currency: product.Currency,
		Receipt:  fmt.Sprintf("pm_%s", uuid.NewString()[:18]),
		Notes: map[string]string{
			"user_id":     userID.String(),
			"product_key": product.Key,
		},
	})
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		Provider:        providerRazorpay,
		ProviderOrderID: providerOrder.ID,
		UserID:          userID,
		ProductID:       product.ID,
		Amount:          product.Price,
		Currency:        product.Currency,
		Status:          enums.OrderStatusCreated,
	}
	if err := s.repo.CreateOrder(ctx, order); err != nil {
		logCtx := s.logger.WithOrderID(ctx, providerOrder.ID)
		s.logger.Error(logCtx, "persist checkout order", err)
	}

	return &CheckoutDTO{
		KeyID:           s.payments.KeyID(),
		ProviderOrderID: providerOrder.ID,
		Amount:          product.Price,
		Currency:        product.Currency,
		ProductKey:      product.Key,
	}, nil
}

// ReconcileParams describes one provider payment event to fold into the
// ledger. RawPayload is merged into the order metadata for audit.
type ReconcileParams struct {
	ProviderOrderID   string
	ProviderPaymentID string
	ProviderStatus    string
	Provider          string
	RawPayload        map[string]json.RawMessage
}

// ReconcileResult reports what the reconciliation pass did.
type ReconcileResult struct {
	OrderFound          bool
	SubscriptionCreated bool
	TierSet             enums.Tier
}

// ReconcilePayment folds a captured payment into the ledger as one atomic
// unit: mark the order paid, cancel prior entitling subscriptions, create
// the new one, and refresh the denormalized user tier. The provider payment
// id doubles as the subscription idempotency key, so redelivery of the same
// event is a no-op.
//
// An unknown provider order id is acknowledged without error so stale or
// foreign events do not retry-storm the provider.
func (s *Service) ReconcilePayment(ctx context.Context, params ReconcileParams) (*ReconcileResult, error) {
	providerOrderID := strings.TrimSpace(params.ProviderOrderID)
	providerPaymentID := strings.TrimSpace(params.ProviderPaymentID)
	if providerOrderID == "" || providerPaymentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider order id and payment id are required")
	}
	provider := params.Provider
	if provider == "" {
		provider = providerRazorpay
	}

	result := &ReconcileResult{}
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		usersRepo := s.users.WithTx(tx)

		order, err := repo.FindOrderByProviderOrderID(ctx, providerOrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find order")
		}
		if order == nil {
			logCtx := s.logger.WithOrderID(ctx, providerOrderID)
			s.logger.Warn(logCtx, "order not found for provider order id")
			return nil
		}
		result.OrderFound = true

		existing, err := repo.FindSubscriptionByProviderSubID(ctx, providerPaymentID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find subscription")
		}
		if existing != nil {
			// Duplicate delivery. The first application already moved all
			// the state below.
			return nil
		}

		if err := repo.CancelActiveSubscriptions(ctx, order.UserID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel active subscriptions")
		}

		now := time.Now().UTC()
		periodEnd := now.Add(s.grantWindow)
		sub := &models.UserSubscription{
			UserID:           order.UserID,
			ProductID:        order.ProductID,
			Status:           enums.SubscriptionStatusActive,
			StartedAt:        now,
			CurrentPeriodEnd: &periodEnd,
			Provider:         provider,
			ProviderSubID:    providerPaymentID,
		}
		if err := repo.CreateSubscription(ctx, sub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create subscription")
		}
		result.SubscriptionCreated = true

		if order.Product != nil {
			if tier, ok := tierForProductKey(order.Product.Key); ok {
				if err := usersRepo.UpdateTier(ctx, order.UserID, tier); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update user tier")
				}
				result.TierSet = tier
			}
		}

		order.Status = orderStatusForProvider(params.ProviderStatus)
		order.ProviderPaymentID = &providerPaymentID
		if len(params.RawPayload) > 0 {
			if err := order.MergeMetadata(params.RawPayload); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "merge order metadata")
			}
		}
		if err := repo.UpdateOrder(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// tierForProductKey derives the denormalized tier badge from the product
// key. TEAM is checked before PRO so a key carrying both lands on TEAM.
func tierForProductKey(key string) (enums.Tier, bool) {
	upper := strings.ToUpper(key)
	if strings.Contains(upper, "TEAM") {
		return enums.TierTeam, true
	}
	if strings.Contains(upper, "PRO") {
		return enums.TierPro, true
	}
	return "", false
}

func orderStatusForProvider(providerStatus string) enums.OrderStatus {
	switch strings.ToLower(strings.TrimSpace(providerStatus)) {
	case "captured":
		return enums.OrderStatusCaptured
	case "", "paid":
		return enums.OrderStatusPaid
	default:
		return enums.OrderStatusPaid
	}
}

// RecordPaymentAttempt stamps a non-captured payment onto its order without
// provisioning anything. Authorized payments land here until the capture
// event arrives.
func (s *Service) RecordPaymentAttempt(ctx context.Context, params ReconcileParams) error {
	providerOrderID := strings.TrimSpace(params.ProviderOrderID)
	providerPaymentID := strings.TrimSpace(params.ProviderPaymentID)
	if providerOrderID == "" || providerPaymentID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "provider order id and payment id are required")
	}

	order, err := s.repo.FindOrderByProviderOrderID(ctx, providerOrderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find order")
	}
	if order == nil {
		logCtx := s.logger.WithOrderID(ctx, providerOrderID)
		s.logger.Warn(logCtx, "order not found for provider order id")
		return nil
	}
	if order.Status.IsSettled() {
		return nil
	}

	if strings.EqualFold(strings.TrimSpace(params.ProviderStatus), "failed") {
		order.Status = enums.OrderStatusFailed
	}
	order.ProviderPaymentID = &providerPaymentID
	if len(params.RawPayload) > 0 {
		if err := order.MergeMetadata(params.RawPayload); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "merge order metadata")
		}
	}
	if err := s.repo.UpdateOrder(ctx, order); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order")
	}
	return nil
}

// MarkOrderPaid records an order-level paid signal that arrived without a
// payment entity. The order entity is merged into the metadata and the status
// moves to paid unless a capture already settled it. No subscription is
// provisioned here; that stays with the payment-driven path.
func (s *Service) MarkOrderPaid(ctx context.Context, providerOrderID string, rawOrder json.RawMessage) error {
	providerOrderID = strings.TrimSpace(providerOrderID)
	if providerOrderID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "provider order id is required")
	}

	order, err := s.repo.FindOrderByProviderOrderID(ctx, providerOrderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find order")
	}
	if order == nil {
		logCtx := s.logger.WithOrderID(ctx, providerOrderID)
		s.logger.Warn(logCtx, "order not found for provider order id")
		return nil
	}

	if !order.Status.IsSettled() {
		order.Status = enums.OrderStatusPaid
	}
	if len(rawOrder) > 0 {
		if err := order.MergeMetadata(map[string]json.RawMessage{"order": rawOrder}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "merge order metadata")
		}
	}
	if err := s.repo.UpdateOrder(ctx, order); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order")
	}
	return nil
}

// VerifyParams is the client-reported payment confirmation.
type VerifyParams struct {
	ProviderOrderID   string `json:"razorpay_order_id" validate:"required"`
	ProviderPaymentID string `json:"razorpay_payment_id" validate:"required"`
	Signature         string `json:"razorpay_signature" validate:"required"`
}

// VerifyClientPayment handles the checkout callback. It validates the
// provider signature, confirms the order belongs to the calling user, and
// runs the same reconciliation path as the webhook.
func (s *Service) VerifyClientPayment(ctx context.Context, userID uuid.UUID, params VerifyParams) (*ReconcileResult, error) {
	if !s.payments.VerifyPaymentSignature(params.ProviderOrderID, params.ProviderPaymentID, params.Signature) {
		return nil, pkgerrors.New(pkgerrors.CodeSignature, "invalid payment signature")
	}

	order, err := s.repo.FindOrderByProviderOrderID(ctx, params.ProviderOrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order record not found")
	}
	if order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
	}

	verified, err := json.Marshal(true)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode metadata")
	}
	return s.ReconcilePayment(ctx, ReconcileParams{
		ProviderOrderID:   params.ProviderOrderID,
		ProviderPaymentID: params.ProviderPaymentID,
		ProviderStatus:    "paid",
		Provider:          providerRazorpay,
		RawPayload:        map[string]json.RawMessage{"verified": verified},
	})
}

// GrantProduct assigns a product to a user from the CMS without a payment.
// It follows the same cancel-then-activate sequence with a synthetic
// idempotency key per grant.
func (s *Service) GrantProduct(ctx context.Context, userID uuid.UUID, productKey string) (*models.UserSubscription, error) {
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}

	// An empty key revokes: cancel whatever is active and drop the tier.
	if strings.TrimSpace(productKey) == "" {
		if err := s.CancelSubscription(ctx, userID); err != nil {
			return nil, err
		}
		return nil, nil
	}

	product, err := s.products.FindActiveByKey(ctx, productKey)
	if err != nil {
		return nil, err
	}

	var sub *models.UserSubscription
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		usersRepo := s.users.WithTx(tx)

		if err := repo.CancelActiveSubscriptions(ctx, userID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel active subscriptions")
		}

		now := time.Now().UTC()
		periodEnd := now.Add(s.grantWindow)
		sub = &models.UserSubscription{
			UserID:           userID,
			ProductID:        product.ID,
			Status:           enums.SubscriptionStatusActive,
			StartedAt:        now,
			CurrentPeriodEnd: &periodEnd,
			Provider:         providerCMSGrant,
			ProviderSubID:    fmt.Sprintf("grant_%s", uuid.NewString()),
		}
		if err := repo.CreateSubscription(ctx, sub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create subscription")
		}

		if tier, ok := tierForProductKey(product.Key); ok {
			if err := usersRepo.UpdateTier(ctx, userID, tier); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update user tier")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// CancelSubscription cancels the user's entitling subscriptions and drops
// the tier badge back to FREE.
func (s *Service) CancelSubscription(ctx context.Context, userID uuid.UUID) error {
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}
	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		usersRepo := s.users.WithTx(tx)
		if err := repo.CancelActiveSubscriptions(ctx, userID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel active subscriptions")
		}
		if err := usersRepo.UpdateTier(ctx, userID, enums.TierFree); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update user tier")
		}
		return nil
	})
}

// Subscription returns the user's entitling subscription, if any.
func (s *Service) Subscription(ctx context.Context, userID uuid.UUID) (*models.UserSubscription, error) {
	sub, err := s.repo.FindEntitlingSubscription(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find subscription")
	}
	return sub, nil
}

// ListOrders exposes the payment ledger for the admin CMS.
func (s *Service) ListOrders(ctx context.Context, params ListOrdersQuery) ([]models.Order, string, error) {
	orders, next, err := s.repo.ListOrders(ctx, params)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}
	return orders, next, nil
}
