package billing

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/planmint/planmint-backend/internal/products"
	"github.com/planmint/planmint-backend/internal/users"
	"github.com/planmint/planmint-backend/pkg/db/models"
	"github.com/planmint/planmint-backend/pkg/enums"
	pkgerrors "github.com/planmint/planmint-backend/pkg/errors"
	"github.com/planmint/planmint-backend/pkg/logger"
	"github.com/planmint/planmint-backend/pkg/razorpay"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type stubPaymentClient struct {
	keyID         string
	createdOrders []razorpay.OrderCreateParams
	orderID       string
	createErr     error
	verifyOK      bool
}

func (s *stubPaymentClient) KeyID() string { return s.keyID }

func (s *stubPaymentClient) CreateOrder(_ context.Context, params razorpay.OrderCreateParams) (*razorpay.Order, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.createdOrders = append(s.createdOrders, params)
	return &razorpay.Order{
		ID:       s.orderID,
		Amount:   params.Amount,
		Currency: params.Currency,
		Status:   "created",
	}, nil
}

func (s *stubPaymentClient) VerifyPaymentSignature(_, _, _ string) bool {
	return s.verifyOK
}

func newBillingTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:billing_" + uuid.NewString() + "?mode=memory&cache=shared"
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	schema := []string{
		`CREATE TABLE users (
  id TEXT PRIMARY KEY DEFAULT (lower(hex(randomblob(16)))),
  email TEXT NOT NULL UNIQUE,
  name TEXT,
  tier TEXT NOT NULL DEFAULT 'FREE',
  role TEXT NOT NULL DEFAULT 'user',
  ai_usage_count INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE products (
  id TEXT PRIMARY KEY DEFAULT (lower(hex(randomblob(16)))),
  key TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  description TEXT,
  price INTEGER NOT NULL,
  currency TEXT NOT NULL DEFAULT 'INR',
  active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE features (
  id TEXT PRIMARY KEY DEFAULT (lower(hex(randomblob(16)))),
  key TEXT NOT NULL UNIQUE,
  description TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE product_features (
  id TEXT PRIMARY KEY DEFAULT (lower(hex(randomblob(16)))),
  product_id TEXT NOT NULL,
  feature_id TEXT NOT NULL,
  value TEXT,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (product_id, feature_id)
);`,
		`CREATE TABLE orders (
  id TEXT PRIMARY KEY DEFAULT (lower(hex(randomblob(16)))),
  provider TEXT NOT NULL DEFAULT 'razorpay',
  provider_order_id TEXT NOT NULL UNIQUE,
  user_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  amount INTEGER NOT NULL,
  currency TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'created',
  provider_payment_id TEXT,
  metadata TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE user_subscriptions (
  id TEXT PRIMARY KEY DEFAULT (lower(hex(randomblob(16)))),
  user_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  status TEXT NOT NULL,
  started_at DATETIME NOT NULL,
  current_period_end DATETIME,
  provider TEXT NOT NULL,
  provider_sub_id TEXT NOT NULL UNIQUE,
  created_at DATETIME,
  updated_at DATETIME
);`,
	}
	for _, stmt := range schema {
		if err := gdb.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return gdb
}

type billingFixture struct {
	service  *Service
	payments *stubPaymentClient
	db       *gorm.DB
	user     *models.User
	proPlan  *models.Product
	teamPlan *models.Product
}

func newBillingFixture(t *testing.T) *billingFixture {
	t.Helper()
	gdb := newBillingTestDB(t)

	user := &models.User{ID: uuid.New(), Email: "buyer@example.com", Tier: enums.TierFree, Role: enums.RoleUser}
	if err := gdb.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	proPlan := &models.Product{ID: uuid.New(), Key: "PRO_MONTHLY", Name: "Pro", Price: 19900, Currency: "INR", Active: true}
	teamPlan := &models.Product{ID: uuid.New(), Key: "TEAM_MONTHLY", Name: "Team", Price: 49900, Currency: "INR", Active: true}
	if err := gdb.Create([]*models.Product{proPlan, teamPlan}).Error; err != nil {
		t.Fatalf("create products: %v", err)
	}

	productsSvc, err := products.NewService(products.ServiceParams{Repo: products.NewRepository(gdb)})
	if err != nil {
		t.Fatalf("products service: %v", err)
	}
	payments := &stubPaymentClient{keyID: "rzp_test_key", orderID: "order_stub", verifyOK: true}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	service, err := NewService(ServiceParams{
		Repo:              NewRepository(gdb),
		Users:             users.NewRepository(gdb),
		Products:          productsSvc,
		Payments:          payments,
		TransactionRunner: gormTxRunner{db: gdb},
		Logger:            logg,
		GrantWindow:       30 * 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("billing service: %v", err)
	}
	return &billingFixture{service: service, payments: payments, db: gdb, user: user, proPlan: proPlan, teamPlan: teamPlan}
}

func (f *billingFixture) createOrder(t *testing.T, providerOrderID string, product *models.Product) *models.Order {
	t.Helper()
	order := &models.Order{
		ID:              uuid.New(),
		Provider:        "razorpay",
		ProviderOrderID: providerOrderID,
		UserID:          f.user.ID,
		ProductID:       product.ID,
		Amount:          product.Price,
		Currency:        product.Currency,
		Status:          enums.OrderStatusCreated,
	}
	if err := f.db.Create(order).Error; err != nil {
		t.Fatalf("create order: %v", err)
	}
	return order
}

func TestService_CheckoutReturnsProviderHandoff(t *testing.T) {
	f := newBillingFixture(t)
	f.payments.orderID = "order_chk_1"

	dto, err := f.service.Checkout(context.Background(), f.user.ID, "PRO_MONTHLY")
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if dto.ProviderOrderID != "order_chk_1" {
		t.Fatalf("unexpected provider order id %q", dto.ProviderOrderID)
	}
	if dto.KeyID != "rzp_test_key" {
		t.Fatalf("unexpected key id %q", dto.KeyID)
	}
	if dto.Amount != 19900 || dto.Currency != "INR" {
		t.Fatalf("unexpected amount %d %s", dto.Amount, dto.Currency)
	}
	if len(f.payments.createdOrders) != 1 {
		t.Fatalf("expected one provider order, got %d", len(f.payments.createdOrders))
	}

	var order models.Order
	if err := f.db.First(&order, "provider_order_id = ?", "order_chk_1").Error; err != nil {
		t.Fatalf("expected local order persisted: %v", err)
	}
	if order.Status != enums.OrderStatusCreated {
		t.Fatalf("unexpected order status %s", order.Status)
	}
}

func TestService_CheckoutUnknownProduct(t *testing.T) {
	f := newBillingFixture(t)

	_, err := f.service.Checkout(context.Background(), f.user.ID, "GOLD_MONTHLY")
	if err == nil {
		t.Fatal("expected error for unknown product")
	}
	if domainErr := pkgerrors.As(err); domainErr == nil || domainErr.Code() != pkgerrors.CodeInvalidProduct {
		t.Fatalf("expected invalid product code, got %v", err)
	}
}

func TestService_ReconcileActivatesSubscriptionAndTier(t *testing.T) {
	f := newBillingFixture(t)
	f.createOrder(t, "order_rec_1", f.proPlan)

	payload, _ := json.Marshal(map[string]string{"id": "pay_rec_1", "status": "captured"})
	result, err := f.service.ReconcilePayment(context.Background(), ReconcileParams{
		ProviderOrderID:   "order_rec_1",
		ProviderPaymentID: "pay_rec_1",
		ProviderStatus:    "captured",
		RawPayload:        map[string]json.RawMessage{"payment": payload},
	})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !result.OrderFound || !result.SubscriptionCreated {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.TierSet != enums.TierPro {
		t.Fatalf("expected PRO tier, got %q", result.TierSet)
	}

	var sub models.UserSubscription
	if err := f.db.First(&sub, "provider_sub_id = ?", "pay_rec_1").Error; err != nil {
		t.Fatalf("expected subscription: %v", err)
	}
	if sub.Status != enums.SubscriptionStatusActive {
		t.Fatalf("unexpected status %s", sub.Status)
	}
	if sub.CurrentPeriodEnd == nil || time.Until(*sub.CurrentPeriodEnd) < 29*24*time.Hour {
		t.Fatalf("unexpected period end %v", sub.CurrentPeriodEnd)
	}

	var user models.User
	if err := f.db.First(&user, "id = ?", f.user.ID).Error; err != nil {
		t.Fatalf("load user: %v", err)
	}
	if user.Tier != enums.TierPro {
		t.Fatalf("expected user tier PRO, got %s", user.Tier)
	}

	var order models.Order
	if err := f.db.First(&order, "provider_order_id = ?", "order_rec_1").Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if order.Status != enums.OrderStatusCaptured {
		t.Fatalf("unexpected order status %s", order.Status)
	}
	if order.ProviderPaymentID == nil || *order.ProviderPaymentID != "pay_rec_1" {
		t.Fatalf("expected payment id stamped on order")
	}
}

func TestService_ReconcileIsIdempotentOnRedelivery(t *testing.T) {
	f := newBillingFixture(t)
	f.createOrder(t, "order_dup", f.proPlan)

	params := ReconcileParams{
		ProviderOrderID:   "order_dup",
		ProviderPaymentID: "pay_dup",
		ProviderStatus:    "captured",
	}
	if _, err := f.service.ReconcilePayment(context.Background(), params); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}
	second, err := f.service.ReconcilePayment(context.Background(), params)
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if second.SubscriptionCreated {
		t.Fatal("redelivery must not create a second subscription")
	}

	var count int64
	if err := f.db.Model(&models.UserSubscription{}).Where("user_id = ?", f.user.ID).Count(&count).Error; err != nil {
		t.Fatalf("count subscriptions: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one subscription, got %d", count)
	}
}

func TestService_ReconcileUpgradeKeepsOneActiveSubscription(t *testing.T) {
	f := newBillingFixture(t)
	f.createOrder(t, "order_up_1", f.proPlan)
	f.createOrder(t, "order_up_2", f.teamPlan)

	if _, err := f.service.ReconcilePayment(context.Background(), ReconcileParams{
		ProviderOrderID:   "order_up_1",
		ProviderPaymentID: "pay_up_1",
		ProviderStatus:    "captured",
	}); err != nil {
		t.Fatalf("first purchase: %v", err)
	}
	result, err := f.service.ReconcilePayment(context.Background(), ReconcileParams{
		ProviderOrderID:   "order_up_2",
		ProviderPaymentID: "pay_up_2",
		ProviderStatus:    "captured",
	})
	if err != nil {
		t.Fatalf("upgrade purchase: %v", err)
	}
	if result.TierSet != enums.TierTeam {
		t.Fatalf("expected TEAM tier, got %q", result.TierSet)
	}

	var active int64
	if err := f.db.Model(&models.UserSubscription{}).
		Where("user_id = ? AND status = ?", f.user.ID, enums.SubscriptionStatusActive).
		Count(&active).Error; err != nil {
		t.Fatalf("count active: %v", err)
	}
	if active != 1 {
		t.Fatalf("expected one active subscription after upgrade, got %d", active)
	}

	sub, err := f.service.Subscription(context.Background(), f.user.ID)
	if err != nil {
		t.Fatalf("subscription lookup: %v", err)
	}
	if sub == nil || sub.ProductID != f.teamPlan.ID {
		t.Fatalf("expected entitling subscription on team plan")
	}
}

func TestService_ReconcileUnknownOrderIsAcknowledged(t *testing.T) {
	f := newBillingFixture(t)

	result, err := f.service.ReconcilePayment(context.Background(), ReconcileParams{
		ProviderOrderID:   "order_ghost",
		ProviderPaymentID: "pay_ghost",
	})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if result.OrderFound || result.SubscriptionCreated {
		t.Fatalf("unexpected result %+v", result)
	}

	var count int64
	if err := f.db.Model(&models.UserSubscription{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no subscriptions, got %d", count)
	}
}

func TestService_RecordPaymentAttemptFailedMarksOrder(t *testing.T) {
	f := newBillingFixture(t)
	order := f.createOrder(t, "order_fail", f.proPlan)

	err := f.service.RecordPaymentAttempt(context.Background(), ReconcileParams{
		ProviderOrderID:   order.ProviderOrderID,
		ProviderPaymentID: "pay_fail",
		ProviderStatus:    "failed",
	})
	if err != nil {
		t.Fatalf("record attempt: %v", err)
	}

	var stored models.Order
	if err := f.db.First(&stored, "id = ?", order.ID).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if stored.Status != enums.OrderStatusFailed {
		t.Fatalf("expected failed status, got %s", stored.Status)
	}
	if stored.ProviderPaymentID == nil || *stored.ProviderPaymentID != "pay_fail" {
		t.Fatalf("payment id not stamped: %+v", stored.ProviderPaymentID)
	}

	var subs int64
	if err := f.db.Model(&models.UserSubscription{}).Count(&subs).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if subs != 0 {
		t.Fatal("failed payment must not provision a subscription")
	}
}

func TestService_MarkOrderPaidRecordsOrderEntity(t *testing.T) {
	f := newBillingFixture(t)
	order := f.createOrder(t, "order_op", f.proPlan)

	raw, _ := json.Marshal(map[string]any{"id": "order_op", "status": "paid", "amount_paid": 19900})
	if err := f.service.MarkOrderPaid(context.Background(), order.ProviderOrderID, raw); err != nil {
		t.Fatalf("mark order paid: %v", err)
	}

	var stored models.Order
	if err := f.db.First(&stored, "id = ?", order.ID).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if stored.Status != enums.OrderStatusPaid {
		t.Fatalf("expected paid status, got %s", stored.Status)
	}
	var meta map[string]json.RawMessage
	if err := json.Unmarshal(stored.Metadata, &meta); err != nil {
		t.Fatalf("decode metadata: %v", err)
	}
	if _, ok := meta["order"]; !ok {
		t.Fatal("expected order entity merged into metadata")
	}

	var subs int64
	if err := f.db.Model(&models.UserSubscription{}).Count(&subs).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if subs != 0 {
		t.Fatal("order-level paid signal must not provision a subscription")
	}
}

func TestService_MarkOrderPaidKeepsSettledStatus(t *testing.T) {
	f := newBillingFixture(t)
	order := f.createOrder(t, "order_settled", f.proPlan)
	if err := f.db.Model(order).Update("status", enums.OrderStatusCaptured).Error; err != nil {
		t.Fatalf("settle order: %v", err)
	}

	raw, _ := json.Marshal(map[string]any{"id": "order_settled", "status": "paid"})
	if err := f.service.MarkOrderPaid(context.Background(), order.ProviderOrderID, raw); err != nil {
		t.Fatalf("mark order paid: %v", err)
	}

	var stored models.Order
	if err := f.db.First(&stored, "id = ?", order.ID).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if stored.Status != enums.OrderStatusCaptured {
		t.Fatalf("captured order must keep its status, got %s", stored.Status)
	}
}

func TestService_MarkOrderPaidUnknownOrderIsAcknowledged(t *testing.T) {
	f := newBillingFixture(t)

	if err := f.service.MarkOrderPaid(context.Background(), "order_ghost", nil); err != nil {
		t.Fatalf("unknown order must be acknowledged: %v", err)
	}
}

func TestService_VerifyRejectsBadSignatureWithoutSideEffects(t *testing.T) {
	f := newBillingFixture(t)
	f.createOrder(t, "order_ver", f.proPlan)
	f.payments.verifyOK = false

	_, err := f.service.VerifyClientPayment(context.Background(), f.user.ID, VerifyParams{
		ProviderOrderID:   "order_ver",
		ProviderPaymentID: "pay_ver",
		Signature:         "tampered",
	})
	if err == nil {
		t.Fatal("expected signature error")
	}
	if domainErr := pkgerrors.As(err); domainErr == nil || domainErr.Code() != pkgerrors.CodeSignature {
		t.Fatalf("expected signature code, got %v", err)
	}

	var subCount int64
	if err := f.db.Model(&models.UserSubscription{}).Count(&subCount).Error; err != nil {
		t.Fatalf("count subscriptions: %v", err)
	}
	if subCount != 0 {
		t.Fatal("rejected verification must not create subscriptions")
	}
	var order models.Order
	if err := f.db.First(&order, "provider_order_id = ?", "order_ver").Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if order.Status != enums.OrderStatusCreated {
		t.Fatalf("rejected verification must not touch the order, got status %s", order.Status)
	}
}

func TestService_VerifyUnknownOrderReturnsNotFound(t *testing.T) {
	f := newBillingFixture(t)

	_, err := f.service.VerifyClientPayment(context.Background(), f.user.ID, VerifyParams{
		ProviderOrderID:   "order_missing",
		ProviderPaymentID: "pay_missing",
		Signature:         "sig",
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if domainErr := pkgerrors.As(err); domainErr == nil || domainErr.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found code, got %v", err)
	}
}

func TestService_VerifyActivatesSubscription(t *testing.T) {
	f := newBillingFixture(t)
	f.createOrder(t, "order_ok", f.proPlan)

	result, err := f.service.VerifyClientPayment(context.Background(), f.user.ID, VerifyParams{
		ProviderOrderID:   "order_ok",
		ProviderPaymentID: "pay_ok",
		Signature:         "sig",
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !result.SubscriptionCreated {
		t.Fatal("expected subscription created")
	}

	var order models.Order
	if err := f.db.First(&order, "provider_order_id = ?", "order_ok").Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	var meta map[string]json.RawMessage
	if err := json.Unmarshal(order.Metadata, &meta); err != nil {
		t.Fatalf("decode metadata: %v", err)
	}
	if string(meta["verified"]) != "true" {
		t.Fatalf("expected verified marker in metadata, got %s", order.Metadata)
	}
}

func TestService_GrantProductAssignsWithoutPayment(t *testing.T) {
	f := newBillingFixture(t)

	sub, err := f.service.GrantProduct(context.Background(), f.user.ID, "TEAM_MONTHLY")
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if sub.Provider != "manual_cms_grant" {
		t.Fatalf("unexpected provider %q", sub.Provider)
	}
	if sub.Status != enums.SubscriptionStatusActive {
		t.Fatalf("unexpected status %s", sub.Status)
	}

	var user models.User
	if err := f.db.First(&user, "id = ?", f.user.ID).Error; err != nil {
		t.Fatalf("load user: %v", err)
	}
	if user.Tier != enums.TierTeam {
		t.Fatalf("expected TEAM tier, got %s", user.Tier)
	}
}

func TestService_GrantProductEmptyKeyRevokes(t *testing.T) {
	f := newBillingFixture(t)
	if _, err := f.service.GrantProduct(context.Background(), f.user.ID, "TEAM_MONTHLY"); err != nil {
		t.Fatalf("grant: %v", err)
	}

	sub, err := f.service.GrantProduct(context.Background(), f.user.ID, "")
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if sub != nil {
		t.Fatalf("revoke must not create a subscription, got %+v", sub)
	}

	entitling, err := f.service.Subscription(context.Background(), f.user.ID)
	if err != nil {
		t.Fatalf("subscription: %v", err)
	}
	if entitling != nil {
		t.Fatalf("expected no entitling subscription, got %+v", entitling)
	}
	var user models.User
	if err := f.db.First(&user, "id = ?", f.user.ID).Error; err != nil {
		t.Fatalf("load user: %v", err)
	}
	if user.Tier != enums.TierFree {
		t.Fatalf("expected FREE tier after revoke, got %s", user.Tier)
	}
}

func TestService_CancelSubscriptionDropsToFree(t *testing.T) {
	f := newBillingFixture(t)
	if _, err := f.service.GrantProduct(context.Background(), f.user.ID, "PRO_MONTHLY"); err != nil {
		t.Fatalf("grant: %v", err)
	}

	if err := f.service.CancelSubscription(context.Background(), f.user.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	sub, err := f.service.Subscription(context.Background(), f.user.ID)
	if err != nil {
		t.Fatalf("subscription: %v", err)
	}
	if sub != nil {
		t.Fatalf("expected no entitling subscription, got %+v", sub)
	}
	var user models.User
	if err := f.db.First(&user, "id = ?", f.user.ID).Error; err != nil {
		t.Fatalf("load user: %v", err)
	}
	if user.Tier != enums.TierFree {
		t.Fatalf("expected FREE tier, got %s", user.Tier)
	}
}
