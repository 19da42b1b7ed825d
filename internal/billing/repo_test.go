package billing

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/planmint/planmint-backend/pkg/db/models"
	"github.com/planmint/planmint-backend/pkg/enums"
	"github.com/planmint/planmint-backend/pkg/pagination"
)

func seedOrder(t *testing.T, gdb *gorm.DB, userID, productID uuid.UUID, status enums.OrderStatus, createdAt time.Time) *models.Order {
	t.Helper()
	order := &models.Order{
		ID:              uuid.New(),
		Provider:        "razorpay",
		ProviderOrderID: "order_" + uuid.NewString(),
		UserID:          userID,
		ProductID:       productID,
		Amount:          19900,
		Currency:        "INR",
		Status:          status,
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}
	if err := gdb.Create(order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return order
}

func TestListOrdersPaginatesWithCursor(t *testing.T) {
	f := newBillingFixture(t)
	repo := NewRepository(f.db)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		seedOrder(t, f.db, f.user.ID, f.proPlan.ID, enums.OrderStatusCaptured, base.Add(time.Duration(i)*time.Minute))
	}

	page1, cursor, err := repo.ListOrders(ctx, ListOrdersQuery{
		Pagination: pagination.Params{Limit: 2},
	})
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if len(page1) != 2 || cursor == "" {
		t.Fatalf("expected 2 rows and a cursor, got %d rows cursor=%q", len(page1), cursor)
	}
	if !page1[0].CreatedAt.After(page1[1].CreatedAt) {
		t.Fatal("orders must be newest first")
	}

	page2, cursor2, err := repo.ListOrders(ctx, ListOrdersQuery{
		Pagination: pagination.Params{Limit: 2, Cursor: cursor},
	})
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if len(page2) != 2 {
		t.Fatalf("expected 2 rows on page 2, got %d", len(page2))
	}
	if page2[0].ID == page1[1].ID {
		t.Fatal("page 2 must not repeat page 1 rows")
	}

	page3, cursor3, err := repo.ListOrders(ctx, ListOrdersQuery{
		Pagination: pagination.Params{Limit: 2, Cursor: cursor2},
	})
	if err != nil {
		t.Fatalf("page 3: %v", err)
	}
	if len(page3) != 1 || cursor3 != "" {
		t.Fatalf("expected final page with 1 row and no cursor, got %d rows cursor=%q", len(page3), cursor3)
	}
}

func TestListOrdersFilters(t *testing.T) {
	f := newBillingFixture(t)
	repo := NewRepository(f.db)
	ctx := context.Background()
	other := &models.User{ID: uuid.New(), Email: "other@example.com", Tier: enums.TierFree, Role: enums.RoleUser}
	if err := f.db.Create(other).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	now := time.Now().UTC()
	seedOrder(t, f.db, f.user.ID, f.proPlan.ID, enums.OrderStatusCaptured, now.Add(-3*time.Minute))
	seedOrder(t, f.db, f.user.ID, f.proPlan.ID, enums.OrderStatusCreated, now.Add(-2*time.Minute))
	seedOrder(t, f.db, other.ID, f.proPlan.ID, enums.OrderStatusCaptured, now.Add(-time.Minute))

	status := enums.OrderStatusCaptured
	orders, _, err := repo.ListOrders(ctx, ListOrdersQuery{
		UserID:     &f.user.ID,
		Status:     &status,
		Pagination: pagination.Params{Limit: 10},
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("expected 1 captured order for user, got %d", len(orders))
	}
	if orders[0].UserID != f.user.ID || orders[0].Status != enums.OrderStatusCaptured {
		t.Fatalf("filter leaked: %+v", orders[0])
	}
	if orders[0].Product == nil {
		t.Fatal("expected product preloaded")
	}
}

func TestFindOrderByProviderOrderIDNotFoundIsNil(t *testing.T) {
	f := newBillingFixture(t)
	repo := NewRepository(f.db)

	order, err := repo.FindOrderByProviderOrderID(context.Background(), "order_missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order != nil {
		t.Fatalf("expected nil for unknown provider order, got %+v", order)
	}
}

func TestFindEntitlingSubscriptionPrefersLatestPeriodEnd(t *testing.T) {
	f := newBillingFixture(t)
	repo := NewRepository(f.db)
	ctx := context.Background()
	now := time.Now().UTC()

	near := now.Add(24 * time.Hour)
	far := now.Add(30 * 24 * time.Hour)
	subs := []*models.UserSubscription{
		{ID: uuid.New(), UserID: f.user.ID, ProductID: f.proPlan.ID, Status: enums.SubscriptionStatusActive, StartedAt: now, CurrentPeriodEnd: &near, Provider: "razorpay", ProviderSubID: "pay_near"},
		{ID: uuid.New(), UserID: f.user.ID, ProductID: f.teamPlan.ID, Status: enums.SubscriptionStatusTrialing, StartedAt: now, CurrentPeriodEnd: &far, Provider: "razorpay", ProviderSubID: "pay_far"},
		{ID: uuid.New(), UserID: f.user.ID, ProductID: f.proPlan.ID, Status: enums.SubscriptionStatusCanceled, StartedAt: now, Provider: "razorpay", ProviderSubID: "pay_dead"},
	}
	for _, sub := range subs {
		if err := f.db.Create(sub).Error; err != nil {
			t.Fatalf("seed subscription: %v", err)
		}
	}

	sub, err := repo.FindEntitlingSubscription(ctx, f.user.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if sub == nil || sub.ProviderSubID != "pay_far" {
		t.Fatalf("expected the trialing sub with the latest period end, got %+v", sub)
	}
	if sub.Product == nil {
		t.Fatal("expected product preloaded for feature resolution")
	}

	missing, err := repo.FindEntitlingSubscription(ctx, uuid.New())
	if err != nil {
		t.Fatalf("find missing: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for user without subscriptions, got %+v", missing)
	}
}

func TestCancelActiveSubscriptionsLeavesCanceledRows(t *testing.T) {
	f := newBillingFixture(t)
	repo := NewRepository(f.db)
	ctx := context.Background()
	now := time.Now().UTC()

	active := &models.UserSubscription{ID: uuid.New(), UserID: f.user.ID, ProductID: f.proPlan.ID, Status: enums.SubscriptionStatusActive, StartedAt: now, Provider: "razorpay", ProviderSubID: "pay_active"}
	canceled := &models.UserSubscription{ID: uuid.New(), UserID: f.user.ID, ProductID: f.proPlan.ID, Status: enums.SubscriptionStatusCanceled, StartedAt: now.Add(-time.Hour), Provider: "razorpay", ProviderSubID: "pay_old"}
	for _, sub := range []*models.UserSubscription{active, canceled} {
		if err := f.db.Create(sub).Error; err != nil {
			t.Fatalf("seed subscription: %v", err)
		}
	}

	if err := repo.CancelActiveSubscriptions(ctx, f.user.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	var statuses []string
	if err := f.db.Model(&models.UserSubscription{}).Where("user_id = ?", f.user.ID).Pluck("status", &statuses).Error; err != nil {
		t.Fatalf("load statuses: %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("cancellation must not delete rows, got %d", len(statuses))
	}
	for _, status := range statuses {
		if status != string(enums.SubscriptionStatusCanceled) {
			t.Fatalf("expected all rows canceled, got %q", status)
		}
	}
}
