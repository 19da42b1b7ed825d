package entitlements

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/planmint/planmint-backend/pkg/db/models"
	"github.com/planmint/planmint-backend/pkg/enums"
	pkgerrors "github.com/planmint/planmint-backend/pkg/errors"
)

const (
	defaultFreePlanLimit = 3
	defaultFreePlanDays  = 7
	defaultPaidPlanDays  = 30
	legacyPaidAICeiling  = 100
	defaultFreeAICeiling = 1
)

type userSource interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type subscriptionSource interface {
	FindEntitlingSubscription(ctx context.Context, userID uuid.UUID) (*models.UserSubscription, error)
}

type planCounter interface {
	CountByUser(ctx context.Context, userID uuid.UUID) (int64, error)
}

// ResolverParams groups dependencies for the entitlement resolver.
type ResolverParams struct {
	Users         userSource
	Subscriptions subscriptionSource
	Plans         planCounter
}

// Resolver computes the feature set currently in force for a user. It is a
// pure reader; nothing here mutates state.
type Resolver struct {
	users userSource
	subs  subscriptionSource
	plans planCounter
}

// NewResolver builds an entitlement resolver.
func NewResolver(params ResolverParams) (*Resolver, error) {
	if params.Users == nil {
		return nil, errors.New("users source is required")
	}
	if params.Subscriptions == nil {
		return nil, errors.New("subscriptions source is required")
	}
	if params.Plans == nil {
		return nil, errors.New("plan counter is required")
	}
	return &Resolver{users: params.Users, subs: params.Subscriptions, plans: params.Plans}, nil
}

// Source tags where a resolution came from.
type Source string

const (
	SourceProduct Source = "product"
	SourceTier    Source = "tier"
)

// Resolution is the computed entitlement state for one user at one instant.
// It is derived on demand and never cached.
type Resolution struct {
	User     *models.User
	Product  *models.Product
	Source   Source
	Tier     enums.Tier
	Features map[string]FeatureValue
}

// Resolve computes the feature map for the user. With an active or trialing
// subscription whose product still exists, features come strictly from that
// product; otherwise the legacy tier table applies. The two branches never
// merge, so a product override always wins over the tier fallback.
func (r *Resolver) Resolve(ctx context.Context, userID uuid.UUID) (*Resolution, error) {
	user, err := r.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}

	sub, err := r.subs.FindEntitlingSubscription(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load subscription")
	}

	if sub != nil && sub.Product != nil {
		features := make(map[string]FeatureValue, len(sub.Product.ProductFeatures))
		for _, pf := range sub.Product.ProductFeatures {
			if pf.Feature.Key == "" {
				continue
			}
			features[pf.Feature.Key] = DecodeFeatureValue(pf.Value)
		}
		return &Resolution{
			User:     user,
			Product:  sub.Product,
			Source:   SourceProduct,
			Tier:     user.Tier,
			Features: features,
		}, nil
	}

	return &Resolution{
		User:     user,
		Source:   SourceTier,
		Tier:     user.Tier,
		Features: legacyTierFeatures(user.Tier),
	}, nil
}

// legacyTierFeatures is the static table pre-subscription accounts run on.
func legacyTierFeatures(tier enums.Tier) map[string]FeatureValue {
	if tier.IsPaid() {
		return map[string]FeatureValue{
			FeatureAIPlan:   BoolFeature(true),
			FeatureMaxPlans: UnboundedFeature(),
		}
	}
	return map[string]FeatureValue{
		FeatureAIPlan:   BoolFeature(false),
		FeatureMaxPlans: LimitFeature(defaultFreePlanLimit),
	}
}

// Feature is a convenience projection over Resolve.
func (r *Resolver) Feature(ctx context.Context, userID uuid.UUID, key string) (FeatureValue, bool, error) {
	res, err := r.Resolve(ctx, userID)
	if err != nil {
		return FeatureValue{}, false, err
	}
	value, ok := res.Features[key]
	return value, ok, nil
}

// MaxPlanDays returns the longest plan duration the user may create. A
// numeric MAX_PLAN_DAYS feature wins; anything else falls back to the tier
// default.
func (r *Resolver) MaxPlanDays(ctx context.Context, userID uuid.UUID) (int, error) {
	res, err := r.Resolve(ctx, userID)
	if err != nil {
		return 0, err
	}
	if value, ok := res.Features[FeatureMaxPlanDays]; ok && value.Kind == FeatureKindLimit && !value.Unbounded && value.Limit > 0 {
		return int(value.Limit), nil
	}
	if res.Tier == enums.TierFree && res.Source == SourceTier {
		return defaultFreePlanDays, nil
	}
	return defaultPaidPlanDays, nil
}

// AssertPlanCreationAllowed enforces the MAX_PLANS ceiling. The check is
// read-only; the caller creates the plan after it passes.
func (r *Resolver) AssertPlanCreationAllowed(ctx context.Context, userID uuid.UUID) error {
	res, err := r.Resolve(ctx, userID)
	if err != nil {
		return err
	}

	// A product that defines no MAX_PLANS falls to the hard default; the
	// denormalized tier badge carries no authority once a subscription is
	// in place.
	limit := float64(defaultFreePlanLimit)
	if value, ok := res.Features[FeatureMaxPlans]; ok && value.Kind == FeatureKindLimit {
		if value.Unbounded {
			return nil
		}
		limit = value.Limit
	}

	count, err := r.plans.CountByUser(ctx, userID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count plans")
	}
	if float64(count) >= limit {
		return pkgerrors.New(pkgerrors.CodeEntitlementLimit,
			fmt.Sprintf("plan limit reached (%d of %d)", count, int(limit))).
			WithDetails(map[string]any{"limit": int(limit), "count": count})
	}
	return nil
}

// CanUseAIGeneration reports whether the user has AI generations left. It
// never mutates the counter; consumption is metered separately, so callers
// must re-check before every generation.
func (r *Resolver) CanUseAIGeneration(ctx context.Context, userID uuid.UUID) (bool, error) {
	res, err := r.Resolve(ctx, userID)
	if err != nil {
		return false, err
	}
	limit := effectiveAILimit(res)
	if math.IsInf(limit, 1) {
		return true, nil
	}
	return float64(res.User.AIUsageCount) < limit, nil
}

// effectiveAILimit resolves the generation ceiling in precedence order:
// explicit numeric AI_GEN_LIMIT, then AI_PLAN enabled (legacy paid ceiling),
// then paid tier or a PRO-keyed product, then the free-tier single trial use.
func effectiveAILimit(res *Resolution) float64 {
	if value, ok := res.Features[FeatureAIGenLimit]; ok && value.Kind == FeatureKindLimit {
		if value.Unbounded {
			return math.Inf(1)
		}
		return value.Limit
	}
	if value, ok := res.Features[FeatureAIPlan]; ok && value.Kind == FeatureKindBool && value.Enabled {
		return legacyPaidAICeiling
	}
	if res.Tier.IsPaid() {
		return legacyPaidAICeiling
	}
	if res.Product != nil && strings.Contains(strings.ToUpper(res.Product.Key), "PRO") {
		return legacyPaidAICeiling
	}
	return defaultFreeAICeiling
}
