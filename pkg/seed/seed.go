package seed

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/planmint/planmint-backend/pkg/db/models"
	"github.com/planmint/planmint-backend/pkg/logger"
)

type featureSeed struct {
	key         string
	description string
}

type productSeed struct {
	key         string
	name        string
	description string
	price       int64
	currency    string
	features    map[string]json.RawMessage
}

var featureCatalog = []featureSeed{
	{key: "AI_PLAN", description: "AI plan generation access"},
	{key: "MAX_PLANS", description: "Maximum number of plans allowed"},
	{key: "AI_GEN_LIMIT", description: "Monthly AI generation quota"},
	{key: "MAX_PLAN_DAYS", description: "Maximum plan duration in days"},
}

var productCatalog = []productSeed{
	{
		key:         "PRO_MONTHLY",
		name:        "Pro (Monthly)",
		description: "Pro monthly subscription",
		price:       19900,
		currency:    "INR",
		features: map[string]json.RawMessage{
			"AI_PLAN":   json.RawMessage(`{"enabled":true}`),
			"MAX_PLANS": json.RawMessage(`{"limit":100}`),
		},
	},
	{
		key:         "TEAM_MONTHLY",
		name:        "Team (Monthly)",
		description: "Team monthly subscription",
		price:       49900,
		currency:    "INR",
		features: map[string]json.RawMessage{
			"AI_PLAN": json.RawMessage(`{"enabled":true}`),
		},
	},
}

// Catalog upserts the default product and feature catalog. Existing rows are
// left untouched so CMS edits survive restarts.
func Catalog(ctx context.Context, gdb *gorm.DB, logg *logger.Logger) error {
	if gdb == nil {
		return fmt.Errorf("db is required")
	}

	featuresByKey := make(map[string]models.Feature, len(featureCatalog))
	for _, fs := range featureCatalog {
		feature := models.Feature{Key: fs.key, Description: ptr(fs.description)}
		if err := gdb.WithContext(ctx).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "key"}}, DoNothing: true}).
			Create(&feature).Error; err != nil {
			return fmt.Errorf("seed feature %s: %w", fs.key, err)
		}
		if err := gdb.WithContext(ctx).Where("key = ?", fs.key).First(&feature).Error; err != nil {
			return fmt.Errorf("load feature %s: %w", fs.key, err)
		}
		featuresByKey[fs.key] = feature
	}

	for _, ps := range productCatalog {
		product := models.Product{
			Key:         ps.key,
			Name:        ps.name,
			Description: ptr(ps.description),
			Price:       ps.price,
			Currency:    ps.currency,
			Active:      true,
		}
		if err := gdb.WithContext(ctx).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "key"}}, DoNothing: true}).
			Create(&product).Error; err != nil {
			return fmt.Errorf("seed product %s: %w", ps.key, err)
		}
		if err := gdb.WithContext(ctx).Where("key = ?", ps.key).First(&product).Error; err != nil {
			return fmt.Errorf("load product %s: %w", ps.key, err)
		}

		for featureKey, value := range ps.features {
			feature, ok := featuresByKey[featureKey]
			if !ok {
				return fmt.Errorf("product %s references unknown feature %s", ps.key, featureKey)
			}
			pf := models.ProductFeature{
				ProductID: product.ID,
				FeatureID: feature.ID,
				Value:     value,
			}
			if err := gdb.WithContext(ctx).
				Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "product_id"}, {Name: "feature_id"}},
					DoNothing: true,
				}).
				Create(&pf).Error; err != nil {
				return fmt.Errorf("seed product feature %s/%s: %w", ps.key, featureKey, err)
			}
		}
	}

	if logg != nil {
		logg.Info(ctx, "product catalog seeded")
	}
	return nil
}

func ptr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
