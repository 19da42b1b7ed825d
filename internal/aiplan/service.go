package aiplan

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"

	pkgerrors "github.com/planmint/planmint-backend/pkg/errors"
	"github.com/planmint/planmint-backend/pkg/genai"
	"github.com/planmint/planmint-backend/pkg/logger"
)

type aiGate interface {
	CanUseAIGeneration(ctx context.Context, userID uuid.UUID) (bool, error)
}

type usageMeter interface {
	IncrementAIUsage(ctx context.Context, userID uuid.UUID) error
}

type ServiceParams struct {
	Entitlements aiGate
	Usage        usageMeter
	Generator    genai.Generator
	Logger       *logger.Logger
}

// Service produces plan documents with the text generator, gated and
// metered per user.
type Service struct {
	entitlements aiGate
	usage        usageMeter
	generator    genai.Generator
	logger       *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Entitlements == nil {
		return nil, errors.New("entitlement gate is required")
	}
	if params.Usage == nil {
		return nil, errors.New("usage meter is required")
	}
	if params.Generator == nil {
		return nil, errors.New("generator is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{
		entitlements: params.Entitlements,
		usage:        params.Usage,
		generator:    params.Generator,
		logger:       params.Logger,
	}, nil
}

const promptTemplate = `You are a planning assistant. Produce a JSON object for the goal below with this exact shape:
{"title": string, "description": string, "tasks": [{"title": string, "description": string, "date": RFC3339 date or null, "priority": "High"|"Medium"|"Low", "estimated_minutes": number, "subtasks": [{"title": string, "done": false}]}]}
Return only the JSON object, no prose, no code fences.

Goal: `

// GeneratedPlan is the raw document the model returned, ready for the plan
// import endpoint.
type GeneratedPlan struct {
	Document json.RawMessage `json:"document"`
}

// Generate runs one gated AI plan generation. The usage counter moves only
// after the generator succeeds, so a provider failure never burns quota.
func (s *Service) Generate(ctx context.Context, userID uuid.UUID, goal string) (*GeneratedPlan, error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "goal is required")
	}

	allowed, err := s.entitlements.CanUseAIGeneration(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, pkgerrors.New(pkgerrors.CodeEntitlementLimit, "AI generation limit reached")
	}

	text, err := s.generator.GenerateText(ctx, promptTemplate+goal)
	if err != nil {
		return nil, err
	}
	document, err := extractJSON(text)
	if err != nil {
		return nil, err
	}

	if err := s.usage.IncrementAIUsage(ctx, userID); err != nil {
		// The user got their plan; losing one meter tick is preferable to
		// failing the request after the model call was paid for.
		logCtx := s.logger.WithUserID(ctx, userID.String())
		s.logger.Error(logCtx, "increment ai usage", err)
	}
	return &GeneratedPlan{Document: document}, nil
}

// extractJSON pulls the JSON object out of the model response, tolerating
// code fences and surrounding prose.
func extractJSON(text string) (json.RawMessage, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "generator returned no JSON object")
	}
	candidate := []byte(text[start : end+1])
	if !json.Valid(candidate) {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "generator returned malformed JSON")
	}
	return json.RawMessage(candidate), nil
}
