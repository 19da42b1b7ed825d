package plans

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/planmint/planmint-backend/pkg/db/models"
	pkgerrors "github.com/planmint/planmint-backend/pkg/errors"
)

type entitlementGate interface {
	AssertPlanCreationAllowed(ctx context.Context, userID uuid.UUID) error
	MaxPlanDays(ctx context.Context, userID uuid.UUID) (int, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	Repo              Repository
	Entitlements      entitlementGate
	TransactionRunner txRunner
}

// Service owns plan CRUD. Every creation path runs through the entitlement
// gate before any row is written.
type Service struct {
	repo         Repository
	entitlements entitlementGate
	txRunner     txRunner
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Entitlements == nil {
		return nil, errors.New("entitlement gate is required")
	}
	if params.TransactionRunner == nil {
		return nil, errors.New("transaction runner is required")
	}
	return &Service{
		repo:         params.Repo,
		entitlements: params.Entitlements,
		txRunner:     params.TransactionRunner,
	}, nil
}

// CreatePlanInput is the user-supplied plan shell.
type CreatePlanInput struct {
	Title       string     `json:"title" validate:"required,max=200"`
	Description *string    `json:"description,omitempty"`
	StartDate   *time.Time `json:"start_date,omitempty"`
	EndDate     *time.Time `json:"end_date,omitempty"`
}

// Create makes an empty plan after checking the count and duration gates.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, input CreatePlanInput) (*models.Plan, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan title is required")
	}
	if err := s.entitlements.AssertPlanCreationAllowed(ctx, userID); err != nil {
		return nil, err
	}
	if err := s.assertDurationAllowed(ctx, userID, input.StartDate, input.EndDate); err != nil {
		return nil, err
	}

	plan := &models.Plan{
		UserID:      userID,
		Title:       title,
		Description: input.Description,
		StartDate:   input.StartDate,
		EndDate:     input.EndDate,
	}
	if err := s.repo.Create(ctx, plan); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create plan")
	}
	return plan, nil
}

func (s *Service) assertDurationAllowed(ctx context.Context, userID uuid.UUID, start, end *time.Time) error {
	if start == nil || end == nil {
		return nil
	}
	if end.Before(*start) {
		return pkgerrors.New(pkgerrors.CodeValidation, "end date precedes start date")
	}
	maxDays, err := s.entitlements.MaxPlanDays(ctx, userID)
	if err != nil {
		return err
	}
	days := int(end.Sub(*start).Hours()/24) + 1
	if days > maxDays {
		return pkgerrors.New(pkgerrors.CodeEntitlementLimit, "plan duration exceeds your limit").
			WithDetails(map[string]any{"max_days": maxDays, "requested_days": days})
	}
	return nil
}

// Get returns the plan with its task tree, owner-checked.
func (s *Service) Get(ctx context.Context, userID, planID uuid.UUID) (*models.Plan, error) {
	plan, err := s.repo.FindByID(ctx, planID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find plan")
	}
	if plan == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
	}
	if plan.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "plan belongs to another user")
	}
	return plan, nil
}

// List returns the user's plans, newest first, without task trees.
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]models.Plan, error) {
	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list plans")
	}
	return rows, nil
}

// Delete removes the plan and its tasks, owner-checked.
func (s *Service) Delete(ctx context.Context, userID, planID uuid.UUID) error {
	plan, err := s.repo.FindByID(ctx, planID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find plan")
	}
	if plan == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
	}
	if plan.UserID != userID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "plan belongs to another user")
	}
	if err := s.repo.Delete(ctx, planID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete plan")
	}
	return nil
}

// PlanImport is the document shape accepted by ImportJSON. It matches the
// JSON the AI generator emits, so generated plans can be imported as-is.
type PlanImport struct {
	Title       string       `json:"title"`
	Description *string      `json:"description,omitempty"`
	StartDate   *time.Time   `json:"start_date,omitempty"`
	EndDate     *time.Time   `json:"end_date,omitempty"`
	Tasks       []TaskImport `json:"tasks"`
}

type TaskImport struct {
	Title            string          `json:"title"`
	Description      *string         `json:"description,omitempty"`
	Date             *time.Time      `json:"date,omitempty"`
	Priority         *string         `json:"priority,omitempty"`
	EstimatedMinutes *int            `json:"estimated_minutes,omitempty"`
	Subtasks         []SubtaskImport `json:"subtasks,omitempty"`
}

type SubtaskImport struct {
	Title string `json:"title"`
	Done  bool   `json:"done"`
}

// ImportJSON decodes a full plan document and creates the plan, tasks, and
// subtasks in a single transaction. The entitlement gates run once up front,
// so a rejected import leaves no partial rows behind.
func (s *Service) ImportJSON(ctx context.Context, userID uuid.UUID, raw json.RawMessage) (*models.Plan, error) {
	var doc PlanImport
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode plan document")
	}
	title := strings.TrimSpace(doc.Title)
	if title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan title is required")
	}
	for i, task := range doc.Tasks {
		if strings.TrimSpace(task.Title) == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "task title is required").
				WithDetails(map[string]any{"task_index": i})
		}
	}

	if err := s.entitlements.AssertPlanCreationAllowed(ctx, userID); err != nil {
		return nil, err
	}
	start, end := doc.StartDate, doc.EndDate
	if start == nil || end == nil {
		start, end = taskDateSpan(doc.Tasks)
	}
	if err := s.assertDurationAllowed(ctx, userID, start, end); err != nil {
		return nil, err
	}

	plan := &models.Plan{
		UserID:      userID,
		Title:       title,
		Description: doc.Description,
		StartDate:   doc.StartDate,
		EndDate:     doc.EndDate,
	}
	for _, task := range doc.Tasks {
		row := models.Task{
			UserID:           userID,
			Title:            strings.TrimSpace(task.Title),
			Description:      task.Description,
			Date:             task.Date,
			Priority:         task.Priority,
			EstimatedMinutes: task.EstimatedMinutes,
			Status:           "Pending",
		}
		for _, sub := range task.Subtasks {
			if strings.TrimSpace(sub.Title) == "" {
				continue
			}
			row.Subtasks = append(row.Subtasks, models.Subtask{
				Title: strings.TrimSpace(sub.Title),
				Done:  sub.Done,
			})
		}
		plan.Tasks = append(plan.Tasks, row)
	}

	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).Create(ctx, plan)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "import plan")
	}
	return plan, nil
}

// taskDateSpan finds the earliest and latest dated task, or nils when no
// task carries a date.
func taskDateSpan(tasks []TaskImport) (*time.Time, *time.Time) {
	var min, max *time.Time
	for _, task := range tasks {
		if task.Date == nil {
			continue
		}
		if min == nil || task.Date.Before(*min) {
			min = task.Date
		}
		if max == nil || task.Date.After(*max) {
			max = task.Date
		}
	}
	return min, max
}
