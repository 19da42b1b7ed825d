package models

import (
	"time"

	"github.com/google/uuid"
)

// Plan is a user's planning document. Creation is gated by the entitlement
// resolver (plan count and duration limits).
type Plan struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID      uuid.UUID  `gorm:"column:user_id;type:uuid;not null;index"`
	Title       string     `gorm:"column:title;not null"`
	Description *string    `gorm:"column:description"`
	StartDate   *time.Time `gorm:"column:start_date"`
	EndDate     *time.Time `gorm:"column:end_date"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`

	Tasks []Task `gorm:"foreignKey:PlanID"`
}

// Task is a single dated entry inside a plan.
type Task struct {
	ID               uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	PlanID           uuid.UUID  `gorm:"column:plan_id;type:uuid;not null;index"`
	UserID           uuid.UUID  `gorm:"column:user_id;type:uuid;not null;index"`
	Title            string     `gorm:"column:title;not null"`
	Description      *string    `gorm:"column:description"`
	Date             *time.Time `gorm:"column:date"`
	Priority         *string    `gorm:"column:priority"`
	EstimatedMinutes *int       `gorm:"column:estimated_minutes"`
	Status           string     `gorm:"column:status;not null;default:'Pending'"`
	CreatedAt        time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;autoUpdateTime"`

	Subtasks []Subtask `gorm:"foreignKey:TaskID"`
}

// Subtask is a checklist line under a task.
type Subtask struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	TaskID    uuid.UUID `gorm:"column:task_id;type:uuid;not null;index"`
	Title     string    `gorm:"column:title;not null"`
	Done      bool      `gorm:"column:done;not null;default:false"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
