package store

import (
	"context"
	"time"

	"github.com/sells-group/orion-triage/internal/model"
)

// DecisionFilter specifies criteria for listing decisions.
type DecisionFilter struct {
	Since      time.Time         `json:"since,omitempty"`
	Until      time.Time         `json:"until,omitempty"`
	Code       model.UrgencyCode `json:"code,omitempty"`
	ReviewOnly bool              `json:"review_only,omitempty"`
	Limit      int               `json:"limit,omitempty"`
	Offset     int               `json:"offset,omitempty"`
}

// Store defines the persistence interface for the triage engine.
type Store interface {
	// Decisions
	SaveDecision(ctx context.Context, d *model.Decision) error
	GetDecision(ctx context.Context, decisionID string) (*model.Decision, error)
	ListDecisions(ctx context.Context, filter DecisionFilter) ([]model.Decision, error)

	// Feedback
	SaveFeedback(ctx context.Context, fr *model.FeedbackRecord) error
	ListFeedback(ctx context.Context, since time.Time, limit int) ([]model.FeedbackRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
