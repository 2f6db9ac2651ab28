package database

import (
	"time"

	"github.com/google/uuid"

	"github.com/mehtab-afsar/qcombinator-backend/internal/scoring"
)

// Data sources for a score snapshot.
const (
	SourceAssessment      = "assessment"
	SourceAgentCompletion = "agent_completion"
)

// User represents a founder account
type User struct {
	ID        string    `json:"id" db:"id"`
	Email     string    `json:"email,omitempty" db:"email"`
	IPAddress string    `json:"-" db:"ip_address"`
	UserAgent string    `json:"-" db:"user_agent"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// AssessmentSubmission is the raw questionnaire payload a founder submitted,
// kept for traceability between answers and the score they produced.
type AssessmentSubmission struct {
	ID        string     `json:"id" db:"id"`
	UserID    string     `json:"user_id" db:"user_id"`
	Sector    string     `json:"sector" db:"sector"`
	Payload   string     `json:"-" db:"payload"` // JSON of the submitted sections
	Status    string     `json:"status" db:"status"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	ScoredAt  *time.Time `json:"scored_at,omitempty" db:"scored_at"`
}

// ScoreSnapshot is one immutable entry in a founder's score history.
// Snapshots are never updated; a rescore or boost appends a new row whose
// PreviousScoreID points at the row it supersedes.
type ScoreSnapshot struct {
	ID                 string                  `json:"id" db:"id"`
	UserID             string                  `json:"user_id" db:"user_id"`
	PreviousScoreID    *string                 `json:"previous_score_id,omitempty" db:"previous_score_id"`
	OverallScore       int                     `json:"overall_score" db:"overall_score"`
	Percentile         *int                    `json:"percentile,omitempty" db:"percentile"`
	Grade              string                  `json:"grade" db:"grade"`
	Dimensions         scoring.DimensionScores `json:"dimensions" db:"dimensions"`
	Sector             string                  `json:"sector" db:"sector"`
	DataSource         string                  `json:"data_source" db:"data_source"`
	SourceArtifactType *string                 `json:"source_artifact_type,omitempty" db:"source_artifact_type"`
	CalculatedAt       time.Time               `json:"calculated_at" db:"calculated_at"`
}

// ActivityLog tracks API requests for quota enforcement
type ActivityLog struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	IPAddress string    `json:"-" db:"ip_address"`
	Endpoint  string    `json:"endpoint" db:"endpoint"`
	Method    string    `json:"method" db:"method"`
	UserAgent string    `json:"-" db:"user_agent"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// UsageStats represents weekly submission statistics
type UsageStats struct {
	UserID              string    `json:"user_id"`
	SubmissionsThisWeek int       `json:"submissions_this_week"`
	WeekStart           time.Time `json:"week_start"`
	WeekEnd             time.Time `json:"week_end"`
}

// CohortScore is one member of the ranking cohort: the latest snapshot per
// founder, reduced to what percentile math needs.
type CohortScore struct {
	UserID       string                  `json:"user_id"`
	OverallScore int                     `json:"overall_score"`
	Dimensions   scoring.DimensionScores `json:"dimensions"`
	Sector       string                  `json:"sector"`
}

// NewUser creates a new user with generated ID
func NewUser(ipAddress, userAgent string) *User {
	now := time.Now()
	return &User{
		ID:        uuid.New().String(),
		IPAddress: ipAddress,
		UserAgent: userAgent,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewActivityLog creates a new activity log entry
func NewActivityLog(userID, ipAddress, endpoint, method, userAgent string) *ActivityLog {
	return &ActivityLog{
		ID:        uuid.New().String(),
		UserID:    userID,
		IPAddress: ipAddress,
		Endpoint:  endpoint,
		Method:    method,
		UserAgent: userAgent,
		CreatedAt: time.Now(),
	}
}
