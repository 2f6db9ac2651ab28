// Package boost applies one-time score nudges when a founder completes an
// agent-guided artifact. Each (user, artifact type) pair is applied at most
// once; the snapshot table's unique index enforces that even under
// concurrent requests.
package boost

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mehtab-afsar/qcombinator-backend/internal/database"
	"github.com/mehtab-afsar/qcombinator-backend/internal/scoring"
)

// Reasons a signal was not applied.
const (
	ReasonUnknownArtifact = "unknown_artifact_type"
	ReasonNoBaseScore     = "no_base_score"
	ReasonAlreadyApplied  = "already_applied"
	ReasonInternalError   = "internal_error"
)

// Result is the outcome of applying a completion signal. When Applied is
// false, Reason says why; a repeated signal is a non-event, not an error.
type Result struct {
	Applied  bool                    `json:"applied"`
	Reason   string                  `json:"reason,omitempty"`
	Rule     *Rule                   `json:"rule,omitempty"`
	Snapshot *database.ScoreSnapshot `json:"snapshot,omitempty"`
	Previous *database.ScoreSnapshot `json:"-"`
}

// Service applies agent-completion signals
type Service struct {
	repo      *database.Repository
	onApplied func(userID string)

	// beforeInsert runs between the duplicate check and the snapshot
	// insert; tests use it to race a competing signal into the window.
	beforeInsert func()
}

// NewService creates a new boost service. onApplied runs after a successful
// boost, used to invalidate benchmark caches; it may be nil.
func NewService(repo *database.Repository, onApplied func(userID string)) *Service {
	return &Service{
		repo:      repo,
		onApplied: onApplied,
	}
}

// ApplySignal applies a completion signal for userID and artifactType.
// It never returns an error: every outcome, including storage failure, is
// reported through Result so a flaky boost can never break the caller's
// request flow.
func (s *Service) ApplySignal(userID, artifactType string) Result {
	rule, ok := RuleFor(artifactType)
	if !ok {
		slog.Warn("Unknown artifact type in completion signal",
			"user_id", userID,
			"artifact_type", artifactType)
		return Result{Reason: ReasonUnknownArtifact}
	}

	// Fast path; the unique index is the real authority.
	applied, err := s.repo.HasArtifactSnapshot(userID, artifactType)
	if err != nil {
		slog.Error("Failed to check artifact history",
			"user_id", userID,
			"artifact_type", artifactType,
			"error", err)
		return Result{Reason: ReasonInternalError}
	}
	if applied {
		slog.Info("Completion signal already applied",
			"user_id", userID,
			"artifact_type", artifactType)
		return Result{Reason: ReasonAlreadyApplied, Rule: &rule}
	}

	base, err := s.repo.LatestSnapshot(userID)
	if err != nil {
		slog.Error("Failed to load base snapshot",
			"user_id", userID,
			"error", err)
		return Result{Reason: ReasonInternalError}
	}
	if base == nil {
		// Nothing to boost until the founder has an assessment score.
		slog.Info("Completion signal without base score",
			"user_id", userID,
			"artifact_type", artifactType)
		return Result{Reason: ReasonNoBaseScore, Rule: &rule}
	}

	dims := base.Dimensions
	current, _ := dims.Get(rule.Dimension)
	boosted := current + rule.Points
	if boosted > 100 {
		boosted = 100
	}
	dims.Set(rule.Dimension, boosted)

	overall, err := scoring.CombineOverall(dims, scoring.Sector(base.Sector))
	if err != nil {
		slog.Error("Failed to combine boosted score",
			"user_id", userID,
			"sector", base.Sector,
			"error", err)
		return Result{Reason: ReasonInternalError}
	}

	// Percentile is carried over from the base snapshot rather than
	// recomputed: a boost moves the founder's own trajectory, the cohort
	// standing refreshes on the next assessment.
	snap := &database.ScoreSnapshot{
		ID:                 uuid.New().String(),
		UserID:             userID,
		PreviousScoreID:    &base.ID,
		OverallScore:       overall,
		Percentile:         base.Percentile,
		Grade:              scoring.GradeFor(overall),
		Dimensions:         dims,
		Sector:             base.Sector,
		DataSource:         database.SourceAgentCompletion,
		SourceArtifactType: &rule.ArtifactType,
		CalculatedAt:       time.Now(),
	}

	if s.beforeInsert != nil {
		s.beforeInsert()
	}

	if err := s.repo.InsertSnapshot(snap); err != nil {
		if database.IsUniqueViolation(err) {
			// Lost a race with a concurrent identical signal.
			slog.Info("Completion signal raced an identical one",
				"user_id", userID,
				"artifact_type", artifactType)
			return Result{Reason: ReasonAlreadyApplied, Rule: &rule}
		}
		slog.Error("Failed to persist boosted snapshot",
			"user_id", userID,
			"artifact_type", artifactType,
			"error", err)
		return Result{Reason: ReasonInternalError}
	}

	slog.Info("Completion signal applied",
		"user_id", userID,
		"artifact_type", artifactType,
		"dimension", rule.Dimension,
		"points", rule.Points,
		"overall_before", base.OverallScore,
		"overall_after", overall)

	if s.onApplied != nil {
		s.onApplied(userID)
	}

	return Result{
		Applied:  true,
		Rule:     &rule,
		Snapshot: snap,
		Previous: base,
	}
}
