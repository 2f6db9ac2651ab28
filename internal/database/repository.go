package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/mehtab-afsar/qcombinator-backend/internal/scoring"
)

// Repository handles database operations
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// IsUniqueViolation reports whether err is a SQLite unique constraint
// failure. The unique index on (user_id, source_artifact_type) surfaces
// duplicate artifact boosts through this.
func IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// GetOrCreateUser gets an existing user or creates a new one based on IP address
func (r *Repository) GetOrCreateUser(ipAddress, userAgent string) (*User, error) {
	// Try to find existing user by IP
	var user User
	var email, agent sql.NullString
	err := r.db.QueryRow(`
		SELECT id, email, ip_address, user_agent, created_at, updated_at
		FROM users
		WHERE ip_address = ?
		ORDER BY created_at DESC
		LIMIT 1
	`, ipAddress).Scan(
		&user.ID, &email, &user.IPAddress, &agent,
		&user.CreatedAt, &user.UpdatedAt,
	)

	if err == nil {
		user.Email = email.String
		user.UserAgent = agent.String

		// User exists, update last seen
		_, err = r.db.Exec(`
			UPDATE users SET updated_at = ?, user_agent = ? WHERE id = ?
		`, time.Now(), userAgent, user.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to update user: %w", err)
		}
		return &user, nil
	}

	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	// User doesn't exist, create new one
	user = *NewUser(ipAddress, userAgent)
	_, err = r.db.Exec(`
		INSERT INTO users (id, email, ip_address, user_agent, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, user.ID, user.Email, user.IPAddress, user.UserAgent, user.CreatedAt, user.UpdatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return &user, nil
}

// GetUser returns a user by ID
func (r *Repository) GetUser(userID string) (*User, error) {
	var user User
	var email, agent sql.NullString
	err := r.db.QueryRow(`
		SELECT id, email, ip_address, user_agent, created_at, updated_at
		FROM users WHERE id = ?
	`, userID).Scan(
		&user.ID, &email, &user.IPAddress, &agent,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	user.Email = email.String
	user.UserAgent = agent.String
	return &user, nil
}

// CreateSubmission stores the raw assessment payload before scoring
func (r *Repository) CreateSubmission(userID, sector string, sections map[string]scoring.SectionResponse) (*AssessmentSubmission, error) {
	payload, err := json.Marshal(sections)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal submission payload: %w", err)
	}

	sub := &AssessmentSubmission{
		ID:        uuid.New().String(),
		UserID:    userID,
		Sector:    sector,
		Payload:   string(payload),
		Status:    "received",
		CreatedAt: time.Now(),
	}

	stmt, err := r.db.GetPreparedStatement("insert_submission")
	if err != nil {
		return nil, err
	}

	if _, err := stmt.Exec(sub.ID, sub.UserID, sub.Sector, sub.Payload, sub.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to create submission: %w", err)
	}

	return sub, nil
}

// MarkSubmissionScored flips a submission to 'scored' once its snapshot exists
func (r *Repository) MarkSubmissionScored(submissionID string) error {
	stmt, err := r.db.GetPreparedStatement("mark_submission_scored")
	if err != nil {
		return err
	}

	if _, err := stmt.Exec(time.Now(), submissionID); err != nil {
		return fmt.Errorf("failed to mark submission scored: %w", err)
	}

	return nil
}

// InsertSnapshot appends a score snapshot. Duplicate artifact boosts fail
// here with a unique violation; callers check IsUniqueViolation.
func (r *Repository) InsertSnapshot(snap *ScoreSnapshot) error {
	dims, err := json.Marshal(snap.Dimensions)
	if err != nil {
		return fmt.Errorf("failed to marshal dimensions: %w", err)
	}

	stmt, err := r.db.GetPreparedStatement("insert_snapshot")
	if err != nil {
		return err
	}

	_, err = stmt.Exec(
		snap.ID, snap.UserID, snap.PreviousScoreID, snap.OverallScore,
		snap.Percentile, snap.Grade, string(dims), snap.Sector,
		snap.DataSource, snap.SourceArtifactType, snap.CalculatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	return nil
}

func scanSnapshot(scan func(dest ...interface{}) error) (*ScoreSnapshot, error) {
	var snap ScoreSnapshot
	var prevID, artifactType sql.NullString
	var percentile sql.NullInt64
	var dims string

	err := scan(
		&snap.ID, &snap.UserID, &prevID, &snap.OverallScore,
		&percentile, &snap.Grade, &dims, &snap.Sector,
		&snap.DataSource, &artifactType, &snap.CalculatedAt,
	)
	if err != nil {
		return nil, err
	}

	if prevID.Valid {
		snap.PreviousScoreID = &prevID.String
	}
	if percentile.Valid {
		p := int(percentile.Int64)
		snap.Percentile = &p
	}
	if artifactType.Valid {
		snap.SourceArtifactType = &artifactType.String
	}

	if err := json.Unmarshal([]byte(dims), &snap.Dimensions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dimensions: %w", err)
	}

	return &snap, nil
}

// LatestSnapshot returns the most recent snapshot for a user, or nil when
// the user has never been scored.
func (r *Repository) LatestSnapshot(userID string) (*ScoreSnapshot, error) {
	stmt, err := r.db.GetPreparedStatement("get_latest_snapshot")
	if err != nil {
		return nil, err
	}

	snap, err := scanSnapshot(stmt.QueryRow(userID).Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest snapshot: %w", err)
	}

	return snap, nil
}

// SnapshotHistory returns a user's snapshots newest-first
func (r *Repository) SnapshotHistory(userID string, limit int) ([]ScoreSnapshot, error) {
	if limit <= 0 {
		limit = 50
	}

	stmt, err := r.db.GetPreparedStatement("get_snapshot_history")
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query(userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot history: %w", err)
	}
	defer rows.Close()

	var history []ScoreSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		history = append(history, *snap)
	}

	return history, rows.Err()
}

// HasArtifactSnapshot reports whether a boost for this artifact type was
// already applied to the user. Fast-path check only; the unique index is
// the authority under concurrent requests.
func (r *Repository) HasArtifactSnapshot(userID, artifactType string) (bool, error) {
	stmt, err := r.db.GetPreparedStatement("has_artifact_snapshot")
	if err != nil {
		return false, err
	}

	var count int
	if err := stmt.QueryRow(userID, artifactType).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check artifact snapshot: %w", err)
	}

	return count > 0, nil
}

// LatestPerUser returns the ranking cohort: each user's most recent snapshot
func (r *Repository) LatestPerUser() ([]CohortScore, error) {
	stmt, err := r.db.GetPreparedStatement("get_latest_per_user")
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query()
	if err != nil {
		return nil, fmt.Errorf("failed to query cohort: %w", err)
	}
	defer rows.Close()

	var cohort []CohortScore
	for rows.Next() {
		snap, err := scanSnapshot(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cohort snapshot: %w", err)
		}
		cohort = append(cohort, CohortScore{
			UserID:       snap.UserID,
			OverallScore: snap.OverallScore,
			Dimensions:   snap.Dimensions,
			Sector:       snap.Sector,
		})
	}

	return cohort, rows.Err()
}

// LogActivity logs an API request
func (r *Repository) LogActivity(userID, ipAddress, endpoint, method, userAgent string) error {
	entry := NewActivityLog(userID, ipAddress, endpoint, method, userAgent)

	stmt, err := r.db.GetPreparedStatement("insert_activity_log")
	if err != nil {
		return err
	}

	_, err = stmt.Exec(entry.ID, entry.UserID, entry.IPAddress, entry.Endpoint,
		entry.Method, entry.UserAgent, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to log activity: %w", err)
	}

	return nil
}

// GetWeeklyUsage gets submission statistics for a user for the current week
func (r *Repository) GetWeeklyUsage(userID string) (*UsageStats, error) {
	now := time.Now()

	// Get the start of the current week (Monday)
	weekStart := now.AddDate(0, 0, -int(now.Weekday()-time.Monday))
	if now.Weekday() == time.Sunday {
		weekStart = weekStart.AddDate(0, 0, -7)
	}
	weekStart = time.Date(weekStart.Year(), weekStart.Month(), weekStart.Day(), 0, 0, 0, 0, weekStart.Location())

	weekEnd := weekStart.AddDate(0, 0, 7)

	var submissionCount int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM assessment_submissions
		WHERE user_id = ? AND created_at >= ? AND created_at < ?
	`, userID, weekStart, weekEnd).Scan(&submissionCount)

	if err != nil {
		return nil, fmt.Errorf("failed to count submissions: %w", err)
	}

	return &UsageStats{
		UserID:              userID,
		SubmissionsThisWeek: submissionCount,
		WeekStart:           weekStart,
		WeekEnd:             weekEnd,
	}, nil
}

// CanSubmit checks whether a user is under the weekly submission quota
func (r *Repository) CanSubmit(userID string) (bool, *UsageStats, error) {
	usage, err := r.GetWeeklyUsage(userID)
	if err != nil {
		return false, nil, err
	}

	const weeklyLimit = 5
	return usage.SubmissionsThisWeek < weeklyLimit, usage, nil
}
