package database

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB represents the database connection with pooling
type DB struct {
	*sql.DB
	pool     *ConnectionPool
	prepared map[string]*sql.Stmt
	mutex    sync.RWMutex
}

// ConnectionPool manages database connection pooling
type ConnectionPool struct {
	db           *sql.DB
	maxOpenConns int
	maxIdleConns int
	maxLifetime  time.Duration
}

// NewConnectionPool creates a new database connection pool
func NewConnectionPool(db *sql.DB, maxOpen, maxIdle int, maxLifetime time.Duration) *ConnectionPool {
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)

	return &ConnectionPool{
		db:           db,
		maxOpenConns: maxOpen,
		maxIdleConns: maxIdle,
		maxLifetime:  maxLifetime,
	}
}

// GetStats returns connection pool statistics
func (cp *ConnectionPool) GetStats() map[string]interface{} {
	stats := cp.db.Stats()

	return map[string]interface{}{
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"max_open_connections": cp.maxOpenConns,
		"max_idle_connections": cp.maxIdleConns,
		"max_lifetime_seconds": cp.maxLifetime.Seconds(),
		"wait_count":           stats.WaitCount,
		"wait_duration_ms":     stats.WaitDuration.Milliseconds(),
		"max_idle_closed":      stats.MaxIdleClosed,
		"max_lifetime_closed":  stats.MaxLifetimeClosed,
	}
}

// NewDB creates a new database connection with optimized pooling
func NewDB(dataDir string) (*DB, error) {
	// Ensure data directory exists
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "qcombinator.db")

	// Configure connection string for better performance
	connStr := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", dbPath)

	return open(connStr)
}

// NewMemoryDB opens an in-memory database, used by tests.
func NewMemoryDB() (*DB, error) {
	return open("file::memory:?cache=shared&_pragma=foreign_keys(ON)")
}

func open(connStr string) (*DB, error) {
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Configure connection pooling for better performance
	pool := NewConnectionPool(db, 25, 5, 5*time.Minute) // 25 max open, 5 idle, 5min lifetime

	database := &DB{
		DB:       db,
		pool:     pool,
		prepared: make(map[string]*sql.Stmt),
	}

	// Run migrations
	if err := database.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Initialize prepared statements
	if err := database.initPreparedStatements(); err != nil {
		return nil, fmt.Errorf("failed to initialize prepared statements: %w", err)
	}

	slog.Info("Database initialized with connection pooling",
		"max_open_conns", pool.maxOpenConns,
		"max_idle_conns", pool.maxIdleConns,
		"max_lifetime", pool.maxLifetime)

	return database, nil
}

// migrate creates the necessary tables
func (db *DB) migrate() error {
	queries := []string{
		// Users table
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT,
			ip_address TEXT NOT NULL,
			user_agent TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,

		// Raw assessment submissions, kept so a score can always be traced
		// back to the answers that produced it.
		`CREATE TABLE IF NOT EXISTS assessment_submissions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			sector TEXT NOT NULL,
			payload TEXT NOT NULL, -- JSON of the submitted sections
			status TEXT NOT NULL DEFAULT 'received', -- 'received', 'scored'
			created_at DATETIME NOT NULL,
			scored_at DATETIME,
			FOREIGN KEY (user_id) REFERENCES users(id)
		)`,

		// Score snapshots are append-only. previous_score_id links each
		// snapshot to the one it superseded. The unique index on
		// (user_id, source_artifact_type) is what makes artifact boosts
		// idempotent; SQLite treats NULLs as distinct, so assessment
		// snapshots (NULL artifact type) are unaffected by it.
		`CREATE TABLE IF NOT EXISTS score_snapshots (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			previous_score_id TEXT,
			overall_score INTEGER NOT NULL,
			percentile INTEGER,
			grade TEXT NOT NULL,
			dimensions TEXT NOT NULL, -- JSON of the six dimension scores
			sector TEXT NOT NULL,
			data_source TEXT NOT NULL, -- 'assessment', 'agent_completion'
			source_artifact_type TEXT,
			calculated_at DATETIME NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id),
			FOREIGN KEY (previous_score_id) REFERENCES score_snapshots(id),
			UNIQUE(user_id, source_artifact_type)
		)`,

		// Activity logs table
		`CREATE TABLE IF NOT EXISTS activity_logs (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			ip_address TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			method TEXT NOT NULL,
			user_agent TEXT,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id)
		)`,

		// Indexes for performance
		`CREATE INDEX IF NOT EXISTS idx_users_ip ON users(ip_address)`,
		`CREATE INDEX IF NOT EXISTS idx_submissions_user_id ON assessment_submissions(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_submissions_created_at ON assessment_submissions(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_user_id ON score_snapshots(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_calculated ON score_snapshots(calculated_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_overall ON score_snapshots(overall_score DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_logs_user_id ON activity_logs(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_logs_created_at ON activity_logs(created_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	return nil
}

// initPreparedStatements initializes frequently used prepared statements
func (db *DB) initPreparedStatements() error {
	statements := map[string]string{
		"insert_user": `INSERT INTO users (id, email, ip_address, user_agent, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			ip_address = excluded.ip_address,
			user_agent = excluded.user_agent,
			updated_at = excluded.updated_at`,

		"insert_submission": `INSERT INTO assessment_submissions (id, user_id, sector, payload, status, created_at)
			VALUES (?, ?, ?, ?, 'received', ?)`,

		"mark_submission_scored": `UPDATE assessment_submissions
			SET status = 'scored', scored_at = ? WHERE id = ?`,

		"insert_snapshot": `INSERT INTO score_snapshots (
			id, user_id, previous_score_id, overall_score, percentile, grade,
			dimensions, sector, data_source, source_artifact_type, calculated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,

		"insert_activity_log": `INSERT INTO activity_logs (id, user_id, ip_address, endpoint, method, user_agent, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,

		"get_user_by_ip": `SELECT id, email, created_at, updated_at
			FROM users WHERE ip_address = ? ORDER BY created_at DESC LIMIT 1`,

		"get_latest_snapshot": `SELECT id, user_id, previous_score_id, overall_score, percentile, grade,
			dimensions, sector, data_source, source_artifact_type, calculated_at
			FROM score_snapshots WHERE user_id = ?
			ORDER BY calculated_at DESC, rowid DESC LIMIT 1`,

		"get_snapshot_history": `SELECT id, user_id, previous_score_id, overall_score, percentile, grade,
			dimensions, sector, data_source, source_artifact_type, calculated_at
			FROM score_snapshots WHERE user_id = ?
			ORDER BY calculated_at DESC, rowid DESC LIMIT ?`,

		"has_artifact_snapshot": `SELECT COUNT(*) FROM score_snapshots
			WHERE user_id = ? AND source_artifact_type = ?`,

		// Latest snapshot per user, same tie-break as get_latest_snapshot:
		// greatest calculated_at wins, rowid breaks exact-timestamp ties.
		"get_latest_per_user": `SELECT s.id, s.user_id, s.previous_score_id, s.overall_score, s.percentile, s.grade,
			s.dimensions, s.sector, s.data_source, s.source_artifact_type, s.calculated_at
			FROM score_snapshots s
			WHERE s.rowid = (
				SELECT s2.rowid FROM score_snapshots s2
				WHERE s2.user_id = s.user_id
				ORDER BY s2.calculated_at DESC, s2.rowid DESC
				LIMIT 1
			)`,

		"get_activity_logs": `SELECT id, user_id, endpoint, method, created_at
			FROM activity_logs WHERE user_id = ? ORDER BY created_at DESC LIMIT 10`,
	}

	db.mutex.Lock()
	defer db.mutex.Unlock()

	for name, query := range statements {
		stmt, err := db.Prepare(query)
		if err != nil {
			return fmt.Errorf("failed to prepare statement %s: %w", name, err)
		}
		db.prepared[name] = stmt

		slog.Debug("Prepared statement initialized", "name", name)
	}

	return nil
}

// GetPreparedStatement retrieves a prepared statement
func (db *DB) GetPreparedStatement(name string) (*sql.Stmt, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	stmt, exists := db.prepared[name]
	if !exists {
		return nil, fmt.Errorf("prepared statement %s not found", name)
	}

	return stmt, nil
}

// GetPoolStats returns database connection pool statistics
func (db *DB) GetPoolStats() map[string]interface{} {
	return db.pool.GetStats()
}

// Close closes the database connection and prepared statements
func (db *DB) Close() error {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	// Close all prepared statements
	for name, stmt := range db.prepared {
		if err := stmt.Close(); err != nil {
			slog.Warn("Failed to close prepared statement", "name", name, "error", err)
		}
	}

	// Clear the map
	db.prepared = make(map[string]*sql.Stmt)

	// Close the database connection
	return db.DB.Close()
}
