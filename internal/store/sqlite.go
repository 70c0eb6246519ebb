// Package store provides storage backends for ShotScope.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/RinkLab/ShotScope/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	// Ensure the directory exists
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	// Run migrations to ensure tables exist
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// SaveFlowState stores or replaces the snapshot of an in-progress flow.
func (s *SQLiteStore) SaveFlowState(state models.FlowState) error {
	query := `
		INSERT OR REPLACE INTO flow_states (flow_id, user_id, flow_type, current_stage, stage_data, completed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	stageDataJSON, err := encodeStageData(state.StageData)
	if err != nil {
		slog.Error("SQLiteStore SaveFlowState JSON marshal failed", "error", err, "flowID", state.FlowID)
		return err
	}

	_, err = s.db.Exec(query, state.FlowID, state.UserID, string(state.FlowType), string(state.CurrentStage),
		stageDataJSON, state.Completed, state.CreatedAt, state.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveFlowState failed", "error", err, "flowID", state.FlowID)
		return fmt.Errorf("failed to save flow state for %s: %w", state.FlowID, err)
	}
	slog.Debug("SQLiteStore SaveFlowState succeeded", "flowID", state.FlowID, "stage", state.CurrentStage)
	return nil
}

// GetFlowState retrieves a flow snapshot; nil if absent.
func (s *SQLiteStore) GetFlowState(flowID string) (*models.FlowState, error) {
	query := `SELECT flow_id, user_id, flow_type, current_stage, stage_data, completed, created_at, updated_at
			  FROM flow_states WHERE flow_id = ?`

	var state models.FlowState
	var stageDataJSON sql.NullString

	err := s.db.QueryRow(query, flowID).Scan(
		&state.FlowID, &state.UserID, &state.FlowType, &state.CurrentStage,
		&stageDataJSON, &state.Completed, &state.CreatedAt, &state.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetFlowState failed", "error", err, "flowID", flowID)
		return nil, fmt.Errorf("failed to get flow state for %s: %w", flowID, err)
	}

	if err := decodeStageData(stageDataJSON.String, &state); err != nil {
		slog.Error("SQLiteStore GetFlowState decode failed", "error", err, "flowID", flowID)
		return nil, err
	}
	return &state, nil
}

// DeleteFlowState removes a flow snapshot.
func (s *SQLiteStore) DeleteFlowState(flowID string) error {
	_, err := s.db.Exec(`DELETE FROM flow_states WHERE flow_id = ?`, flowID)
	if err != nil {
		slog.Error("SQLiteStore DeleteFlowState failed", "error", err, "flowID", flowID)
		return fmt.Errorf("failed to delete flow state for %s: %w", flowID, err)
	}
	return nil
}

// ListFlowStates returns all persisted flow snapshots.
func (s *SQLiteStore) ListFlowStates() ([]models.FlowState, error) {
	rows, err := s.db.Query(`SELECT flow_id, user_id, flow_type, current_stage, stage_data, completed, created_at, updated_at
							 FROM flow_states ORDER BY updated_at`)
	if err != nil {
		slog.Error("SQLiteStore ListFlowStates query failed", "error", err)
		return nil, fmt.Errorf("failed to query flow states: %w", err)
	}
	defer rows.Close()

	var states []models.FlowState
	for rows.Next() {
		var state models.FlowState
		var stageDataJSON sql.NullString
		if err := rows.Scan(&state.FlowID, &state.UserID, &state.FlowType, &state.CurrentStage,
			&stageDataJSON, &state.Completed, &state.CreatedAt, &state.UpdatedAt); err != nil {
			slog.Error("SQLiteStore ListFlowStates scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan flow state row: %w", err)
		}
		if err := decodeStageData(stageDataJSON.String, &state); err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore ListFlowStates rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate flow state rows: %w", err)
	}
	slog.Debug("SQLiteStore ListFlowStates succeeded", "count", len(states))
	return states, nil
}

// SaveAnalysisResult stores a completed analysis result as a serialized blob.
func (s *SQLiteStore) SaveAnalysisResult(result models.AnalysisResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		slog.Error("SQLiteStore SaveAnalysisResult marshal failed", "error", err, "id", result.ID)
		return err
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO analysis_results (id, user_id, feature, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		result.ID, result.UserID, string(result.Feature), string(payload), result.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveAnalysisResult failed", "error", err, "id", result.ID)
		return fmt.Errorf("failed to save analysis result %s: %w", result.ID, err)
	}
	slog.Debug("SQLiteStore SaveAnalysisResult succeeded", "id", result.ID, "user", result.UserID)
	return nil
}

// GetAnalysisResult retrieves a result by ID; nil if absent.
func (s *SQLiteStore) GetAnalysisResult(id string) (*models.AnalysisResult, error) {
	var payload string
	err := s.db.QueryRow(`SELECT payload FROM analysis_results WHERE id = ?`, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetAnalysisResult failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get analysis result %s: %w", id, err)
	}
	return decodeAnalysisPayload(payload)
}

// GetLatestAnalysisResult retrieves the most recent result for a user and feature.
func (s *SQLiteStore) GetLatestAnalysisResult(userID string, feature models.FlowType) (*models.AnalysisResult, error) {
	var payload string
	err := s.db.QueryRow(`SELECT payload FROM analysis_results WHERE user_id = ? AND feature = ? ORDER BY created_at DESC LIMIT 1`,
		userID, string(feature)).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetLatestAnalysisResult failed", "error", err, "user", userID, "feature", feature)
		return nil, fmt.Errorf("failed to get latest analysis result for %s: %w", userID, err)
	}
	return decodeAnalysisPayload(payload)
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
