// Package store provides storage backends for ShotScope.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/RinkLab/ShotScope/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	// Configure connection pool for better performance
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// SaveFlowState stores or replaces the snapshot of an in-progress flow.
func (s *PostgresStore) SaveFlowState(state models.FlowState) error {
	query := `
		INSERT INTO flow_states (flow_id, user_id, flow_type, current_stage, stage_data, completed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (flow_id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			flow_type = EXCLUDED.flow_type,
			current_stage = EXCLUDED.current_stage,
			stage_data = EXCLUDED.stage_data,
			completed = EXCLUDED.completed,
			updated_at = EXCLUDED.updated_at`

	stageDataJSON, err := encodeStageData(state.StageData)
	if err != nil {
		slog.Error("PostgresStore SaveFlowState JSON marshal failed", "error", err, "flowID", state.FlowID)
		return err
	}

	_, err = s.db.Exec(query, state.FlowID, state.UserID, string(state.FlowType), string(state.CurrentStage),
		nilIfEmpty(stageDataJSON), state.Completed, state.CreatedAt, state.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveFlowState failed", "error", err, "flowID", state.FlowID)
		return fmt.Errorf("failed to save flow state for %s: %w", state.FlowID, err)
	}
	slog.Debug("PostgresStore SaveFlowState succeeded", "flowID", state.FlowID, "stage", state.CurrentStage)
	return nil
}

// GetFlowState retrieves a flow snapshot; nil if absent.
func (s *PostgresStore) GetFlowState(flowID string) (*models.FlowState, error) {
	query := `SELECT flow_id, user_id, flow_type, current_stage, stage_data, completed, created_at, updated_at
			  FROM flow_states WHERE flow_id = $1`

	var state models.FlowState
	var stageDataJSON sql.NullString

	err := s.db.QueryRow(query, flowID).Scan(
		&state.FlowID, &state.UserID, &state.FlowType, &state.CurrentStage,
		&stageDataJSON, &state.Completed, &state.CreatedAt, &state.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetFlowState failed", "error", err, "flowID", flowID)
		return nil, fmt.Errorf("failed to get flow state for %s: %w", flowID, err)
	}

	if err := decodeStageData(stageDataJSON.String, &state); err != nil {
		slog.Error("PostgresStore GetFlowState decode failed", "error", err, "flowID", flowID)
		return nil, err
	}
	return &state, nil
}

// DeleteFlowState removes a flow snapshot.
func (s *PostgresStore) DeleteFlowState(flowID string) error {
	_, err := s.db.Exec(`DELETE FROM flow_states WHERE flow_id = $1`, flowID)
	if err != nil {
		slog.Error("PostgresStore DeleteFlowState failed", "error", err, "flowID", flowID)
		return fmt.Errorf("failed to delete flow state for %s: %w", flowID, err)
	}
	return nil
}

// ListFlowStates returns all persisted flow snapshots.
func (s *PostgresStore) ListFlowStates() ([]models.FlowState, error) {
	rows, err := s.db.Query(`SELECT flow_id, user_id, flow_type, current_stage, stage_data, completed, created_at, updated_at
							 FROM flow_states ORDER BY updated_at`)
	if err != nil {
		slog.Error("PostgresStore ListFlowStates query failed", "error", err)
		return nil, fmt.Errorf("failed to query flow states: %w", err)
	}
	defer rows.Close()

	var states []models.FlowState
	for rows.Next() {
		var state models.FlowState
		var stageDataJSON sql.NullString
		if err := rows.Scan(&state.FlowID, &state.UserID, &state.FlowType, &state.CurrentStage,
			&stageDataJSON, &state.Completed, &state.CreatedAt, &state.UpdatedAt); err != nil {
			slog.Error("PostgresStore ListFlowStates scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan flow state row: %w", err)
		}
		if err := decodeStageData(stageDataJSON.String, &state); err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore ListFlowStates rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate flow state rows: %w", err)
	}
	return states, nil
}

// SaveAnalysisResult stores a completed analysis result as a serialized blob.
func (s *PostgresStore) SaveAnalysisResult(result models.AnalysisResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		slog.Error("PostgresStore SaveAnalysisResult marshal failed", "error", err, "id", result.ID)
		return err
	}
	_, err = s.db.Exec(`INSERT INTO analysis_results (id, user_id, feature, payload, created_at) VALUES ($1, $2, $3, $4, $5)
						ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload`,
		result.ID, result.UserID, string(result.Feature), string(payload), result.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveAnalysisResult failed", "error", err, "id", result.ID)
		return fmt.Errorf("failed to save analysis result %s: %w", result.ID, err)
	}
	return nil
}

// GetAnalysisResult retrieves a result by ID; nil if absent.
func (s *PostgresStore) GetAnalysisResult(id string) (*models.AnalysisResult, error) {
	var payload string
	err := s.db.QueryRow(`SELECT payload FROM analysis_results WHERE id = $1`, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetAnalysisResult failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get analysis result %s: %w", id, err)
	}
	return decodeAnalysisPayload(payload)
}

// GetLatestAnalysisResult retrieves the most recent result for a user and feature.
func (s *PostgresStore) GetLatestAnalysisResult(userID string, feature models.FlowType) (*models.AnalysisResult, error) {
	var payload string
	err := s.db.QueryRow(`SELECT payload FROM analysis_results WHERE user_id = $1 AND feature = $2 ORDER BY created_at DESC LIMIT 1`,
		userID, string(feature)).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetLatestAnalysisResult failed", "error", err, "user", userID, "feature", feature)
		return nil, fmt.Errorf("failed to get latest analysis result for %s: %w", userID, err)
	}
	return decodeAnalysisPayload(payload)
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close Postgres database", "error", err)
	}
	return err
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
