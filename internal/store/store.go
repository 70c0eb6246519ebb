// Package store provides storage backends for ShotScope.
//
// It persists in-progress flow snapshots (for resume prompts) and the latest
// analysis results, with in-memory, SQLite, and PostgreSQL backends.
package store

import (
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/RinkLab/ShotScope/internal/models"
)

// Store defines the persistence operations used by the flow and analysis layers.
type Store interface {
	// SaveFlowState stores or replaces the snapshot of an in-progress flow
	SaveFlowState(state models.FlowState) error
	// GetFlowState retrieves a flow snapshot; nil if absent
	GetFlowState(flowID string) (*models.FlowState, error)
	// DeleteFlowState removes a flow snapshot
	DeleteFlowState(flowID string) error
	// ListFlowStates returns all persisted flow snapshots (startup recovery)
	ListFlowStates() ([]models.FlowState, error)

	// SaveAnalysisResult stores a completed analysis result
	SaveAnalysisResult(result models.AnalysisResult) error
	// GetAnalysisResult retrieves a result by ID; nil if absent
	GetAnalysisResult(id string) (*models.AnalysisResult, error)
	// GetLatestAnalysisResult retrieves the most recent result for a user and feature; nil if absent
	GetLatestAnalysisResult(userID string, feature models.FlowType) (*models.AnalysisResult, error)

	// Close releases backend resources
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN         string
	PostgresDSN string
	SQLiteDSN   string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithDSN sets the database DSN (file path for SQLite, URL for Postgres).
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN selects the PostgreSQL backend with the given DSN.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.PostgresDSN = dsn }
}

// WithSQLiteDSN selects the SQLite backend with the given database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.SQLiteDSN = dsn }
}

// DetectDSNType reports "postgres" for URL or keyword-style DSNs and "sqlite"
// for plain file paths.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// NewStore builds the store selected by the options: PostgreSQL when a
// Postgres DSN is set, SQLite when a file path is set, otherwise in-memory.
func NewStore(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	switch {
	case cfg.PostgresDSN != "":
		slog.Debug("NewStore selecting PostgreSQL backend")
		return NewPostgresStore(WithDSN(cfg.PostgresDSN))
	case cfg.SQLiteDSN != "":
		slog.Debug("NewStore selecting SQLite backend", "path", cfg.SQLiteDSN)
		return NewSQLiteStore(WithDSN(cfg.SQLiteDSN))
	default:
		slog.Debug("NewStore selecting in-memory backend")
		return NewInMemoryStore(), nil
	}
}

// InMemoryStore is a mutex-guarded in-memory store, used in tests and as a
// fallback when no database is configured.
type InMemoryStore struct {
	mu       sync.RWMutex
	flows    map[string]models.FlowState
	analyses map[string]models.AnalysisResult
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		flows:    make(map[string]models.FlowState),
		analyses: make(map[string]models.AnalysisResult),
	}
}

// SaveFlowState stores or replaces a flow snapshot.
func (s *InMemoryStore) SaveFlowState(state models.FlowState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flows[state.FlowID] = state
	return nil
}

// GetFlowState retrieves a flow snapshot.
func (s *InMemoryStore) GetFlowState(flowID string) (*models.FlowState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.flows[flowID]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

// DeleteFlowState removes a flow snapshot.
func (s *InMemoryStore) DeleteFlowState(flowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.flows, flowID)
	return nil
}

// ListFlowStates returns all persisted flow snapshots.
func (s *InMemoryStore) ListFlowStates() ([]models.FlowState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.FlowState, 0, len(s.flows))
	for _, state := range s.flows {
		out = append(out, state)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

// SaveAnalysisResult stores a completed analysis result.
func (s *InMemoryStore) SaveAnalysisResult(result models.AnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analyses[result.ID] = result
	return nil
}

// GetAnalysisResult retrieves a result by ID.
func (s *InMemoryStore) GetAnalysisResult(id string) (*models.AnalysisResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.analyses[id]
	if !ok {
		return nil, nil
	}
	return &result, nil
}

// GetLatestAnalysisResult retrieves the most recent result for a user and feature.
func (s *InMemoryStore) GetLatestAnalysisResult(userID string, feature models.FlowType) (*models.AnalysisResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *models.AnalysisResult
	for id := range s.analyses {
		result := s.analyses[id]
		if result.UserID != userID || result.Feature != feature {
			continue
		}
		if latest == nil || result.CreatedAt.After(latest.CreatedAt) {
			r := result
			latest = &r
		}
	}
	return latest, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }
