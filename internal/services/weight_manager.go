package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/kha86lilo/quotescan/pkg/models"
)

// WeightManager owns the versioned scoring weight vector. Every change is
// persisted as a new version so match records can name the weights they were
// scored under and scoring runs can be replayed. Mutations are serialized
// through a single critical section so concurrent batches never interleave
// partial updates.
type WeightManager struct {
	db     DatabaseQuerier
	logger *logrus.Logger

	mu sync.Mutex
}

func NewWeightManager(db DatabaseQuerier, logger *logrus.Logger) *WeightManager {
	return &WeightManager{db: db, logger: logger}
}

// GetActiveWeights returns the newest persisted weight vector, or the
// built-in defaults as version 0 when none has been saved yet.
func (m *WeightManager) GetActiveWeights(ctx context.Context) (*models.WeightVectorVersion, error) {
	query := `SELECT version, weights, note, created_at FROM weight_vectors ORDER BY version DESC LIMIT 1`

	version, err := scanWeightVersion(m.db.QueryRow(ctx, query))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &models.WeightVectorVersion{
				Version: 0,
				Weights: models.DefaultWeightVector(),
			}, nil
		}
		return nil, fmt.Errorf("failed to get active weights: %w", err)
	}

	return version, nil
}

// GetWeightVersion returns one specific version, or nil when it does not
// exist. Version 0 always resolves to the built-in defaults.
func (m *WeightManager) GetWeightVersion(ctx context.Context, version int) (*models.WeightVectorVersion, error) {
	if version == 0 {
		return &models.WeightVectorVersion{
			Version: 0,
			Weights: models.DefaultWeightVector(),
		}, nil
	}

	query := `SELECT version, weights, note, created_at FROM weight_vectors WHERE version = $1`

	found, err := scanWeightVersion(m.db.QueryRow(ctx, query, version))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get weight version %d: %w", version, err)
	}

	return found, nil
}

// ListWeightVersions returns persisted versions, newest first.
func (m *WeightManager) ListWeightVersions(ctx context.Context, limit int) ([]*models.WeightVectorVersion, error) {
	query := `SELECT version, weights, note, created_at FROM weight_vectors ORDER BY version DESC`

	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := m.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query weight versions: %w", err)
	}
	defer rows.Close()

	var versions []*models.WeightVectorVersion
	for rows.Next() {
		version, err := scanWeightVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan weight version: %w", err)
		}
		versions = append(versions, version)
	}

	return versions, rows.Err()
}

// SaveWeights persists a weight vector as the next version.
func (m *WeightManager) SaveWeights(ctx context.Context, weights models.WeightVector, note string) (*models.WeightVectorVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.save(ctx, weights, note)
}

// UpdateWeights atomically applies mutate to the active weight vector and
// persists the result as a new version. mutate receives a copy and reports
// whether anything changed; unchanged vectors are not persisted. The returned
// bool reports whether a new version was written.
func (m *WeightManager) UpdateWeights(ctx context.Context, note string, mutate func(models.WeightVector) (models.WeightVector, bool)) (*models.WeightVectorVersion, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	active, err := m.GetActiveWeights(ctx)
	if err != nil {
		return nil, false, err
	}

	updated, changed := mutate(active.Weights.Clone())
	if !changed {
		return active, false, nil
	}

	saved, err := m.save(ctx, updated, note)
	if err != nil {
		return nil, false, err
	}
	return saved, true, nil
}

// save assumes m.mu is held. The version number is assigned inside the insert
// statement so it is race-free even across processes.
func (m *WeightManager) save(ctx context.Context, weights models.WeightVector, note string) (*models.WeightVectorVersion, error) {
	weightsJSON, err := json.Marshal(weights)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal weights: %w", err)
	}

	query := `
		INSERT INTO weight_vectors (version, weights, note, created_at)
		SELECT COALESCE(MAX(version), 0) + 1, $1, $2, $3 FROM weight_vectors
		RETURNING version, created_at`

	saved := &models.WeightVectorVersion{Weights: weights.Clone()}
	if note != "" {
		saved.Note = &note
	}

	err = m.db.QueryRow(ctx, query, weightsJSON, saved.Note, time.Now()).Scan(&saved.Version, &saved.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to save weights: %w", err)
	}

	m.logger.WithFields(logrus.Fields{
		"version": saved.Version,
		"note":    note,
	}).Info("Saved weight vector version")

	return saved, nil
}

func scanWeightVersion(row rowScanner) (*models.WeightVectorVersion, error) {
	var version models.WeightVectorVersion
	var weightsJSON []byte

	if err := row.Scan(&version.Version, &weightsJSON, &version.Note, &version.CreatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(weightsJSON, &version.Weights); err != nil {
		return nil, fmt.Errorf("unreadable weights payload for version %d: %w", version.Version, err)
	}

	return &version, nil
}
