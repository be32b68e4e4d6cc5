package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/assessment-admin-api/internal/models"
)

// RunRepository aggregates assessment run progress.
type RunRepository struct {
	db *sqlx.DB
}

// NewRunRepository constructs the repository.
func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{db: db}
}

// RunStatsByAdministrationIDs returns, per administration, how many distinct
// users have started a run and how many have completed one.
func (r *RunRepository) RunStatsByAdministrationIDs(ctx context.Context, administrationIDs []string) (map[string]models.RunStats, error) {
	if len(administrationIDs) == 0 {
		return map[string]models.RunStats{}, nil
	}

	placeholders := make([]string, len(administrationIDs))
	args := make([]interface{}, len(administrationIDs))
	for i, id := range administrationIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	query := fmt.Sprintf(`SELECT administration_id,
    COUNT(DISTINCT user_id) AS started,
    COUNT(DISTINCT user_id) FILTER (WHERE completed) AS completed
FROM runs
WHERE administration_id IN (%s)
GROUP BY administration_id`, strings.Join(placeholders, ","))

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("aggregate run stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]models.RunStats, len(administrationIDs))
	for rows.Next() {
		var id string
		var s models.RunStats
		if err := rows.Scan(&id, &s.Started, &s.Completed); err != nil {
			return nil, fmt.Errorf("scan run stats: %w", err)
		}
		stats[id] = s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run stats: %w", err)
	}
	return stats, nil
}
