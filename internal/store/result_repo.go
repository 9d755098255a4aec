package store

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/raeesrind/GT-MCQS-Creator/internal/models"
)

type ResultRepo struct {
	pool *pgxpool.Pool
}

func NewResultRepo(pool *pgxpool.Pool) *ResultRepo {
	return &ResultRepo{pool: pool}
}

// Append records one finished attempt. Results are append-only, there is no
// update or delete path.
func (r *ResultRepo) Append(ctx context.Context, res *models.TestResult) error {
	subjects, err := json.Marshal(res.Subjects)
	if err != nil {
		return err
	}
	overall, err := json.Marshal(res.Overall)
	if err != nil {
		return err
	}

	query := `INSERT INTO test_results (id, device_id, test_type, taken_at, subjects, overall, weakest_topics)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = r.pool.Exec(ctx, query,
		res.ID, res.DeviceID, res.TestType, res.TakenAt, subjects, overall, res.WeakestTopics,
	)
	return err
}

func (r *ResultRepo) GetByID(ctx context.Context, deviceID, id uuid.UUID) (*models.TestResult, error) {
	res := &models.TestResult{}
	var subjects, overall []byte

	query := `SELECT id, device_id, test_type, taken_at, subjects, overall, weakest_topics
		FROM test_results WHERE id = $1 AND device_id = $2`

	err := r.pool.QueryRow(ctx, query, id, deviceID).Scan(
		&res.ID, &res.DeviceID, &res.TestType, &res.TakenAt,
		&subjects, &overall, &res.WeakestTopics,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(subjects, &res.Subjects); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(overall, &res.Overall); err != nil {
		return nil, err
	}
	return res, nil
}

// List returns the device's history, most recent attempt first.
func (r *ResultRepo) List(ctx context.Context, deviceID uuid.UUID) ([]*models.TestResult, error) {
	query := `SELECT id, device_id, test_type, taken_at, subjects, overall, weakest_topics
		FROM test_results WHERE device_id = $1 ORDER BY taken_at DESC`

	rows, err := r.pool.Query(ctx, query, deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*models.TestResult
	for rows.Next() {
		res := &models.TestResult{}
		var subjects, overall []byte
		if err := rows.Scan(
			&res.ID, &res.DeviceID, &res.TestType, &res.TakenAt,
			&subjects, &overall, &res.WeakestTopics,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(subjects, &res.Subjects); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(overall, &res.Overall); err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}
