package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/raeesrind/GT-MCQS-Creator/internal/models"
)

// ErrNoActiveSession is returned when the device has no in-progress test.
var ErrNoActiveSession = errors.New("no active test session")

type SessionRepo struct {
	pool *pgxpool.Pool
}

func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

// Save stores the session as the device's single active test, replacing any
// existing one.
func (r *SessionRepo) Save(ctx context.Context, s *models.TestSession) error {
	questions, err := json.Marshal(s.Questions)
	if err != nil {
		return err
	}
	answers, err := json.Marshal(s.Answers)
	if err != nil {
		return err
	}

	query := `INSERT INTO test_sessions (id, device_id, test_type, questions, answers, current_index)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (device_id) DO UPDATE SET
			id = EXCLUDED.id,
			test_type = EXCLUDED.test_type,
			questions = EXCLUDED.questions,
			answers = EXCLUDED.answers,
			current_index = EXCLUDED.current_index,
			created_at = now()
		RETURNING created_at`

	return r.pool.QueryRow(ctx, query,
		s.ID, s.DeviceID, s.TestType, questions, answers, s.CurrentIndex,
	).Scan(&s.CreatedAt)
}

func (r *SessionRepo) Get(ctx context.Context, deviceID uuid.UUID) (*models.TestSession, error) {
	s := &models.TestSession{}
	var questions, answers []byte

	query := `SELECT id, device_id, test_type, questions, answers, current_index, created_at
		FROM test_sessions WHERE device_id = $1`

	err := r.pool.QueryRow(ctx, query, deviceID).Scan(
		&s.ID, &s.DeviceID, &s.TestType, &questions, &answers, &s.CurrentIndex, &s.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoActiveSession
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(questions, &s.Questions); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(answers, &s.Answers); err != nil {
		return nil, err
	}
	if s.Answers == nil {
		s.Answers = make(map[int]string)
	}
	return s, nil
}

// SaveAnswer records one selected option and advances the bookmark index.
func (r *SessionRepo) SaveAnswer(ctx context.Context, deviceID uuid.UUID, questionIndex int, selected string) error {
	answer, err := json.Marshal(map[int]string{questionIndex: selected})
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE test_sessions SET answers = answers || $1, current_index = $2 WHERE device_id = $3`,
		answer, questionIndex, deviceID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNoActiveSession
	}
	return nil
}

// Clear discards the device's active session, if any.
func (r *SessionRepo) Clear(ctx context.Context, deviceID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, "DELETE FROM test_sessions WHERE device_id = $1", deviceID)
	return err
}
