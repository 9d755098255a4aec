package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/raeesrind/GT-MCQS-Creator/internal/models"
)

type NoteRepo struct {
	pool *pgxpool.Pool
}

func NewNoteRepo(pool *pgxpool.Pool) *NoteRepo {
	return &NoteRepo{pool: pool}
}

// Upsert inserts the note, replacing any prior note the device holds for the
// same subject. A device keeps at most one note per subject.
func (r *NoteRepo) Upsert(ctx context.Context, n *models.Note) error {
	n.ID = uuid.New()
	n.Status = "pending"

	query := `INSERT INTO notes (id, device_id, subject, filename, file_path, status, size_bytes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (device_id, subject) DO UPDATE SET
			id = EXCLUDED.id,
			filename = EXCLUDED.filename,
			file_path = EXCLUDED.file_path,
			status = EXCLUDED.status,
			extracted_text = NULL,
			size_bytes = EXCLUDED.size_bytes,
			created_at = now()
		RETURNING created_at`

	return r.pool.QueryRow(ctx, query,
		n.ID, n.DeviceID, n.Subject, n.Filename, n.FilePath, n.Status, n.SizeBytes,
	).Scan(&n.CreatedAt)
}

func (r *NoteRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Note, error) {
	n := &models.Note{}
	query := `SELECT id, device_id, subject, filename, file_path, status, extracted_text, size_bytes, created_at
		FROM notes WHERE id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&n.ID, &n.DeviceID, &n.Subject, &n.Filename, &n.FilePath,
		&n.Status, &n.ExtractedText, &n.SizeBytes, &n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (r *NoteRepo) List(ctx context.Context, deviceID uuid.UUID) ([]*models.Note, error) {
	query := `SELECT id, device_id, subject, filename, file_path, status, extracted_text, size_bytes, created_at
		FROM notes WHERE device_id = $1 ORDER BY subject`

	rows, err := r.pool.Query(ctx, query, deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []*models.Note
	for rows.Next() {
		n := &models.Note{}
		if err := rows.Scan(
			&n.ID, &n.DeviceID, &n.Subject, &n.Filename, &n.FilePath,
			&n.Status, &n.ExtractedText, &n.SizeBytes, &n.CreatedAt,
		); err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// ListCompleted returns the extracted text of every completed note, keyed by
// subject. Notes still extracting or failed are excluded.
func (r *NoteRepo) ListCompleted(ctx context.Context, deviceID uuid.UUID) (map[models.Subject]string, error) {
	query := `SELECT subject, extracted_text FROM notes
		WHERE device_id = $1 AND status = 'completed' AND extracted_text IS NOT NULL`

	rows, err := r.pool.Query(ctx, query, deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	texts := make(map[models.Subject]string)
	for rows.Next() {
		var subject models.Subject
		var text string
		if err := rows.Scan(&subject, &text); err != nil {
			return nil, err
		}
		texts[subject] = text
	}
	return texts, rows.Err()
}

// SetExtracted marks the note completed with its extracted text.
func (r *NoteRepo) SetExtracted(ctx context.Context, id uuid.UUID, text string) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE notes SET extracted_text = $1, status = 'completed' WHERE id = $2",
		text, id,
	)
	return err
}

func (r *NoteRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := r.pool.Exec(ctx, "UPDATE notes SET status = $1 WHERE id = $2", status, id)
	return err
}

// Delete removes the note row and returns the stored file path so the caller
// can remove the file as well.
func (r *NoteRepo) Delete(ctx context.Context, deviceID, id uuid.UUID) (string, error) {
	var filePath string
	err := r.pool.QueryRow(ctx,
		"DELETE FROM notes WHERE id = $1 AND device_id = $2 RETURNING file_path",
		id, deviceID,
	).Scan(&filePath)
	if err != nil {
		return "", err
	}
	return filePath, nil
}
