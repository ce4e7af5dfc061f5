package extraction

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrRunNotFound is returned when no run matches the lookup.
var ErrRunNotFound = errors.New("extraction run not found")

type runRepoPG struct{ pool *pgxpool.Pool }

func NewRunRepoPG(pool *pgxpool.Pool) RunRepository {
	return &runRepoPG{pool: pool}
}

const runCols = `id, user_id, kind, model, note_chars, entity_count, payload, created_at`

func scanRun(row pgx.Row) (*Run, error) {
	var r Run
	err := row.Scan(&r.ID, &r.UserID, &r.Kind, &r.Model, &r.NoteChars, &r.EntityCount, &r.Payload, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *runRepoPG) Create(ctx context.Context, run *Run) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO extraction_runs (id, user_id, kind, model, note_chars, entity_count, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.UserID, run.Kind, run.Model, run.NoteChars, run.EntityCount, run.Payload)
	return err
}

func (r *runRepoPG) GetByID(ctx context.Context, userID, id uuid.UUID) (*Run, error) {
	return scanRun(r.pool.QueryRow(ctx,
		`SELECT `+runCols+` FROM extraction_runs WHERE id = $1 AND user_id = $2`, id, userID))
}

func (r *runRepoPG) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Run, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM extraction_runs WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, kind, model, note_chars, entity_count, created_at
		FROM extraction_runs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.UserID, &run.Kind, &run.Model,
			&run.NoteChars, &run.EntityCount, &run.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
