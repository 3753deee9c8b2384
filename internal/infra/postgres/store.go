package postgres

import (
	"context"
	"time"

	"engagement-service/internal/domain"
	"github.com/cockroachdb/errors"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// Store implements app.Store on Postgres. Uniqueness of (event, participant)
// and cascading deletes are enforced by the schema in ./migrations.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

const eventColumns = `id, owner_id, job_id, type, status, title, description,
	meeting_url, platform, starts_at, ends_at,
	time_limit_minutes, opens_at, closes_at,
	due_at, max_file_size_mb, allowed_extensions, max_score,
	created_at, updated_at, published_at`

func scanEvent(row rowScanner) (domain.Event, error) {
	var e domain.Event
	err := row.Scan(
		&e.ID, &e.OwnerID, &e.JobID, &e.Type, &e.Status, &e.Title, &e.Description,
		&e.MeetingURL, &e.Platform, &e.StartsAt, &e.EndsAt,
		&e.TimeLimitMinutes, &e.OpensAt, &e.ClosesAt,
		&e.DueAt, &e.MaxFileSizeMB, &e.AllowedExtensions, &e.MaxScore,
		&e.CreatedAt, &e.UpdatedAt, &e.PublishedAt,
	)
	return e, err
}

func eventArgs(e domain.Event) []interface{} {
	return []interface{}{
		e.ID, e.OwnerID, e.JobID, string(e.Type), string(e.Status), e.Title, e.Description,
		e.MeetingURL, e.Platform, e.StartsAt, e.EndsAt,
		e.TimeLimitMinutes, e.OpensAt, e.ClosesAt,
		e.DueAt, e.MaxFileSizeMB, e.AllowedExtensions, e.MaxScore,
		e.CreatedAt, e.UpdatedAt, e.PublishedAt,
	}
}

func (s *Store) CreateEvent(ctx context.Context, event domain.Event) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO events (`+eventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		eventArgs(event)...)
	return mapError(err, "event "+event.ID)
}

func (s *Store) GetEvent(ctx context.Context, id string) (domain.Event, error) {
	event, err := scanEvent(s.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if err != nil {
		return domain.Event{}, mapError(err, "event "+id)
	}
	return event, nil
}

// UpdateEvent reads the row under FOR UPDATE, merges the patch in Go so the
// rules match every other store, and writes the whole row back.
func (s *Store) UpdateEvent(ctx context.Context, id string, patch domain.EventPatch, updatedAt time.Time) (domain.Event, error) {
	var updated domain.Event
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		event, err := scanEvent(tx.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return mapError(err, "event "+id)
		}
		event.ApplyPatch(patch)
		event.UpdatedAt = updatedAt
		_, err = tx.Exec(ctx, `UPDATE events SET
				job_id = $2, title = $3, description = $4,
				meeting_url = $5, platform = $6, starts_at = $7, ends_at = $8,
				time_limit_minutes = $9, opens_at = $10, closes_at = $11,
				due_at = $12, max_file_size_mb = $13, allowed_extensions = $14, max_score = $15,
				updated_at = $16
			WHERE id = $1`,
			id, event.JobID, event.Title, event.Description,
			event.MeetingURL, event.Platform, event.StartsAt, event.EndsAt,
			event.TimeLimitMinutes, event.OpensAt, event.ClosesAt,
			event.DueAt, event.MaxFileSizeMB, event.AllowedExtensions, event.MaxScore,
			event.UpdatedAt,
		)
		if err != nil {
			return errors.Wrap(err, "update event")
		}
		updated = event
		return nil
	})
	return updated, err
}

func (s *Store) PublishEvent(ctx context.Context, id string, at time.Time) (domain.Event, error) {
	_, err := s.pool.Exec(ctx, `UPDATE events SET status = 'published', published_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'draft'`, id, at)
	if err != nil {
		return domain.Event{}, errors.Wrap(err, "publish event")
	}
	return s.GetEvent(ctx, id)
}

func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "delete event")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(domain.ErrNotFound, "event %s", id)
	}
	return nil
}

func (s *Store) ListEventsByOwner(ctx context.Context, ownerID string) ([]domain.Event, error) {
	return s.queryEvents(ctx, `SELECT `+eventColumns+` FROM events WHERE owner_id = $1 ORDER BY created_at, id`, ownerID)
}

func (s *Store) ListPublishedEvents(ctx context.Context, filter domain.EventFilter) ([]domain.Event, error) {
	return s.queryEvents(ctx, `SELECT `+eventColumns+` FROM events
		WHERE status = 'published'
		  AND ($1 = '' OR job_id = $1)
		  AND ($2 = '' OR type = $2)
		ORDER BY created_at, id`, filter.JobID, string(filter.Type))
}

func (s *Store) queryEvents(ctx context.Context, sql string, args ...interface{}) ([]domain.Event, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query events")
	}
	defer rows.Close()
	out := make([]domain.Event, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		out = append(out, event)
	}
	return out, errors.Wrap(rows.Err(), "iterate events")
}

// questions

const questionColumns = `id, event_id, position, text, kind, options, correct_option, points`

func scanQuestion(row rowScanner) (domain.Question, error) {
	var q domain.Question
	err := row.Scan(&q.ID, &q.EventID, &q.Position, &q.Text, &q.Kind, &q.Options, &q.CorrectOption, &q.Points)
	return q, err
}

func (s *Store) CreateQuestion(ctx context.Context, q domain.Question) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO questions (`+questionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		q.ID, q.EventID, q.Position, q.Text, string(q.Kind), q.Options, q.CorrectOption, q.Points)
	return mapError(err, "question "+q.ID)
}

func (s *Store) GetQuestion(ctx context.Context, id string) (domain.Question, error) {
	q, err := scanQuestion(s.pool.QueryRow(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = $1`, id))
	if err != nil {
		return domain.Question{}, mapError(err, "question "+id)
	}
	return q, nil
}

func (s *Store) UpdateQuestion(ctx context.Context, q domain.Question) error {
	tag, err := s.pool.Exec(ctx, `UPDATE questions SET text = $2, kind = $3, options = $4, correct_option = $5, points = $6
		WHERE id = $1`, q.ID, q.Text, string(q.Kind), q.Options, q.CorrectOption, q.Points)
	if err != nil {
		return errors.Wrap(err, "update question")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(domain.ErrNotFound, "question %s", q.ID)
	}
	return nil
}

func (s *Store) DeleteQuestion(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		var eventID string
		var position int
		err := tx.QueryRow(ctx, `DELETE FROM questions WHERE id = $1 RETURNING event_id, position`, id).Scan(&eventID, &position)
		if err != nil {
			return mapError(err, "question "+id)
		}
		_, err = tx.Exec(ctx, `UPDATE questions SET position = position - 1 WHERE event_id = $1 AND position > $2`, eventID, position)
		return errors.Wrap(err, "shift question positions")
	})
}

func (s *Store) ListQuestions(ctx context.Context, eventID string) ([]domain.Question, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+questionColumns+` FROM questions WHERE event_id = $1 ORDER BY position`, eventID)
	if err != nil {
		return nil, errors.Wrap(err, "query questions")
	}
	defer rows.Close()
	out := make([]domain.Question, 0)
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan question")
		}
		out = append(out, q)
	}
	return out, errors.Wrap(rows.Err(), "iterate questions")
}

// ReorderQuestions relies on the deferred unique constraint on (event_id,
// position) so intermediate duplicates inside the transaction are fine.
func (s *Store) ReorderQuestions(ctx context.Context, eventID string, orderedIDs []string) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for pos, id := range orderedIDs {
			batch.Queue(`UPDATE questions SET position = $3 WHERE id = $1 AND event_id = $2`, id, eventID, pos)
		}
		results := tx.SendBatch(ctx, batch)
		for _, id := range orderedIDs {
			tag, err := results.Exec()
			if err != nil {
				_ = results.Close()
				return errors.Wrap(err, "reorder questions")
			}
			if tag.RowsAffected() == 0 {
				_ = results.Close()
				return errors.Wrapf(domain.ErrNotFound, "question %s", id)
			}
		}
		return errors.Wrap(results.Close(), "reorder questions")
	})
}

func (s *Store) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return errors.Wrap(tx.Commit(ctx), "commit tx")
}

// mapError turns driver errors into domain kinds. Unique violations become
// domain.ErrConflict and a dangling event reference becomes domain.ErrNotFound.
func mapError(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return errors.Wrapf(domain.ErrNotFound, "%s", what)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return errors.Wrapf(domain.ErrConflict, "%s: %s", what, pgErr.ConstraintName)
		case "23503":
			return errors.Wrapf(domain.ErrNotFound, "%s references a missing event", what)
		}
	}
	return errors.Wrap(err, what)
}
