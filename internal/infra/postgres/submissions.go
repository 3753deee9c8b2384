package postgres

import (
	"context"
	"encoding/json"
	"time"

	"engagement-service/internal/domain"
	"github.com/cockroachdb/errors"
)

// quiz submissions

const quizColumns = `id, event_id, participant_id, started_at, answers, time_limit_minutes,
	submitted_at, elapsed_seconds, forced_submit, score, max_score, pending_points,
	graded_at, graded_by`

func scanQuiz(row rowScanner) (domain.QuizSubmission, error) {
	var (
		sub     domain.QuizSubmission
		answers []byte
	)
	err := row.Scan(
		&sub.ID, &sub.EventID, &sub.ParticipantID, &sub.StartedAt, &answers, &sub.TimeLimitMinutes,
		&sub.SubmittedAt, &sub.ElapsedSeconds, &sub.ForcedSubmit, &sub.Score, &sub.MaxScore, &sub.PendingPoints,
		&sub.GradedAt, &sub.GradedBy,
	)
	if err != nil {
		return domain.QuizSubmission{}, err
	}
	sub.Answers = map[string]string{}
	if len(answers) > 0 {
		if err := json.Unmarshal(answers, &sub.Answers); err != nil {
			return domain.QuizSubmission{}, errors.Wrapf(err, "decode answers of %s", sub.ID)
		}
	}
	return sub, nil
}

func (s *Store) CreateQuizSubmission(ctx context.Context, sub domain.QuizSubmission) error {
	answers := sub.Answers
	if answers == nil {
		answers = map[string]string{}
	}
	payload, err := json.Marshal(answers)
	if err != nil {
		return errors.Wrap(err, "encode answers")
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO quiz_submissions (id, event_id, participant_id, started_at, answers, time_limit_minutes)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6)`,
		sub.ID, sub.EventID, sub.ParticipantID, sub.StartedAt, string(payload), sub.TimeLimitMinutes)
	return mapError(err, "quiz submission for "+sub.EventID+"/"+sub.ParticipantID)
}

func (s *Store) GetQuizSubmission(ctx context.Context, id string) (domain.QuizSubmission, error) {
	sub, err := scanQuiz(s.pool.QueryRow(ctx, `SELECT `+quizColumns+` FROM quiz_submissions WHERE id = $1`, id))
	if err != nil {
		return domain.QuizSubmission{}, mapError(err, "quiz submission "+id)
	}
	return sub, nil
}

func (s *Store) FindQuizSubmission(ctx context.Context, eventID, participantID string) (domain.QuizSubmission, error) {
	sub, err := scanQuiz(s.pool.QueryRow(ctx, `SELECT `+quizColumns+` FROM quiz_submissions
		WHERE event_id = $1 AND participant_id = $2`, eventID, participantID))
	if err != nil {
		return domain.QuizSubmission{}, mapError(err, "quiz submission for "+eventID+"/"+participantID)
	}
	return sub, nil
}

func (s *Store) ListQuizSubmissions(ctx context.Context, eventID string) ([]domain.QuizSubmission, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+quizColumns+` FROM quiz_submissions WHERE event_id = $1 ORDER BY started_at, id`, eventID)
	if err != nil {
		return nil, errors.Wrap(err, "query quiz submissions")
	}
	defer rows.Close()
	out := make([]domain.QuizSubmission, 0)
	for rows.Next() {
		sub, err := scanQuiz(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan quiz submission")
		}
		out = append(out, sub)
	}
	return out, errors.Wrap(rows.Err(), "iterate quiz submissions")
}

// SaveQuizAnswer merges one key into the answers document while the row is
// still open, so a racing close always wins.
func (s *Store) SaveQuizAnswer(ctx context.Context, id, questionID, answer string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE quiz_submissions
		SET answers = answers || jsonb_build_object($2::text, $3::text)
		WHERE id = $1 AND submitted_at IS NULL`, id, questionID, answer)
	if err != nil {
		return errors.Wrap(err, "save quiz answer")
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := s.GetQuizSubmission(ctx, id); err != nil {
		return err
	}
	return errors.Wrapf(domain.ErrAlreadySubmitted, "quiz submission %s", id)
}

func (s *Store) CloseQuizSubmission(ctx context.Context, id string, result domain.QuizResult) (bool, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE quiz_submissions
		SET submitted_at = $2, elapsed_seconds = $3, forced_submit = $4, score = $5, max_score = $6, pending_points = $7
		WHERE id = $1 AND submitted_at IS NULL`,
		id, result.SubmittedAt, result.ElapsedSeconds, result.Forced, result.Score, result.MaxScore, result.PendingPoints)
	if err != nil {
		return false, errors.Wrap(err, "close quiz submission")
	}
	return s.applied(ctx, tag.RowsAffected(), `SELECT 1 FROM quiz_submissions WHERE id = $1`, id, "quiz submission")
}

func (s *Store) GradeQuizSubmission(ctx context.Context, id string, grade domain.Grade) (bool, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE quiz_submissions SET score = $2, graded_at = $3, graded_by = $4
		WHERE id = $1 AND graded_at IS NULL`, id, grade.Score, grade.GradedAt, grade.GradedBy)
	if err != nil {
		return false, errors.Wrap(err, "grade quiz submission")
	}
	return s.applied(ctx, tag.RowsAffected(), `SELECT 1 FROM quiz_submissions WHERE id = $1`, id, "quiz submission")
}

// applied distinguishes "condition not met" from "no such row" after a
// conditional update.
func (s *Store) applied(ctx context.Context, affected int64, existsSQL, id, what string) (bool, error) {
	if affected > 0 {
		return true, nil
	}
	var one int
	if err := s.pool.QueryRow(ctx, existsSQL, id).Scan(&one); err != nil {
		return false, mapError(err, what+" "+id)
	}
	return false, nil
}

// assignment submissions

const assignmentColumns = `id, event_id, participant_id, file_locator, filename, size_bytes, submitted_at,
	score, max_score, feedback, graded_at, graded_by`

func scanAssignment(row rowScanner) (domain.AssignmentSubmission, error) {
	var sub domain.AssignmentSubmission
	err := row.Scan(
		&sub.ID, &sub.EventID, &sub.ParticipantID, &sub.FileLocator, &sub.Filename, &sub.SizeBytes, &sub.SubmittedAt,
		&sub.Score, &sub.MaxScore, &sub.Feedback, &sub.GradedAt, &sub.GradedBy,
	)
	return sub, err
}

func (s *Store) CreateAssignmentSubmission(ctx context.Context, sub domain.AssignmentSubmission) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO assignment_submissions
		(id, event_id, participant_id, file_locator, filename, size_bytes, submitted_at, max_score)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		sub.ID, sub.EventID, sub.ParticipantID, sub.FileLocator, sub.Filename, sub.SizeBytes, sub.SubmittedAt, sub.MaxScore)
	return mapError(err, "assignment submission for "+sub.EventID+"/"+sub.ParticipantID)
}

func (s *Store) GetAssignmentSubmission(ctx context.Context, id string) (domain.AssignmentSubmission, error) {
	sub, err := scanAssignment(s.pool.QueryRow(ctx, `SELECT `+assignmentColumns+` FROM assignment_submissions WHERE id = $1`, id))
	if err != nil {
		return domain.AssignmentSubmission{}, mapError(err, "assignment submission "+id)
	}
	return sub, nil
}

func (s *Store) FindAssignmentSubmission(ctx context.Context, eventID, participantID string) (domain.AssignmentSubmission, error) {
	sub, err := scanAssignment(s.pool.QueryRow(ctx, `SELECT `+assignmentColumns+` FROM assignment_submissions
		WHERE event_id = $1 AND participant_id = $2`, eventID, participantID))
	if err != nil {
		return domain.AssignmentSubmission{}, mapError(err, "assignment submission for "+eventID+"/"+participantID)
	}
	return sub, nil
}

func (s *Store) ListAssignmentSubmissions(ctx context.Context, eventID string) ([]domain.AssignmentSubmission, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+assignmentColumns+` FROM assignment_submissions WHERE event_id = $1 ORDER BY submitted_at, id`, eventID)
	if err != nil {
		return nil, errors.Wrap(err, "query assignment submissions")
	}
	defer rows.Close()
	out := make([]domain.AssignmentSubmission, 0)
	for rows.Next() {
		sub, err := scanAssignment(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan assignment submission")
		}
		out = append(out, sub)
	}
	return out, errors.Wrap(rows.Err(), "iterate assignment submissions")
}

func (s *Store) GradeAssignmentSubmission(ctx context.Context, id string, grade domain.Grade) (bool, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE assignment_submissions SET score = $2, feedback = $3, graded_at = $4, graded_by = $5
		WHERE id = $1 AND graded_at IS NULL`, id, grade.Score, grade.Feedback, grade.GradedAt, grade.GradedBy)
	if err != nil {
		return false, errors.Wrap(err, "grade assignment submission")
	}
	return s.applied(ctx, tag.RowsAffected(), `SELECT 1 FROM assignment_submissions WHERE id = $1`, id, "assignment submission")
}

// registrations

const registrationColumns = `id, event_id, participant_id, registered_at, status, attended_at`

func scanRegistration(row rowScanner) (domain.Registration, error) {
	var reg domain.Registration
	err := row.Scan(&reg.ID, &reg.EventID, &reg.ParticipantID, &reg.RegisteredAt, &reg.Status, &reg.AttendedAt)
	return reg, err
}

func (s *Store) CreateRegistration(ctx context.Context, reg domain.Registration) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO registrations (`+registrationColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		reg.ID, reg.EventID, reg.ParticipantID, reg.RegisteredAt, string(reg.Status), reg.AttendedAt)
	return mapError(err, "registration for "+reg.EventID+"/"+reg.ParticipantID)
}

func (s *Store) GetRegistration(ctx context.Context, id string) (domain.Registration, error) {
	reg, err := scanRegistration(s.pool.QueryRow(ctx, `SELECT `+registrationColumns+` FROM registrations WHERE id = $1`, id))
	if err != nil {
		return domain.Registration{}, mapError(err, "registration "+id)
	}
	return reg, nil
}

func (s *Store) FindRegistration(ctx context.Context, eventID, participantID string) (domain.Registration, error) {
	reg, err := scanRegistration(s.pool.QueryRow(ctx, `SELECT `+registrationColumns+` FROM registrations
		WHERE event_id = $1 AND participant_id = $2`, eventID, participantID))
	if err != nil {
		return domain.Registration{}, mapError(err, "registration for "+eventID+"/"+participantID)
	}
	return reg, nil
}

func (s *Store) ListRegistrations(ctx context.Context, eventID string) ([]domain.Registration, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+registrationColumns+` FROM registrations WHERE event_id = $1 ORDER BY registered_at, id`, eventID)
	if err != nil {
		return nil, errors.Wrap(err, "query registrations")
	}
	defer rows.Close()
	out := make([]domain.Registration, 0)
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan registration")
		}
		out = append(out, reg)
	}
	return out, errors.Wrap(rows.Err(), "iterate registrations")
}

func (s *Store) MarkAttended(ctx context.Context, id string, at time.Time) (domain.Registration, error) {
	reg, err := scanRegistration(s.pool.QueryRow(ctx, `UPDATE registrations
		SET status = 'attended', attended_at = COALESCE(attended_at, $2)
		WHERE id = $1
		RETURNING `+registrationColumns, id, at))
	if err != nil {
		return domain.Registration{}, mapError(err, "registration "+id)
	}
	return reg, nil
}
