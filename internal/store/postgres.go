package store

import (
	"context"
	"errors"
	"fmt"

	"mindmeld/internal/domain"
	"mindmeld/internal/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres implements Store on pgx. Conditional updates run as a short
// SELECT ... FOR UPDATE transaction: the predicate is evaluated on the locked
// current row, so concurrent attempts serialize and exactly one wins.
// Change events are published to the Redis feed after commit.
type Postgres struct {
	db   *pgxpool.Pool
	feed *Feed
}

func NewPostgres(db *pgxpool.Pool, feed *Feed) *Postgres {
	return &Postgres{db: db, feed: feed}
}

const uniqueViolation = "23505"

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicate
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func (p *Postgres) publish(ev ChangeEvent) {
	if err := p.feed.Publish(context.Background(), ev); err != nil {
		// readers re-fetch on their next event; a lost notification delays
		// convergence, it does not corrupt state
		logger.Warn("store: publish change event failed", "error", err, "session", ev.SessionCode)
	}
}

const sessionColumns = `code, capacity, status, round, round_limit, timer_enabled,
	winner_name, rounds_taken, successor_code, rematch_claim, rematch_claimed_at, created_at`

func scanSession(row pgx.Row) (*domain.Session, error) {
	var s domain.Session
	var status string
	err := row.Scan(&s.Code, &s.Capacity, &status, &s.Round, &s.RoundLimit, &s.TimerEnabled,
		&s.WinnerName, &s.RoundsTaken, &s.SuccessorCode, &s.RematchClaim, &s.RematchClaimedAt, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	s.Status = domain.Status(status)
	return &s, nil
}

func (p *Postgres) CreateSession(ctx context.Context, s *domain.Session) error {
	_, err := p.db.Exec(ctx,
		`INSERT INTO sessions (`+sessionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		s.Code, s.Capacity, string(s.Status), s.Round, s.RoundLimit, s.TimerEnabled,
		s.WinnerName, s.RoundsTaken, s.SuccessorCode, s.RematchClaim, s.RematchClaimedAt, s.CreatedAt,
	)
	if err != nil {
		return mapErr(err)
	}
	p.publish(ChangeEvent{Kind: KindSession, Op: OpInsert, Key: s.Code, SessionCode: s.Code})
	return nil
}

func (p *Postgres) Session(ctx context.Context, code string) (*domain.Session, error) {
	row := p.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE code=$1`, code)
	s, err := scanSession(row)
	if err != nil {
		return nil, mapErr(err)
	}
	return s, nil
}

func (p *Postgres) UpdateSession(ctx context.Context, code string, pred func(domain.Session) bool, apply func(*domain.Session)) (*domain.Session, error) {
	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, mapErr(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE code=$1 FOR UPDATE`, code)
	s, err := scanSession(row)
	if err != nil {
		return nil, mapErr(err)
	}

	if !pred(*s) {
		return nil, ErrConflict
	}
	apply(s)

	_, err = tx.Exec(ctx,
		`UPDATE sessions SET capacity=$2, status=$3, round=$4, round_limit=$5, timer_enabled=$6,
		 winner_name=$7, rounds_taken=$8, successor_code=$9, rematch_claim=$10, rematch_claimed_at=$11
		 WHERE code=$1`,
		s.Code, s.Capacity, string(s.Status), s.Round, s.RoundLimit, s.TimerEnabled,
		s.WinnerName, s.RoundsTaken, s.SuccessorCode, s.RematchClaim, s.RematchClaimedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, mapErr(err)
	}

	p.publish(ChangeEvent{Kind: KindSession, Op: OpUpdate, Key: code, SessionCode: code})
	return s, nil
}

func (p *Postgres) DeleteSession(ctx context.Context, code string) error {
	tag, err := p.db.Exec(ctx, `DELETE FROM sessions WHERE code=$1`, code)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	p.publish(ChangeEvent{Kind: KindSession, Op: OpDelete, Key: code, SessionCode: code})
	return nil
}

const participantColumns = `id, session_code, display_name, word, submitted, ready, wants_rematch, joined_at`

func scanParticipant(row pgx.Row) (*domain.Participant, error) {
	var p domain.Participant
	err := row.Scan(&p.ID, &p.SessionCode, &p.DisplayName, &p.Word, &p.Submitted, &p.Ready, &p.WantsRematch, &p.JoinedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Postgres) CreateParticipant(ctx context.Context, pt *domain.Participant) error {
	_, err := p.db.Exec(ctx,
		`INSERT INTO participants (`+participantColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		pt.ID, pt.SessionCode, pt.DisplayName, pt.Word, pt.Submitted, pt.Ready, pt.WantsRematch, pt.JoinedAt,
	)
	if err != nil {
		return mapErr(err)
	}
	p.publish(ChangeEvent{Kind: KindParticipant, Op: OpInsert, Key: pt.ID, SessionCode: pt.SessionCode})
	return nil
}

func (p *Postgres) Participant(ctx context.Context, id string) (*domain.Participant, error) {
	row := p.db.QueryRow(ctx, `SELECT `+participantColumns+` FROM participants WHERE id=$1`, id)
	pt, err := scanParticipant(row)
	if err != nil {
		return nil, mapErr(err)
	}
	return pt, nil
}

func (p *Postgres) Participants(ctx context.Context, sessionCode string) ([]domain.Participant, error) {
	rows, err := p.db.Query(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE session_code=$1 ORDER BY joined_at, id`,
		sessionCode,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []domain.Participant
	for rows.Next() {
		pt, err := scanParticipant(rows)
		if err != nil {
			return nil, mapErr(err)
		}
		out = append(out, *pt)
	}
	return out, mapErr(rows.Err())
}

func (p *Postgres) UpdateParticipant(ctx context.Context, id string, pred func(domain.Participant) bool, apply func(*domain.Participant)) (*domain.Participant, error) {
	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, mapErr(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `SELECT `+participantColumns+` FROM participants WHERE id=$1 FOR UPDATE`, id)
	pt, err := scanParticipant(row)
	if err != nil {
		return nil, mapErr(err)
	}

	if !pred(*pt) {
		return nil, ErrConflict
	}
	apply(pt)

	_, err = tx.Exec(ctx,
		`UPDATE participants SET display_name=$2, word=$3, submitted=$4, ready=$5, wants_rematch=$6
		 WHERE id=$1`,
		pt.ID, pt.DisplayName, pt.Word, pt.Submitted, pt.Ready, pt.WantsRematch,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, mapErr(err)
	}

	p.publish(ChangeEvent{Kind: KindParticipant, Op: OpUpdate, Key: id, SessionCode: pt.SessionCode})
	return pt, nil
}

func (p *Postgres) DeleteParticipant(ctx context.Context, id string) error {
	var code string
	err := p.db.QueryRow(ctx, `DELETE FROM participants WHERE id=$1 RETURNING session_code`, id).Scan(&code)
	if err != nil {
		return mapErr(err)
	}
	p.publish(ChangeEvent{Kind: KindParticipant, Op: OpDelete, Key: id, SessionCode: code})
	return nil
}

func (p *Postgres) CreateSubmission(ctx context.Context, s *domain.Submission) error {
	_, err := p.db.Exec(ctx,
		`INSERT INTO submissions (session_code, participant_id, round, word, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		s.SessionCode, s.ParticipantID, s.Round, s.Word, s.CreatedAt,
	)
	if err != nil {
		return mapErr(err)
	}
	p.publish(ChangeEvent{
		Kind:        KindSubmission,
		Op:          OpInsert,
		Key:         SubmissionKey(s.ParticipantID, s.Round),
		SessionCode: s.SessionCode,
	})
	return nil
}

func (p *Postgres) Submissions(ctx context.Context, sessionCode string) ([]domain.Submission, error) {
	return p.querySubmissions(ctx,
		`SELECT session_code, participant_id, round, word, created_at
		 FROM submissions WHERE session_code=$1`, sessionCode)
}

func (p *Postgres) RoundSubmissions(ctx context.Context, sessionCode string, round int) ([]domain.Submission, error) {
	return p.querySubmissions(ctx,
		`SELECT session_code, participant_id, round, word, created_at
		 FROM submissions WHERE session_code=$1 AND round=$2`, sessionCode, round)
}

func (p *Postgres) querySubmissions(ctx context.Context, sql string, args ...any) ([]domain.Submission, error) {
	rows, err := p.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []domain.Submission
	for rows.Next() {
		var s domain.Submission
		if err := rows.Scan(&s.SessionCode, &s.ParticipantID, &s.Round, &s.Word, &s.CreatedAt); err != nil {
			return nil, mapErr(err)
		}
		out = append(out, s)
	}
	return out, mapErr(rows.Err())
}

func (p *Postgres) DeleteSubmissions(ctx context.Context, sessionCode string) error {
	if _, err := p.db.Exec(ctx, `DELETE FROM submissions WHERE session_code=$1`, sessionCode); err != nil {
		return mapErr(err)
	}
	p.publish(ChangeEvent{Kind: KindSubmission, Op: OpDelete, Key: "", SessionCode: sessionCode})
	return nil
}

func (p *Postgres) ResetRoundFlags(ctx context.Context, sessionCode string) error {
	if _, err := p.db.Exec(ctx,
		`UPDATE participants SET word='', submitted=false WHERE session_code=$1`,
		sessionCode,
	); err != nil {
		return mapErr(err)
	}
	p.publish(ChangeEvent{Kind: KindParticipant, Op: OpUpdate, Key: "", SessionCode: sessionCode})
	return nil
}

func (p *Postgres) Subscribe(ctx context.Context, sessionCode string) (<-chan ChangeEvent, func(), error) {
	return p.feed.Subscribe(ctx, sessionCode)
}
