package storage

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"

	"imgfilter/internal/domain"
)

const schema = `
	CREATE TABLE IF NOT EXISTS verdicts (
		request_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL DEFAULT '',
		url        TEXT NOT NULL,
		blocked    BOOLEAN NOT NULL,
		error      TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS verdicts_session_idx ON verdicts (session_id);
`

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return NewPostgresWithDB(db), nil
}

func NewPostgresWithDB(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, schema)
	return err
}

func (p *Postgres) Save(ctx context.Context, ev domain.VerdictEvent) error {
	query := `
		INSERT INTO verdicts (request_id, session_id, url, blocked, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (request_id) DO NOTHING
	`

	_, err := p.db.ExecContext(ctx, query,
		ev.RequestID,
		string(ev.SessionID),
		ev.URL,
		ev.Blocked,
		ev.Error,
		ev.CreatedAt,
	)

	return err
}

func (p *Postgres) FindAll(ctx context.Context, limit, offset int) ([]domain.VerdictEvent, error) {
	query := `
		SELECT request_id, session_id, url, blocked, error, created_at
		FROM verdicts ORDER BY created_at DESC LIMIT $1 OFFSET $2
	`
	return p.query(ctx, query, limit, offset)
}

func (p *Postgres) FindBySession(ctx context.Context, session domain.SessionID) ([]domain.VerdictEvent, error) {
	query := `
		SELECT request_id, session_id, url, blocked, error, created_at
		FROM verdicts WHERE session_id = $1 ORDER BY created_at
	`
	return p.query(ctx, query, string(session))
}

func (p *Postgres) GetStats(ctx context.Context) (Stats, error) {
	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE blocked),
		       COUNT(*) FILTER (WHERE error <> '')
		FROM verdicts
	`

	var s Stats
	err := p.db.QueryRowContext(ctx, query).Scan(&s.Total, &s.Blocked, &s.Failed)
	return s, err
}

func (p *Postgres) query(ctx context.Context, query string, args ...any) ([]domain.VerdictEvent, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.VerdictEvent
	for rows.Next() {
		var (
			ev      domain.VerdictEvent
			session string
		)
		if err := rows.Scan(
			&ev.RequestID,
			&session,
			&ev.URL,
			&ev.Blocked,
			&ev.Error,
			&ev.CreatedAt,
		); err != nil {
			return nil, err
		}
		ev.SessionID = domain.SessionID(session)
		events = append(events, ev)
	}

	return events, rows.Err()
}

var _ VerdictRepository = (*Postgres)(nil)
