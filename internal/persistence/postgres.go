package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // Postgres driver
)

// queryer is satisfied by *sql.DB, *sql.Tx, and *sql.Conn, letting one
// repository implementation serve the pool, transactions, and sessions.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// PostgresDB implements the Database interface for PostgreSQL
type PostgresDB struct {
	db        *sql.DB
	sources   SourceRepository
	events    EventRepository
	incidents IncidentRepository
}

// NewPostgresDB creates a new PostgreSQL database connection
func NewPostgresDB(connectionString string) (*PostgresDB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresDB{
		db:        db,
		sources:   &postgresSourceRepo{q: db},
		events:    &postgresEventRepo{q: db},
		incidents: &postgresIncidentRepo{q: db},
	}, nil
}

func (p *PostgresDB) Sources() SourceRepository     { return p.sources }
func (p *PostgresDB) Events() EventRepository       { return p.events }
func (p *PostgresDB) Incidents() IncidentRepository { return p.incidents }

func (p *PostgresDB) Close() error {
	return p.db.Close()
}

func (p *PostgresDB) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PostgresDB) BeginTx(ctx context.Context) (Transaction, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return newPostgresTx(tx), nil
}

// Session checks a dedicated connection out of the pool so one worker can
// run its per-record statements and commits without sharing.
func (p *PostgresDB) Session(ctx context.Context) (Session, error) {
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check out connection: %w", err)
	}
	return &postgresSession{
		conn:      conn,
		sources:   &postgresSourceRepo{q: conn},
		events:    &postgresEventRepo{q: conn},
		incidents: &postgresIncidentRepo{q: conn},
	}, nil
}

// postgresTx implements the Transaction interface
type postgresTx struct {
	tx        *sql.Tx
	sources   SourceRepository
	events    EventRepository
	incidents IncidentRepository
}

func newPostgresTx(tx *sql.Tx) *postgresTx {
	return &postgresTx{
		tx:        tx,
		sources:   &postgresSourceRepo{q: tx},
		events:    &postgresEventRepo{q: tx},
		incidents: &postgresIncidentRepo{q: tx},
	}
}

func (t *postgresTx) Commit() error                 { return t.tx.Commit() }
func (t *postgresTx) Rollback() error               { return t.tx.Rollback() }
func (t *postgresTx) Sources() SourceRepository     { return t.sources }
func (t *postgresTx) Events() EventRepository       { return t.events }
func (t *postgresTx) Incidents() IncidentRepository { return t.incidents }

// postgresSession implements the Session interface over one *sql.Conn
type postgresSession struct {
	conn      *sql.Conn
	sources   SourceRepository
	events    EventRepository
	incidents IncidentRepository
}

func (s *postgresSession) Sources() SourceRepository     { return s.sources }
func (s *postgresSession) Events() EventRepository       { return s.events }
func (s *postgresSession) Incidents() IncidentRepository { return s.incidents }

func (s *postgresSession) BeginTx(ctx context.Context) (Transaction, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return newPostgresTx(tx), nil
}

func (s *postgresSession) Close() error {
	return s.conn.Close()
}
