// Package postgres stores exception requests as JSONB documents in PostgreSQL
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anggasct/exflow"
)

// DB is the subset of pgx used by the store. *pgxpool.Pool and pgx.Tx satisfy it.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const schema = `
CREATE TABLE IF NOT EXISTS exception_requests (
	request_id     TEXT PRIMARY KEY,
	id             TEXT NOT NULL,
	exception_type TEXT NOT NULL,
	phase          TEXT NOT NULL,
	status         TEXT NOT NULL,
	requested_by   TEXT NOT NULL,
	servers        TEXT[] NOT NULL DEFAULT '{}',
	document       JSONB NOT NULL,
	version        BIGINT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS exception_requests_status_idx ON exception_requests (status, phase);
CREATE INDEX IF NOT EXISTS exception_requests_servers_idx ON exception_requests USING GIN (servers);
`

// Store implements exflow.Store on PostgreSQL
type Store struct {
	db DB
}

var _ exflow.Store = (*Store)(nil)

// New creates a store over db
func New(db DB) *Store {
	return &Store{db: db}
}

// Open connects a pool to databaseURL and verifies it
func Open(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}
	return pool, nil
}

// Migrate creates the table and indexes when missing
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate exception_requests: %w", err)
	}
	return nil
}

// Get loads one request
func (s *Store) Get(ctx context.Context, requestID string) (*exflow.ExceptionRequest, error) {
	row := s.db.QueryRow(ctx, `
		SELECT document, version
		FROM exception_requests
		WHERE request_id=$1
	`, requestID)

	req, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, exflow.NewRequestNotFoundError(requestID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", requestID, err)
	}
	return req, nil
}

// List returns matching requests ordered by creation time
func (s *Store) List(ctx context.Context, filter exflow.Filter) ([]*exflow.ExceptionRequest, error) {
	query, args := buildListQuery(filter)
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list exception requests: %w", err)
	}
	defer rows.Close()

	result := make([]*exflow.ExceptionRequest, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan exception request: %w", err)
		}
		result = append(result, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list exception requests: %w", err)
	}
	return result, nil
}

// Save inserts a request at version 0 or updates it when the stored version
// still equals request.Version
func (s *Store) Save(ctx context.Context, request *exflow.ExceptionRequest) (*exflow.ExceptionRequest, error) {
	stored := request.Clone()
	stored.Version = request.Version + 1

	doc, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", request.RequestID, err)
	}

	var cmd pgconn.CommandTag
	if request.Version == 0 {
		cmd, err = s.db.Exec(ctx, `
			INSERT INTO exception_requests(request_id, id, exception_type, phase, status, requested_by, servers, document, version, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (request_id) DO NOTHING
		`, stored.RequestID, stored.ID, string(stored.Type), string(stored.Phase), string(stored.Status),
			strings.ToLower(stored.RequestedBy), serverKeys(stored), doc, stored.Version, stored.CreatedAt, stored.UpdatedAt)
	} else {
		cmd, err = s.db.Exec(ctx, `
			UPDATE exception_requests
			SET phase=$3, status=$4, servers=$5, document=$6, version=$7, updated_at=$8
			WHERE request_id=$1 AND version=$2
		`, stored.RequestID, request.Version, string(stored.Phase), string(stored.Status),
			serverKeys(stored), doc, stored.Version, stored.UpdatedAt)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to save %s: %w", request.RequestID, err)
	}

	if cmd.RowsAffected() == 0 {
		return nil, s.conflict(ctx, request)
	}
	return stored, nil
}

// conflict explains a save that matched no row
func (s *Store) conflict(ctx context.Context, request *exflow.ExceptionRequest) error {
	var actual int64
	err := s.db.QueryRow(ctx, `SELECT version FROM exception_requests WHERE request_id=$1`, request.RequestID).Scan(&actual)
	if errors.Is(err, pgx.ErrNoRows) {
		return exflow.NewRequestNotFoundError(request.RequestID)
	}
	if err != nil {
		return fmt.Errorf("failed to read version of %s: %w", request.RequestID, err)
	}
	return exflow.NewConcurrencyConflictError(request.RequestID, request.Version, actual)
}

// buildListQuery renders the filter as a parameterized query
func buildListQuery(filter exflow.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.Status != "" {
		add("status=$%d", string(filter.Status))
	}
	if filter.Phase != "" {
		add("phase=$%d", string(filter.Phase))
	}
	if filter.Type != "" {
		add("exception_type=$%d", string(filter.Type))
	}
	if filter.RequestedBy != "" {
		add("requested_by=$%d", strings.ToLower(filter.RequestedBy))
	}
	if filter.ServerName != "" {
		add("$%d = ANY(servers)", strings.ToLower(filter.ServerName))
	}

	var b strings.Builder
	b.WriteString("SELECT document, version FROM exception_requests")
	if len(conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}
	b.WriteString(" ORDER BY created_at, request_id")
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		b.WriteString(fmt.Sprintf(" LIMIT $%d", len(args)))
	}
	return b.String(), args
}

func scanRequest(row pgx.Row) (*exflow.ExceptionRequest, error) {
	var (
		doc     []byte
		version int64
	)
	if err := row.Scan(&doc, &version); err != nil {
		return nil, err
	}

	var req exflow.ExceptionRequest
	if err := json.Unmarshal(doc, &req); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	req.Version = version
	return &req, nil
}

func serverKeys(r *exflow.ExceptionRequest) []string {
	servers := r.Servers()
	keys := make([]string, 0, len(servers))
	for _, s := range servers {
		keys = append(keys, strings.ToLower(s))
	}
	return keys
}
