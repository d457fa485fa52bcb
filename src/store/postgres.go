// Copyright (c) 2026 Khaled Abbas
//
// This source code is licensed under the Business Source License 1.1.
//
// Change Date: 4 years after the first public release of this version.
// Change License: MIT
//
// On the Change Date, this version of the code automatically converts
// to the MIT License. Prior to that date, use is subject to the
// Additional Use Grant. See the LICENSE file for details.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/Mahadi1000/taskmanager-server/src/model"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// PostgresStore keeps each task as a jsonb document keyed by a UUID. The
// jsonb || operator gives the same shallow top-level merge as Mongo's $set.
type PostgresStore struct {
	db    *sql.DB
	table string
}

// OpenPostgres connects with lib/pq, pings, and creates the table if needed.
func OpenPostgres(ctx context.Context, dsn, table string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	s, err := NewPostgresStore(db, table)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := s.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore wraps an open database handle. The table name is
// interpolated into SQL, so only plain identifiers are accepted.
func NewPostgresStore(db *sql.DB, table string) (*PostgresStore, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PostgresStore{db: db, table: table}, nil
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id         UUID PRIMARY KEY,
			doc        JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, s.table))
	if err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.table, err)
	}
	return nil
}

func (s *PostgresStore) ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (s *PostgresStore) parseID(id string) (string, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return u.String(), nil
}

func (s *PostgresStore) Insert(ctx context.Context, fields map[string]any) (string, error) {
	doc, err := json.Marshal(withoutID(fields))
	if err != nil {
		return "", fmt.Errorf("encode task: %w", err)
	}
	id := uuid.New().String()

	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (id, doc) VALUES ($1, $2::jsonb)", s.table), id, string(doc))
	if err != nil {
		return "", fmt.Errorf("insert task: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) FindAll(ctx context.Context) ([]model.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT id, doc FROM %s ORDER BY created_at, id", s.table))
	if err != nil {
		return nil, fmt.Errorf("find tasks: %w", err)
	}
	defer rows.Close()

	tasks := []model.Task{}
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		task, err := taskFromJSON(id, raw)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read tasks: %w", err)
	}
	return tasks, nil
}

func (s *PostgresStore) FindAndUpdate(ctx context.Context, id string, patch map[string]any) (model.Task, error) {
	key, err := s.parseID(id)
	if err != nil {
		return nil, err
	}
	doc, err := json.Marshal(withoutID(patch))
	if err != nil {
		return nil, fmt.Errorf("encode patch: %w", err)
	}

	var raw []byte
	err = s.db.QueryRowContext(ctx,
		fmt.Sprintf("UPDATE %s SET doc = doc || $2::jsonb WHERE id = $1 RETURNING doc", s.table),
		key, string(doc)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("find and update task %s: %w", id, err)
	}
	return taskFromJSON(key, raw)
}

func (s *PostgresStore) Update(ctx context.Context, id string, patch map[string]any) (int64, error) {
	key, err := s.parseID(id)
	if err != nil {
		return 0, err
	}
	doc, err := json.Marshal(withoutID(patch))
	if err != nil {
		return 0, fmt.Errorf("encode patch: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET doc = doc || $2::jsonb WHERE id = $1", s.table), key, string(doc))
	if err != nil {
		return 0, fmt.Errorf("update task %s: %w", id, err)
	}
	return res.RowsAffected()
}

func (s *PostgresStore) Delete(ctx context.Context, id string) (int64, error) {
	key, err := s.parseID(id)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", s.table), key)
	if err != nil {
		return 0, fmt.Errorf("delete task %s: %w", id, err)
	}
	return res.RowsAffected()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping postgres: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close(context.Context) error {
	return s.db.Close()
}

func withoutID(fields map[string]any) map[string]any {
	if fields == nil {
		return map[string]any{}
	}
	if _, ok := fields[model.IDField]; !ok {
		return fields
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if k != model.IDField {
			out[k] = v
		}
	}
	return out
}

func taskFromJSON(id string, raw []byte) (model.Task, error) {
	task := model.Task{}
	if err := json.Unmarshal(raw, &task); err != nil {
		return nil, fmt.Errorf("decode task %s: %w", id, err)
	}
	task[model.IDField] = id
	return task, nil
}
