package database

import (
	"context"
	"fmt"
	"time"

	"OffloadEngine/errs"
	"OffloadEngine/executor"

	"github.com/jackc/pgx/v5"
)

const ServiceName = "postgres"

const closeTimeout = 5 * time.Second

// Service runs statements on a single PostgreSQL connection.
type Service struct {
	conn *pgx.Conn
}

// NewService connects using options.dsn. Postgres has no per-request metadata, so headers are
// only logged by the executor.
func NewService(ctx context.Context, options map[string]any, _ map[string]string) (executor.Client, error) {
	dsn, err := executor.RequiredString(options, "dsn")
	if err != nil {
		return nil, err
	}

	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, errs.New(errs.ErrInvalidOptions, fmt.Sprintf("dsn: %v", err))
	}
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres at %s: %w", cfg.Host, err)
	}

	return &Service{conn: conn}, nil
}

func (s *Service) Invoke(ctx context.Context, operation string, input map[string]any) (any, error) {
	switch operation {
	case "query":
		sql, args, err := statement(input)
		if err != nil {
			return nil, err
		}
		return s.query(ctx, sql, args)
	case "exec":
		sql, args, err := statement(input)
		if err != nil {
			return nil, err
		}
		tag, err := s.conn.Exec(ctx, sql, args...)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"command":      tag.String(),
			"rowsAffected": tag.RowsAffected(),
		}, nil
	default:
		return nil, errs.New(errs.ErrUnknownOperation, ServiceName+"."+operation)
	}
}

func (s *Service) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	return s.conn.Close(ctx)
}

func (s *Service) query(ctx context.Context, sql string, args []any) (any, error) {
	rows, err := s.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	result := make([]map[string]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(map[string]any, len(fields))
		for i, field := range fields {
			row[field.Name] = values[i]
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return map[string]any{"rows": result, "count": len(result)}, nil
}

func statement(input map[string]any) (string, []any, error) {
	sql, err := executor.RequiredString(input, "sql")
	if err != nil {
		return "", nil, err
	}

	raw, ok := input["args"]
	if !ok || raw == nil {
		return sql, nil, nil
	}
	args, ok := raw.([]any)
	if !ok {
		return "", nil, errs.New(errs.ErrInvalidInput, fmt.Sprintf("args must be a list, got %T", raw))
	}
	return sql, args, nil
}
