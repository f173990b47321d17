package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/nerrad567/services-client/internal/backend"
)

// SQLQuery runs query against database and returns every row in order.
func (s *Services) SQLQuery(ctx context.Context, database, query string, opts ...CallOption) ([]string, error) {
	resp, err := s.sqlExchange(ctx, database, query, opts)
	if err != nil {
		return nil, err
	}
	return resp.Rows, nil
}

// SQLQueryRow runs query and returns its rows joined by newlines; a query
// with no rows returns "".
func (s *Services) SQLQueryRow(ctx context.Context, database, query string, opts ...CallOption) (string, error) {
	resp, err := s.sqlExchange(ctx, database, query, opts)
	if err != nil {
		return "", err
	}
	return strings.Join(resp.Rows, "\n"), nil
}

// SQLExec runs a statement whose rows, if any, are not needed.
func (s *Services) SQLExec(ctx context.Context, database, query string, opts ...CallOption) error {
	_, err := s.sqlExchange(ctx, database, query, opts)
	return err
}

func (s *Services) sqlExchange(ctx context.Context, database, query string, opts []CallOption) (backend.Response, error) {
	if database == "" || strings.TrimSpace(query) == "" {
		return backend.Response{}, fmt.Errorf("%w: database and query are required", ErrInvalidArgument)
	}
	o := s.resolve(opts)
	return s.call(ctx, backend.Request{
		Kind:      backend.KindSQLQuery,
		Device:    o.device,
		Database:  database,
		Timestamp: o.timestamp.UnixMilli(),
		Payload:   query,
	}, o.timeout)
}
