package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ent0n29/proctor/internal/reliability"
)

// connectPolicy rides out a database that is still starting.
var connectPolicy = reliability.Policy{
	MaxAttempts: 6,
	Base:        250 * time.Millisecond,
	Cap:         4 * time.Second,
	Retryable:   func(err error) bool { return errors.Is(err, ErrUnavailable) },
}

// NewStore creates a postgres-backed store when configured, otherwise in-memory.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewInMemoryStore(), nil
	}
	var pg *PostgresStore
	err := reliability.Retry(ctx, connectPolicy, func(ctx context.Context) error {
		var err error
		pg, err = NewPostgresStore(ctx, databaseURL)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pg, nil
}
