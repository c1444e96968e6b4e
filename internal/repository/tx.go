package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/metrics"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// SQLSTATE codes the repository reacts to.
const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgInvalidTextRepr      = "22P02"
	pgLockNotAvailable     = "55P03"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

type txKey struct{}

func txFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey{}).(pgx.Tx)
	return tx
}

// TxManager runs registration units of work in a single PostgreSQL
// transaction, bounding lock waits and retrying contention failures.
type TxManager struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
	maxAttempts int
	logger      zerolog.Logger
}

func newTxManager(pool *pgxpool.Pool, lockTimeout time.Duration, maxAttempts int, logger zerolog.Logger) *TxManager {
	return &TxManager{
		pool:        pool,
		lockTimeout: lockTimeout,
		maxAttempts: max(maxAttempts, 1),
		logger:      logger,
	}
}

// Atomically runs fn inside a transaction. eventID only scopes log output:
// PostgreSQL row locks on the event provide the per-event serialisation.
// A call made while a transaction is already open joins it.
func (m *TxManager) Atomically(ctx context.Context, eventID string, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}

	var err error
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		err = m.runOnce(ctx, fn)
		cause, retry := retryCause(err)
		if !retry {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		metrics.TransactionRetries.WithLabelValues(cause).Inc()
		m.logger.Debug().
			Err(err).
			Str("event_id", eventID).
			Str("cause", cause).
			Int("attempt", attempt).
			Msg("retrying registration transaction")
	}
	return fmt.Errorf("%w: event %s after %d attempts: %w", model.ErrTransientConflict, eventID, m.maxAttempts, err)
}

func (m *TxManager) runOnce(ctx context.Context, fn func(ctx context.Context) error) error {
	conn, err := m.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	// Rollback is a no-op once Commit succeeded. A detached context lets it
	// run even when the caller has already gone away.
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`,
		lockTimeoutSetting(m.lockTimeout)); err != nil {
		return fmt.Errorf("set lock timeout: %w", err)
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// acquire waits at most lockTimeout for a pooled connection.
func (m *TxManager) acquire(ctx context.Context) (*pgxpool.Conn, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, m.lockTimeout)
	defer cancel()

	conn, err := m.pool.Acquire(acquireCtx)
	if err == nil {
		return conn, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		metrics.TransactionRetries.WithLabelValues("pool_exhausted").Inc()
		return nil, fmt.Errorf("%w: no connection within %s", model.ErrTransientConflict, m.lockTimeout)
	}
	return nil, fmt.Errorf("acquire connection: %w", err)
}

// lockTimeoutSetting renders d for SET lock_timeout. PostgreSQL reads 0 as
// "wait forever", so anything under a millisecond rounds up to 1ms.
func lockTimeoutSetting(d time.Duration) string {
	ms := (d + time.Millisecond - 1) / time.Millisecond
	return fmt.Sprintf("%dms", max(ms, 1))
}

func retryCause(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	switch pgErr.Code {
	case pgLockNotAvailable:
		return "lock_timeout", true
	case pgSerializationFailure:
		return "serialization_failure", true
	case pgDeadlockDetected:
		return "deadlock", true
	}
	return "", false
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation &&
		(constraint == "" || pgErr.ConstraintName == constraint)
}

// querier routes statements through the context transaction when present.
type querier struct {
	pool *pgxpool.Pool
}

func (q querier) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return q.pool.Exec(ctx, sql, args...)
}

func (q querier) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return q.pool.QueryRow(ctx, sql, args...)
}

func (q querier) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return q.pool.Query(ctx, sql, args...)
}

// execSavepoint runs one statement so that its failure does not abort the
// surrounding transaction.
func (q querier) execSavepoint(ctx context.Context, sql string, args ...any) error {
	tx := txFromContext(ctx)
	if tx == nil {
		_, err := q.pool.Exec(ctx, sql, args...)
		return err
	}
	sp, err := tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}
	if _, err := sp.Exec(ctx, sql, args...); err != nil {
		_ = sp.Rollback(ctx)
		return err
	}
	return sp.Commit(ctx)
}
