package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
	commitErr  error
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.committed = true
	return t.commitErr
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	t.rolledBack = true
	return nil
}

type fakeBeginner struct {
	txs      []*fakeTx
	beginErr error
}

func (b *fakeBeginner) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	if b.beginErr != nil {
		return nil, b.beginErr
	}
	tx := &fakeTx{}
	b.txs = append(b.txs, tx)
	return tx, nil
}

func TestWithTxCommits(t *testing.T) {
	b := &fakeBeginner{}
	err := WithTx(context.Background(), b, func(ctx context.Context, tx pgx.Tx) error { return nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(b.txs) != 1 || !b.txs[0].committed {
		t.Fatalf("expected single committed tx")
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	b := &fakeBeginner{}
	boom := errors.New("falhou")
	err := WithTx(context.Background(), b, func(ctx context.Context, tx pgx.Tx) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	if b.txs[0].committed || !b.txs[0].rolledBack {
		t.Fatalf("expected rollback without commit")
	}
	if len(b.txs) != 1 {
		t.Fatalf("plain errors must not be retried")
	}
}

func TestWithTxRetriesSerializationFailure(t *testing.T) {
	b := &fakeBeginner{}
	calls := 0
	err := WithTx(context.Background(), b, func(ctx context.Context, tx pgx.Tx) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("update: %w", &pgconn.PgError{Code: codeSerializationFailure})
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 || !b.txs[2].committed {
		t.Fatalf("expected success on third attempt, calls=%d", calls)
	}
}

func TestWithTxGivesUpAfterMaxAttempts(t *testing.T) {
	b := &fakeBeginner{}
	err := WithTx(context.Background(), b, func(ctx context.Context, tx pgx.Tx) error {
		return &pgconn.PgError{Code: codeDeadlockDetected}
	})
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || len(b.txs) != maxTxAttempts {
		t.Fatalf("expected wrapped pg error after %d attempts, got %v (%d)", maxTxAttempts, err, len(b.txs))
	}
}

func TestWithTxBeginFailure(t *testing.T) {
	b := &fakeBeginner{beginErr: errors.New("pool fechado")}
	err := WithTx(context.Background(), b, func(ctx context.Context, tx pgx.Tx) error {
		t.Fatalf("fn must not run")
		return nil
	})
	if err == nil {
		t.Fatalf("expected begin error")
	}
}
