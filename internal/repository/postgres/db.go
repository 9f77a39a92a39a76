package postgresrepo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kirinyoku/cinetix/internal/repository"
)

type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Pool is the part of *pgxpool.Pool the store uses.
type Pool interface {
	DB
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

type Store struct {
	pool       Pool
	maxRetries int
}

func NewStore(pool Pool) *Store {
	return &Store{
		pool:       pool,
		maxRetries: 3,
	}
}

// RunTx runs fn in a read-committed transaction unless opts says otherwise.
// Seat and ticket rows are locked explicitly with FOR UPDATE, so the default
// level is enough for the conditional updates the repositories issue.
func (s *Store) RunTx(
	ctx context.Context,
	opts *pgx.TxOptions,
	fn func(ctx context.Context, tx DB) error,
) error {
	txOpts := pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	}

	if opts != nil {
		txOpts.IsoLevel = opts.IsoLevel
		txOpts.AccessMode = opts.AccessMode
		txOpts.DeferrableMode = opts.DeferrableMode
	}

	tx, err := s.pool.BeginTx(ctx, txOpts)
	if err != nil {
		return err
	}

	defer tx.Rollback(ctx)

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

// InTx implements repository.Transactor. Deadlocks and serialization
// failures are retried a bounded number of times.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, r repository.Repos) error) error {
	var err error

	for attempt := 0; ; attempt++ {
		err = s.RunTx(ctx, nil, func(ctx context.Context, tx DB) error {
			return fn(ctx, &txRepos{pool: s.pool, db: tx})
		})
		if err == nil || !IsRetryable(err) || attempt >= s.maxRetries {
			return err
		}
	}
}

func (s *Store) Seats() repository.SeatRepository         { return &SeatRepo{pool: s.pool} }
func (s *Store) Schedules() repository.ScheduleRepository { return &ScheduleRepo{pool: s.pool} }
func (s *Store) Tickets() repository.TicketRepository     { return &TicketRepo{pool: s.pool} }
func (s *Store) Payments() repository.PaymentRepository   { return &PaymentRepo{pool: s.pool} }
func (s *Store) Catalog() repository.CatalogRepository    { return &CatalogRepo{pool: s.pool} }

type txRepos struct {
	pool DB
	db   DB
}

func (r *txRepos) Seats() repository.SeatRepository {
	return (&SeatRepo{pool: r.pool}).With(r.db)
}

func (r *txRepos) Schedules() repository.ScheduleRepository {
	return (&ScheduleRepo{pool: r.pool}).With(r.db)
}

func (r *txRepos) Tickets() repository.TicketRepository {
	return (&TicketRepo{pool: r.pool}).With(r.db)
}

func (r *txRepos) Payments() repository.PaymentRepository {
	return (&PaymentRepo{pool: r.pool}).With(r.db)
}

func (r *txRepos) Catalog() repository.CatalogRepository {
	return (&CatalogRepo{pool: r.pool}).With(r.db)
}

var (
	_ repository.Transactor = (*Store)(nil)
	_ repository.Repos      = (*Store)(nil)
)
