package payment

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keykeeper/keykeeper/internal/chain"
)

// PostgresRepository implements Repository using PostgreSQL. Required amounts
// are stored as decimal text so wei-scale values survive round trips intact.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed payment repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new pending payment.
func (r *PostgresRepository) Create(ctx context.Context, p Payment) error {
	token, err := uuid.Parse(p.Token)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO payments
        (token, account_id, chain, symbol, address, required_amount, required_confirmations, credits, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		token, p.AccountID, string(p.Chain), p.Symbol, p.Address,
		p.RequiredAmount.String(), p.RequiredConfirmations, p.Credits, string(p.Status), p.CreatedAt.UTC())
	return err
}

// Get fetches a payment by token.
func (r *PostgresRepository) Get(ctx context.Context, token string) (Payment, error) {
	id, err := uuid.Parse(token)
	if err != nil {
		return Payment{}, ErrNotFound
	}

	row := r.db.QueryRow(ctx, `SELECT token, account_id, chain, symbol, address, required_amount,
        required_confirmations, credits, status, created_at, confirmed_at, claimed_at
        FROM payments WHERE token = $1`, id)

	var (
		tokenID     uuid.UUID
		kind        string
		amount      string
		status      string
		createdAt   time.Time
		confirmedAt *time.Time
		claimedAt   *time.Time
		p           Payment
	)
	if err := row.Scan(&tokenID, &p.AccountID, &kind, &p.Symbol, &p.Address, &amount,
		&p.RequiredConfirmations, &p.Credits, &status, &createdAt, &confirmedAt, &claimedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, ErrNotFound
		}
		return Payment{}, err
	}

	required, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return Payment{}, fmt.Errorf("corrupt required_amount %q for payment %s", amount, token)
	}

	p.Token = tokenID.String()
	p.Chain = chain.Kind(kind)
	p.RequiredAmount = required
	p.Status = Status(status)
	p.CreatedAt = createdAt.UTC()
	p.ConfirmedAt = confirmedAt
	p.ClaimedAt = claimedAt
	return p, nil
}

// MarkConfirmed promotes a pending payment to confirmed.
func (r *PostgresRepository) MarkConfirmed(ctx context.Context, token string) error {
	id, err := uuid.Parse(token)
	if err != nil {
		return ErrNotFound
	}
	cmd, err := r.db.Exec(ctx, `UPDATE payments SET status = $1, confirmed_at = NOW()
        WHERE token = $2 AND status = $3`, string(StatusConfirmed), id, string(StatusPending))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 1 {
		return nil
	}

	// Zero rows: either the payment is unknown or already past pending.
	current, err := r.Get(ctx, token)
	if err != nil {
		return err
	}
	if current.Status == StatusPending {
		return fmt.Errorf("payment %s stuck pending", token)
	}
	return nil
}

// MarkClaimed transitions confirmed -> claimed; the conditional update is the
// claim-at-most-once guard.
func (r *PostgresRepository) MarkClaimed(ctx context.Context, token string) error {
	id, err := uuid.Parse(token)
	if err != nil {
		return ErrNotFound
	}
	cmd, err := r.db.Exec(ctx, `UPDATE payments SET status = $1, claimed_at = NOW()
        WHERE token = $2 AND status = $3`, string(StatusClaimed), id, string(StatusConfirmed))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 1 {
		return nil
	}

	current, err := r.Get(ctx, token)
	if err != nil {
		return err
	}
	switch current.Status {
	case StatusClaimed:
		return ErrAlreadyClaimed
	case StatusPending:
		return ErrNotConfirmed
	default:
		return fmt.Errorf("payment %s in unexpected status %s", token, current.Status)
	}
}
