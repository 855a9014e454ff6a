package credit

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLedger persists credit postings in PostgreSQL ensuring double-entry
// balance. Each grant or spend is one posting row plus two entry rows whose
// amounts sum to zero.
type PostgresLedger struct {
	db *pgxpool.Pool
}

// NewPostgresLedger constructs a Postgres-backed credit ledger.
func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// EnsureAccount guarantees a credit account exists for the provided code.
func (l *PostgresLedger) EnsureAccount(ctx context.Context, code string) error {
	_, err := l.db.Exec(ctx, `INSERT INTO credit_accounts (id, code) VALUES ($1, $2)
        ON CONFLICT (code) DO NOTHING`, uuid.New(), code)
	return err
}

// Balance returns the summed balance for the specified account code.
func (l *PostgresLedger) Balance(ctx context.Context, code string) (int64, error) {
	const query = `
        SELECT COALESCE(SUM(e.amount), 0)
        FROM credit_entries e
        INNER JOIN credit_accounts a ON a.id = e.account_id
        WHERE a.code = $1`
	var balance int64
	if err := l.db.QueryRow(ctx, query, code).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("account %s not found", code)
		}
		return 0, err
	}
	return balance, nil
}

// Grant posts credits from the treasury to the account, keyed by reference.
func (l *PostgresLedger) Grant(ctx context.Context, accountCode, reference string, amount int64) (PostingResult, error) {
	return l.post(ctx, kindGrant, TreasuryAccountCode, accountCode, reference, amount, false)
}

// Spend posts credits from the account to revenue, keyed by reference.
func (l *PostgresLedger) Spend(ctx context.Context, accountCode, reference string, amount int64) (PostingResult, error) {
	return l.post(ctx, kindSpend, accountCode, RevenueAccountCode, reference, amount, true)
}

func (l *PostgresLedger) post(ctx context.Context, kind, fromCode, toCode, reference string, amount int64, checkFunds bool) (PostingResult, error) {
	if amount <= 0 {
		return PostingResult{}, fmt.Errorf("amount must be positive")
	}

	// The user-facing account whose balance the result reports.
	resultCode := toCode
	if kind == kindSpend {
		resultCode = fromCode
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return PostingResult{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	fromAccountID, err := accountIDForCode(ctx, tx, fromCode)
	if err != nil {
		return PostingResult{}, err
	}
	toAccountID, err := accountIDForCode(ctx, tx, toCode)
	if err != nil {
		return PostingResult{}, err
	}

	resultAccountID := toAccountID
	if kind == kindSpend {
		resultAccountID = fromAccountID
	}

	const existingQuery = `SELECT id FROM credit_postings WHERE reference = $1 AND kind = $2`
	var existingID uuid.UUID
	if err := tx.QueryRow(ctx, existingQuery, reference, kind).Scan(&existingID); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return PostingResult{}, err
		}
	} else {
		balance, balErr := balanceForAccount(ctx, tx, resultAccountID)
		if balErr != nil {
			return PostingResult{}, balErr
		}
		return PostingResult{PostingID: existingID.String(), Balance: balance}, ErrDuplicateGrant
	}

	if checkFunds {
		balance, err := balanceForAccount(ctx, tx, fromAccountID)
		if err != nil {
			return PostingResult{}, err
		}
		if balance < amount {
			return PostingResult{}, ErrInsufficientCredits
		}
	}

	postingID := uuid.New()
	if _, err := tx.Exec(ctx, `INSERT INTO credit_postings (id, reference, kind) VALUES ($1, $2, $3)`, postingID, reference, kind); err != nil {
		return PostingResult{}, err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO credit_entries (id, posting_id, account_id, amount) VALUES ($1, $2, $3, $4)`, uuid.New(), postingID, fromAccountID, -amount); err != nil {
		return PostingResult{}, err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO credit_entries (id, posting_id, account_id, amount) VALUES ($1, $2, $3, $4)`, uuid.New(), postingID, toAccountID, amount); err != nil {
		return PostingResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return PostingResult{}, err
	}

	balance, err := l.Balance(ctx, resultCode)
	if err != nil {
		return PostingResult{}, err
	}
	return PostingResult{PostingID: postingID.String(), Balance: balance}, nil
}

func accountIDForCode(ctx context.Context, tx pgx.Tx, code string) (uuid.UUID, error) {
	const query = `SELECT id FROM credit_accounts WHERE code = $1 FOR UPDATE`
	var id uuid.UUID
	if err := tx.QueryRow(ctx, query, code).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, fmt.Errorf("account %s not found", code)
		}
		return uuid.Nil, err
	}
	return id, nil
}

func balanceForAccount(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (int64, error) {
	const query = `SELECT COALESCE(SUM(amount), 0) FROM credit_entries WHERE account_id = $1`
	var balance int64
	if err := tx.QueryRow(ctx, query, accountID).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return balance, nil
}
