package account

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// MailUserRepository stores the rows the mail server authenticates against.
// The password entry carries the scheme prefix Dovecot expects.
type MailUserRepository interface {
	Upsert(ctx context.Context, email, passwordEntry string) error
	Lookup(ctx context.Context, email string) (string, error)
}

// PostgresMailUsers implements MailUserRepository against the mail user table.
type PostgresMailUsers struct {
	db *pgxpool.Pool
}

// NewPostgresMailUsers builds a Postgres-backed mail user repository.
func NewPostgresMailUsers(db *pgxpool.Pool) *PostgresMailUsers {
	return &PostgresMailUsers{db: db}
}

// Upsert writes or replaces the mail user's password entry.
func (r *PostgresMailUsers) Upsert(ctx context.Context, email, passwordEntry string) error {
	_, err := r.db.Exec(ctx, `INSERT INTO mail_users (email, password) VALUES ($1, $2)
        ON CONFLICT (email) DO UPDATE SET password = EXCLUDED.password`, email, passwordEntry)
	return err
}

// Lookup returns the stored password entry for the mailbox.
func (r *PostgresMailUsers) Lookup(ctx context.Context, email string) (string, error) {
	var entry string
	if err := r.db.QueryRow(ctx, `SELECT password FROM mail_users WHERE email = $1`, email).Scan(&entry); err != nil {
		return "", ErrNotFound
	}
	return entry, nil
}

type memoryMailUsers struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewMemoryMailUsers builds an in-memory mail user store for testing.
func NewMemoryMailUsers() MailUserRepository {
	return &memoryMailUsers{entries: make(map[string]string)}
}

func (r *memoryMailUsers) Upsert(_ context.Context, email, passwordEntry string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[email] = passwordEntry
	return nil
}

func (r *memoryMailUsers) Lookup(_ context.Context, email string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[email]
	if !ok {
		return "", ErrNotFound
	}
	return entry, nil
}
