// Package sqlite provides a SQLite-backed ledger store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/Seednode/bankbox/ledger"
	"github.com/Seednode/bankbox/ledger/sqlite/migrations"
	"github.com/shopspring/decimal"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists ledger state in SQLite.
type Store struct {
	db *sql.DB
}

var _ ledger.Store = (*Store)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens (or creates) the database at path and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	// One writer at a time; transactions queue here rather than fail busy.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

const (
	sessionColumns  = `id, name, starting_balance, status, created_at`
	accountColumns  = `id, session_id, name, role, balance, created_at`
	transferColumns = `id, session_id, from_account_id, to_account_id, amount, created_at, updated_at`
)

func scanSession(row scanner) (ledger.Session, error) {
	var (
		session   ledger.Session
		starting  string
		status    string
		createdAt int64
	)
	if err := row.Scan(&session.ID, &session.Name, &starting, &status, &createdAt); err != nil {
		return ledger.Session{}, err
	}

	var err error
	if session.StartingBalance, err = decimal.NewFromString(starting); err != nil {
		return ledger.Session{}, fmt.Errorf("session %s starting balance: %w", session.ID, err)
	}
	if session.Status, err = ledger.ParseStatus(status); err != nil {
		return ledger.Session{}, fmt.Errorf("session %s: %w", session.ID, err)
	}
	session.CreatedAt = fromMillis(createdAt)

	return session, nil
}

func scanAccount(row scanner) (ledger.Account, error) {
	var (
		account   ledger.Account
		role      string
		balance   sql.NullString
		createdAt int64
	)
	if err := row.Scan(&account.ID, &account.SessionID, &account.Name, &role, &balance, &createdAt); err != nil {
		return ledger.Account{}, err
	}

	var err error
	if account.Role, err = ledger.ParseRole(role); err != nil {
		return ledger.Account{}, fmt.Errorf("account %s role %q: %w", account.ID, role, err)
	}

	if account.IsBank() {
		account.Balance = ledger.Unlimited()
	} else {
		amount, err := decimal.NewFromString(balance.String)
		if err != nil {
			return ledger.Account{}, fmt.Errorf("account %s balance: %w", account.ID, err)
		}
		account.Balance = ledger.Finite(amount)
	}
	account.CreatedAt = fromMillis(createdAt)

	return account, nil
}

func scanTransfer(row scanner) (ledger.Transfer, error) {
	var (
		t         ledger.Transfer
		amount    string
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&t.ID, &t.SessionID, &t.FromAccountID, &t.ToAccountID, &amount, &createdAt, &updatedAt); err != nil {
		return ledger.Transfer{}, err
	}

	var err error
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return ledger.Transfer{}, fmt.Errorf("transfer %s amount: %w", t.ID, err)
	}
	t.CreatedAt = fromMillis(createdAt)
	t.UpdatedAt = fromMillis(updatedAt)

	return t, nil
}

func getSession(ctx context.Context, q queryer, id string) (ledger.Session, error) {
	row := q.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Session{}, ledger.ErrSessionNotFound
	}
	if err != nil {
		return ledger.Session{}, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

func getAccount(ctx context.Context, q queryer, id string) (ledger.Account, error) {
	row := q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}
	if err != nil {
		return ledger.Account{}, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}

func getTransfer(ctx context.Context, q queryer, id string) (ledger.Transfer, error) {
	row := q.QueryRowContext(ctx, `SELECT `+transferColumns+` FROM transfers WHERE id = ?`, id)
	t, err := scanTransfer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Transfer{}, ledger.ErrTransferNotFound
	}
	if err != nil {
		return ledger.Transfer{}, fmt.Errorf("get transfer: %w", err)
	}
	return t, nil
}

func (s *Store) GetSession(ctx context.Context, id string) (ledger.Session, error) {
	return getSession(ctx, s.db, id)
}

func (s *Store) ListSessions(ctx context.Context, status ledger.Status) ([]ledger.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+`
		   FROM sessions
		  WHERE status = ?
		  ORDER BY created_at DESC, id ASC`,
		status.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	out := make([]ledger.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		out = append(out, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	return out, nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (ledger.Account, error) {
	return getAccount(ctx, s.db, id)
}

func (s *Store) ListAccounts(ctx context.Context, sessionID string) ([]ledger.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+accountColumns+`
		   FROM accounts
		  WHERE session_id = ?
		  ORDER BY role = 'bank' DESC, name ASC, created_at ASC, id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	out := make([]ledger.Account, 0)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("list accounts: %w", err)
		}
		out = append(out, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	return out, nil
}

func (s *Store) GetTransfer(ctx context.Context, id string) (ledger.Transfer, error) {
	return getTransfer(ctx, s.db, id)
}

func (s *Store) ListTransfers(ctx context.Context, sessionID string) ([]ledger.Transfer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+transferColumns+`
		   FROM transfers
		  WHERE session_id = ?
		  ORDER BY created_at DESC, rowid DESC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	defer rows.Close()

	out := make([]ledger.Transfer, 0)
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("list transfers: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}

	return out, nil
}

func (s *Store) Atomic(ctx context.Context, fn func(tx ledger.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(&tx{tx: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type tx struct {
	tx *sql.Tx
}

func (t *tx) GetSession(ctx context.Context, id string) (ledger.Session, error) {
	return getSession(ctx, t.tx, id)
}

func (t *tx) PutSession(ctx context.Context, session ledger.Session) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   name = excluded.name,
		   starting_balance = excluded.starting_balance,
		   status = excluded.status`,
		session.ID,
		session.Name,
		session.StartingBalance.String(),
		session.Status.String(),
		toMillis(session.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	return nil
}

func (t *tx) GetAccount(ctx context.Context, id string) (ledger.Account, error) {
	return getAccount(ctx, t.tx, id)
}

func (t *tx) FindBank(ctx context.Context, sessionID string) (ledger.Account, bool, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE session_id = ? AND role = 'bank'`,
		sessionID,
	)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Account{}, false, nil
	}
	if err != nil {
		return ledger.Account{}, false, fmt.Errorf("find bank: %w", err)
	}
	return account, true, nil
}

func (t *tx) PutAccount(ctx context.Context, account ledger.Account) error {
	var balance sql.NullString
	if amount, ok := account.Balance.Amount(); ok {
		balance = sql.NullString{String: amount.String(), Valid: true}
	}

	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO accounts (`+accountColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   name = excluded.name,
		   balance = excluded.balance`,
		account.ID,
		account.SessionID,
		account.Name,
		account.Role.String(),
		balance,
		toMillis(account.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ledger.ErrDuplicateBank
		}
		return fmt.Errorf("put account: %w", err)
	}
	return nil
}

func (t *tx) GetTransfer(ctx context.Context, id string) (ledger.Transfer, error) {
	return getTransfer(ctx, t.tx, id)
}

func (t *tx) PutTransfer(ctx context.Context, transfer ledger.Transfer) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO transfers (`+transferColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   from_account_id = excluded.from_account_id,
		   to_account_id = excluded.to_account_id,
		   amount = excluded.amount,
		   updated_at = excluded.updated_at`,
		transfer.ID,
		transfer.SessionID,
		transfer.FromAccountID,
		transfer.ToAccountID,
		transfer.Amount.String(),
		toMillis(transfer.CreatedAt),
		toMillis(transfer.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put transfer: %w", err)
	}
	return nil
}

func (t *tx) DeleteTransfer(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM transfers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete transfer: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete transfer: %w", err)
	}
	if n == 0 {
		return ledger.ErrTransferNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
