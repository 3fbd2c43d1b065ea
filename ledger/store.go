package ledger

import "context"

// Store persists sessions, accounts and transfers. Implementations hold no
// business rules beyond mapping missing rows to the NotFound errors and a
// second bank in one session to ErrDuplicateBank.
type Store interface {
	GetSession(ctx context.Context, id string) (Session, error)
	// ListSessions returns sessions with the given status, newest first.
	ListSessions(ctx context.Context, status Status) ([]Session, error)
	GetAccount(ctx context.Context, id string) (Account, error)
	// ListAccounts returns the accounts of a session, bank first, then by name.
	ListAccounts(ctx context.Context, sessionID string) ([]Account, error)
	GetTransfer(ctx context.Context, id string) (Transfer, error)
	// ListTransfers returns the transfers of a session, newest first.
	ListTransfers(ctx context.Context, sessionID string) ([]Transfer, error)

	// Atomic runs fn in one transaction. Writes made through tx are visible
	// to later reads through tx and are committed only if fn returns nil.
	Atomic(ctx context.Context, fn func(tx Tx) error) error

	Close() error
}

type Tx interface {
	GetSession(ctx context.Context, id string) (Session, error)
	PutSession(ctx context.Context, s Session) error
	GetAccount(ctx context.Context, id string) (Account, error)
	// FindBank reports the bank account of a session, if one exists.
	FindBank(ctx context.Context, sessionID string) (Account, bool, error)
	PutAccount(ctx context.Context, a Account) error
	GetTransfer(ctx context.Context, id string) (Transfer, error)
	PutTransfer(ctx context.Context, t Transfer) error
	DeleteTransfer(ctx context.Context, id string) error
}
