// Package memstore keeps ledger state in process memory. It is the default
// store when no database path is configured, and the reference store in tests.
package memstore

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/Seednode/bankbox/ledger"
)

type transferEntry struct {
	transfer ledger.Transfer
	seq      uint64
}

type Store struct {
	mu sync.RWMutex

	sessions  map[string]ledger.Session
	accounts  map[string]ledger.Account
	transfers map[string]transferEntry
	seq       uint64
}

var _ ledger.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		sessions:  make(map[string]ledger.Session),
		accounts:  make(map[string]ledger.Account),
		transfers: make(map[string]transferEntry),
	}
}

func (s *Store) GetSession(ctx context.Context, id string) (ledger.Session, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Session{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return ledger.Session{}, ledger.ErrSessionNotFound
	}
	return session, nil
}

func (s *Store) ListSessions(ctx context.Context, status ledger.Status) ([]ledger.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ledger.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		if session.Status == status {
			out = append(out, session)
		}
	}
	slices.SortFunc(out, func(a, b ledger.Session) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	return out, nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (ledger.Account, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Account{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[id]
	if !ok {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}
	return account, nil
}

func (s *Store) ListAccounts(ctx context.Context, sessionID string) ([]ledger.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ledger.Account, 0)
	for _, account := range s.accounts {
		if account.SessionID == sessionID {
			out = append(out, account)
		}
	}
	slices.SortFunc(out, compareAccounts)

	return out, nil
}

func compareAccounts(a, b ledger.Account) int {
	if a.IsBank() != b.IsBank() {
		if a.IsBank() {
			return -1
		}
		return 1
	}
	if c := cmp.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func (s *Store) GetTransfer(ctx context.Context, id string) (ledger.Transfer, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Transfer{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.transfers[id]
	if !ok {
		return ledger.Transfer{}, ledger.ErrTransferNotFound
	}
	return entry.transfer, nil
}

func (s *Store) ListTransfers(ctx context.Context, sessionID string) ([]ledger.Transfer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]transferEntry, 0)
	for _, entry := range s.transfers {
		if entry.transfer.SessionID == sessionID {
			entries = append(entries, entry)
		}
	}
	slices.SortFunc(entries, func(a, b transferEntry) int {
		if c := b.transfer.CreatedAt.Compare(a.transfer.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.seq, a.seq)
	})

	out := make([]ledger.Transfer, len(entries))
	for i, entry := range entries {
		out[i] = entry.transfer
	}
	return out, nil
}

// Atomic holds the write lock for the whole callback, so transactions are
// serialized. Writes are staged and applied only if fn succeeds.
func (s *Store) Atomic(ctx context.Context, fn func(tx ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		store:     s,
		sessions:  make(map[string]ledger.Session),
		accounts:  make(map[string]ledger.Account),
		transfers: make(map[string]ledger.Transfer),
		deleted:   make(map[string]bool),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tx.commit()
	return nil
}

func (s *Store) Close() error {
	return nil
}

type memTx struct {
	store *Store

	sessions  map[string]ledger.Session
	accounts  map[string]ledger.Account
	transfers map[string]ledger.Transfer
	deleted   map[string]bool
	inserted  []string
}

func (t *memTx) GetSession(ctx context.Context, id string) (ledger.Session, error) {
	if session, ok := t.sessions[id]; ok {
		return session, nil
	}
	session, ok := t.store.sessions[id]
	if !ok {
		return ledger.Session{}, ledger.ErrSessionNotFound
	}
	return session, nil
}

func (t *memTx) PutSession(ctx context.Context, session ledger.Session) error {
	t.sessions[session.ID] = session
	return nil
}

func (t *memTx) GetAccount(ctx context.Context, id string) (ledger.Account, error) {
	if account, ok := t.accounts[id]; ok {
		return account, nil
	}
	account, ok := t.store.accounts[id]
	if !ok {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}
	return account, nil
}

func (t *memTx) FindBank(ctx context.Context, sessionID string) (ledger.Account, bool, error) {
	for _, account := range t.accounts {
		if account.SessionID == sessionID && account.IsBank() {
			return account, true, nil
		}
	}
	for _, account := range t.store.accounts {
		if account.SessionID == sessionID && account.IsBank() {
			return account, true, nil
		}
	}
	return ledger.Account{}, false, nil
}

func (t *memTx) PutAccount(ctx context.Context, account ledger.Account) error {
	if account.IsBank() {
		bank, ok, _ := t.FindBank(ctx, account.SessionID)
		if ok && bank.ID != account.ID {
			return ledger.ErrDuplicateBank
		}
	}
	t.accounts[account.ID] = account
	return nil
}

func (t *memTx) GetTransfer(ctx context.Context, id string) (ledger.Transfer, error) {
	if t.deleted[id] {
		return ledger.Transfer{}, ledger.ErrTransferNotFound
	}
	if transfer, ok := t.transfers[id]; ok {
		return transfer, nil
	}
	entry, ok := t.store.transfers[id]
	if !ok {
		return ledger.Transfer{}, ledger.ErrTransferNotFound
	}
	return entry.transfer, nil
}

func (t *memTx) PutTransfer(ctx context.Context, transfer ledger.Transfer) error {
	delete(t.deleted, transfer.ID)
	if _, ok := t.transfers[transfer.ID]; !ok {
		if _, ok := t.store.transfers[transfer.ID]; !ok {
			t.inserted = append(t.inserted, transfer.ID)
		}
	}
	t.transfers[transfer.ID] = transfer
	return nil
}

func (t *memTx) DeleteTransfer(ctx context.Context, id string) error {
	if _, err := t.GetTransfer(ctx, id); err != nil {
		return err
	}
	delete(t.transfers, id)
	t.deleted[id] = true
	return nil
}

func (t *memTx) commit() {
	s := t.store

	for id, session := range t.sessions {
		s.sessions[id] = session
	}
	for id, account := range t.accounts {
		s.accounts[id] = account
	}
	for id := range t.deleted {
		delete(s.transfers, id)
	}

	inserted := make(map[string]uint64, len(t.inserted))
	for _, id := range t.inserted {
		s.seq++
		inserted[id] = s.seq
	}
	for id, transfer := range t.transfers {
		seq, ok := inserted[id]
		if !ok {
			seq = s.transfers[id].seq
		}
		s.transfers[id] = transferEntry{transfer: transfer, seq: seq}
	}
}
