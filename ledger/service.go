/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package ledger keeps the balances of every game consistent: it creates and
// ends sessions, admits participants, and applies transfers atomically,
// publishing each committed change to a Notifier.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultStartingBalance is given to new players when a session does not
// set its own.
var DefaultStartingBalance = decimal.NewFromInt(1500)

type Service struct {
	store    Store
	notifier Notifier
	locks    *lockTable

	startingBalance decimal.Decimal
	now             func() time.Time
	newID           func() string
}

type Option func(*Service)

func WithStartingBalance(d decimal.Decimal) Option {
	return func(s *Service) {
		s.startingBalance = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		s.newID = newID
	}
}

func NewService(store Store, notifier Notifier, opts ...Option) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}

	s := &Service{
		store:           store,
		notifier:        notifier,
		locks:           newLockTable(),
		startingBalance: DefaultStartingBalance,
		now: func() time.Time {
			return time.Now().UTC().Truncate(time.Millisecond)
		},
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

type CreateSessionInput struct {
	Name string
	// StartingBalance overrides the server default when set.
	StartingBalance *decimal.Decimal
}

func (s *Service) CreateSession(ctx context.Context, in CreateSessionInput) (Session, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Session{}, ErrInvalidName
	}

	starting := s.startingBalance
	if in.StartingBalance != nil {
		starting = *in.StartingBalance
	}
	if starting.IsNegative() || !MoneyInRange(starting) {
		return Session{}, ErrInvalidStartingBalance
	}

	session := Session{
		ID:              s.newID(),
		Name:            name,
		StartingBalance: starting,
		Status:          StatusActive,
		CreatedAt:       s.now(),
	}

	err := s.store.Atomic(ctx, func(tx Tx) error {
		return tx.PutSession(ctx, session)
	})
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}

	s.notifier.Publish(Event{Type: EventSessionCreated, SessionID: session.ID, Data: session})

	return session, nil
}

type JoinSessionInput struct {
	SessionID string
	Name      string
	Role      Role
}

func (s *Service) JoinSession(ctx context.Context, in JoinSessionInput) (Account, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Account{}, ErrInvalidName
	}
	if in.Role != RoleBank && in.Role != RolePlayer {
		return Account{}, ErrInvalidRole
	}

	release := s.locks.acquire(sessionKey(in.SessionID))
	defer release()

	var account Account
	err := s.store.Atomic(ctx, func(tx Tx) error {
		session, err := tx.GetSession(ctx, in.SessionID)
		if err != nil {
			return err
		}
		if !session.Active() {
			return ErrSessionEnded
		}

		balance := Finite(session.StartingBalance)
		if in.Role == RoleBank {
			_, exists, err := tx.FindBank(ctx, session.ID)
			if err != nil {
				return err
			}
			if exists {
				return ErrDuplicateBank
			}
			balance = Unlimited()
		}

		account = Account{
			ID:        s.newID(),
			SessionID: session.ID,
			Name:      name,
			Role:      in.Role,
			Balance:   balance,
			CreatedAt: s.now(),
		}

		return tx.PutAccount(ctx, account)
	})
	if err != nil {
		return Account{}, fmt.Errorf("join session: %w", err)
	}

	s.notifier.Publish(Event{Type: EventParticipantJoined, SessionID: account.SessionID, Data: account})

	return account, nil
}

// EndSession moves the requesting bank's session to ended. Ending an ended
// session returns it unchanged and publishes nothing.
func (s *Service) EndSession(ctx context.Context, requestingAccountID string) (Session, error) {
	account, err := s.store.GetAccount(ctx, requestingAccountID)
	if err != nil {
		return Session{}, fmt.Errorf("end session: %w", err)
	}
	if !account.IsBank() {
		return Session{}, ErrNotAuthorized
	}

	release := s.locks.acquire(sessionKey(account.SessionID))
	defer release()

	var (
		session Session
		changed bool
	)
	err = s.store.Atomic(ctx, func(tx Tx) error {
		var err error
		session, err = tx.GetSession(ctx, account.SessionID)
		if err != nil {
			return err
		}
		if session.Status == StatusEnded {
			return nil
		}

		session.Status = StatusEnded
		changed = true

		return tx.PutSession(ctx, session)
	})
	if err != nil {
		return Session{}, fmt.Errorf("end session: %w", err)
	}

	if changed {
		s.notifier.Publish(Event{Type: EventSessionEnded, SessionID: session.ID, Data: session})
	}

	return session, nil
}

func (s *Service) Session(ctx context.Context, id string) (Session, error) {
	session, err := s.store.GetSession(ctx, id)
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

func (s *Service) Sessions(ctx context.Context, status Status) ([]Session, error) {
	sessions, err := s.store.ListSessions(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

func (s *Service) Account(ctx context.Context, id string) (Account, error) {
	account, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return Account{}, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}

func (s *Service) Accounts(ctx context.Context, sessionID string) ([]Account, error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	accounts, err := s.store.ListAccounts(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

func (s *Service) GetTransfer(ctx context.Context, id string) (Transfer, error) {
	t, err := s.store.GetTransfer(ctx, id)
	if err != nil {
		return Transfer{}, fmt.Errorf("get transfer: %w", err)
	}
	return t, nil
}

func (s *Service) Transfers(ctx context.Context, sessionID string) ([]Transfer, error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}

	transfers, err := s.store.ListTransfers(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	return transfers, nil
}

// State returns everything a client needs to rebuild its view of a session.
func (s *Service) State(ctx context.Context, sessionID string) (SessionState, error) {
	session, err := s.Session(ctx, sessionID)
	if err != nil {
		return SessionState{}, err
	}

	accounts, err := s.store.ListAccounts(ctx, sessionID)
	if err != nil {
		return SessionState{}, fmt.Errorf("list accounts: %w", err)
	}

	transfers, err := s.store.ListTransfers(ctx, sessionID)
	if err != nil {
		return SessionState{}, fmt.Errorf("list transfers: %w", err)
	}

	return SessionState{
		Session:   session,
		Accounts:  accounts,
		Transfers: transfers,
	}, nil
}
