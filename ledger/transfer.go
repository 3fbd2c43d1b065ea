/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

const maxAmendAttempts = 3

// errPartiesMoved means a transfer's accounts changed between choosing
// which locks to take and taking them.
var errPartiesMoved = errors.New("transfer parties changed")

type TransferInput struct {
	SessionID     string
	FromAccountID string
	ToAccountID   string
	Amount        decimal.Decimal
}

// Transfer moves Amount between two accounts of one session. Either every
// write commits or none does.
func (s *Service) Transfer(ctx context.Context, in TransferInput) (TransferResult, error) {
	if !in.Amount.IsPositive() || !MoneyInRange(in.Amount) {
		return TransferResult{}, ErrInvalidAmount
	}
	if in.FromAccountID == in.ToAccountID {
		return TransferResult{}, ErrSameAccount
	}

	release := s.locks.acquire(accountKey(in.FromAccountID), accountKey(in.ToAccountID))
	defer release()

	var result TransferResult
	err := s.store.Atomic(ctx, func(tx Tx) error {
		from, err := sessionAccount(ctx, tx, in.SessionID, in.FromAccountID)
		if err != nil {
			return err
		}
		to, err := sessionAccount(ctx, tx, in.SessionID, in.ToAccountID)
		if err != nil {
			return err
		}

		if err := requireActive(ctx, tx, in.SessionID); err != nil {
			return err
		}

		if from.Balance, err = from.Balance.Debit(in.Amount); err != nil {
			return err
		}
		to.Balance = to.Balance.Credit(in.Amount)

		now := s.now()
		t := Transfer{
			ID:            s.newID(),
			SessionID:     in.SessionID,
			FromAccountID: from.ID,
			ToAccountID:   to.ID,
			Amount:        in.Amount,
			CreatedAt:     now,
			UpdatedAt:     now,
		}

		if err := putBalances(ctx, tx, from, to); err != nil {
			return err
		}
		if err := tx.PutTransfer(ctx, t); err != nil {
			return err
		}

		result = TransferResult{Transfer: t, From: from, To: to}
		return nil
	})
	if err != nil {
		return TransferResult{}, fmt.Errorf("transfer: %w", err)
	}

	s.notifier.Publish(Event{Type: EventTransferApplied, SessionID: in.SessionID, Data: result})

	return result, nil
}

// TransferPatch lists the fields of a recorded transfer to change; nil
// fields keep their current value.
type TransferPatch struct {
	FromAccountID *string
	ToAccountID   *string
	Amount        *decimal.Decimal
}

func (p TransferPatch) apply(t Transfer) Transfer {
	if p.FromAccountID != nil {
		t.FromAccountID = *p.FromAccountID
	}
	if p.ToAccountID != nil {
		t.ToAccountID = *p.ToAccountID
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	return t
}

// UpdateTransfer reverses a recorded transfer and re-applies it with the
// patched fields against current balances.
func (s *Service) UpdateTransfer(ctx context.Context, id string, patch TransferPatch) (Adjustment, error) {
	if patch.Amount != nil && (!patch.Amount.IsPositive() || !MoneyInRange(*patch.Amount)) {
		return Adjustment{}, ErrInvalidAmount
	}
	return s.amend(ctx, id, &patch)
}

// DeleteTransfer reverses a recorded transfer and removes it from the log.
func (s *Service) DeleteTransfer(ctx context.Context, id string) (Adjustment, error) {
	return s.amend(ctx, id, nil)
}

func (s *Service) amend(ctx context.Context, id string, patch *TransferPatch) (Adjustment, error) {
	for range maxAmendAttempts {
		orig, err := s.store.GetTransfer(ctx, id)
		if err != nil {
			return Adjustment{}, fmt.Errorf("amend transfer: %w", err)
		}

		keys := []string{accountKey(orig.FromAccountID), accountKey(orig.ToAccountID)}
		if patch != nil {
			next := patch.apply(orig)
			if next.FromAccountID == next.ToAccountID {
				return Adjustment{}, ErrSameAccount
			}
			keys = append(keys, accountKey(next.FromAccountID), accountKey(next.ToAccountID))
		}

		adj, err := s.amendLocked(ctx, orig, patch, keys)
		if errors.Is(err, errPartiesMoved) {
			continue
		}
		if err != nil {
			return Adjustment{}, fmt.Errorf("amend transfer: %w", err)
		}
		return adj, nil
	}

	return Adjustment{}, ErrConcurrentUpdate
}

func (s *Service) amendLocked(ctx context.Context, orig Transfer, patch *TransferPatch, keys []string) (Adjustment, error) {
	release := s.locks.acquire(keys...)
	defer release()

	var adj Adjustment
	err := s.store.Atomic(ctx, func(tx Tx) error {
		cur, err := tx.GetTransfer(ctx, orig.ID)
		if err != nil {
			return err
		}
		if cur.FromAccountID != orig.FromAccountID || cur.ToAccountID != orig.ToAccountID {
			return errPartiesMoved
		}

		if err := requireActive(ctx, tx, cur.SessionID); err != nil {
			return err
		}

		ws := newWorkset(tx, cur.SessionID)

		// Undo first; a recipient may dip below zero here as long as the
		// final balances are all non-negative.
		undoFrom, err := ws.load(ctx, cur.FromAccountID)
		if err != nil {
			return err
		}
		undoTo, err := ws.load(ctx, cur.ToAccountID)
		if err != nil {
			return err
		}
		undoFrom.Balance = undoFrom.Balance.adjust(cur.Amount)
		undoTo.Balance = undoTo.Balance.adjust(cur.Amount.Neg())

		if patch == nil {
			if err := tx.DeleteTransfer(ctx, cur.ID); err != nil {
				return err
			}
			adj = Adjustment{Transfer: cur, Deleted: true}
		} else {
			next := patch.apply(cur)
			if next.FromAccountID == next.ToAccountID {
				return ErrSameAccount
			}

			from, err := ws.load(ctx, next.FromAccountID)
			if err != nil {
				return err
			}
			to, err := ws.load(ctx, next.ToAccountID)
			if err != nil {
				return err
			}
			if from.Balance, err = from.Balance.Debit(next.Amount); err != nil {
				return err
			}
			to.Balance = to.Balance.Credit(next.Amount)

			next.UpdatedAt = s.now()
			if err := tx.PutTransfer(ctx, next); err != nil {
				return err
			}
			adj = Adjustment{Transfer: next}
		}

		accounts, err := ws.commit(ctx)
		if err != nil {
			return err
		}
		adj.Accounts = accounts
		return nil
	})
	if err != nil {
		return Adjustment{}, err
	}

	ev := EventTransferUpdated
	if adj.Deleted {
		ev = EventTransferDeleted
	}
	s.notifier.Publish(Event{Type: ev, SessionID: adj.Transfer.SessionID, Data: adj})

	return adj, nil
}

// sessionAccount loads an account and hides it if it belongs to another
// session.
func sessionAccount(ctx context.Context, tx Tx, sessionID, accountID string) (Account, error) {
	a, err := tx.GetAccount(ctx, accountID)
	if err != nil {
		return Account{}, err
	}
	if a.SessionID != sessionID {
		return Account{}, ErrAccountNotFound
	}
	return a, nil
}

func requireActive(ctx context.Context, tx Tx, sessionID string) error {
	session, err := tx.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if !session.Active() {
		return ErrSessionEnded
	}
	return nil
}

// putBalances writes back accounts whose balance can change; the bank's
// never does.
func putBalances(ctx context.Context, tx Tx, accounts ...Account) error {
	for _, a := range accounts {
		if a.Balance.IsUnlimited() {
			continue
		}
		if err := tx.PutAccount(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// workset tracks the accounts an amendment touches so an account that is
// both an old and a new party is read once and written once.
type workset struct {
	tx        Tx
	sessionID string
	order     []string
	accounts  map[string]*Account
}

func newWorkset(tx Tx, sessionID string) *workset {
	return &workset{
		tx:        tx,
		sessionID: sessionID,
		accounts:  make(map[string]*Account),
	}
}

func (w *workset) load(ctx context.Context, id string) (*Account, error) {
	if a, ok := w.accounts[id]; ok {
		return a, nil
	}

	a, err := sessionAccount(ctx, w.tx, w.sessionID, id)
	if err != nil {
		return nil, err
	}
	w.accounts[id] = &a
	w.order = append(w.order, id)

	return &a, nil
}

func (w *workset) commit(ctx context.Context) ([]Account, error) {
	out := make([]Account, 0, len(w.order))
	for _, id := range w.order {
		a := *w.accounts[id]
		if a.Balance.negative() {
			return nil, ErrInsufficientFunds
		}
		out = append(out, a)
	}

	if err := putBalances(ctx, w.tx, out...); err != nil {
		return nil, err
	}
	return out, nil
}

// adjust adds a signed delta without the non-negative check.
func (b Balance) adjust(delta decimal.Decimal) Balance {
	if b.unlimited {
		return b
	}
	return Finite(b.amount.Add(delta))
}

func (b Balance) negative() bool {
	return !b.unlimited && b.amount.IsNegative()
}
