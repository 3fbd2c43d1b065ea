// Package storetest holds the behaviour every ledger.Store must share.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Seednode/bankbox/ledger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store; it is closed when the test ends.
type Factory func(t *testing.T) ledger.Store

var base = time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)

func Run(t *testing.T, open Factory) {
	t.Run("SessionRoundTrip", func(t *testing.T) { testSessionRoundTrip(t, open) })
	t.Run("ListSessionsByStatus", func(t *testing.T) { testListSessionsByStatus(t, open) })
	t.Run("AccountOrdering", func(t *testing.T) { testAccountOrdering(t, open) })
	t.Run("SingleBank", func(t *testing.T) { testSingleBank(t, open) })
	t.Run("TransferOrdering", func(t *testing.T) { testTransferOrdering(t, open) })
	t.Run("RollbackOnError", func(t *testing.T) { testRollbackOnError(t, open) })
	t.Run("DeleteTransfer", func(t *testing.T) { testDeleteTransfer(t, open) })
	t.Run("NotFound", func(t *testing.T) { testNotFound(t, open) })
}

func newStore(t *testing.T, open Factory) ledger.Store {
	t.Helper()

	s := open(t)
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func put(t *testing.T, s ledger.Store, fn func(ctx context.Context, tx ledger.Tx) error) {
	t.Helper()

	ctx := context.Background()
	require.NoError(t, s.Atomic(ctx, func(tx ledger.Tx) error {
		return fn(ctx, tx)
	}))
}

func session(id string, offset time.Duration) ledger.Session {
	return ledger.Session{
		ID:              id,
		Name:            "Game " + id,
		StartingBalance: decimal.NewFromInt(1500),
		Status:          ledger.StatusActive,
		CreatedAt:       base.Add(offset),
	}
}

func player(id, sessionID, name string, balance int64) ledger.Account {
	return ledger.Account{
		ID:        id,
		SessionID: sessionID,
		Name:      name,
		Role:      ledger.RolePlayer,
		Balance:   ledger.Finite(decimal.NewFromInt(balance)),
		CreatedAt: base,
	}
}

func bank(id, sessionID string) ledger.Account {
	return ledger.Account{
		ID:        id,
		SessionID: sessionID,
		Name:      "Bank",
		Role:      ledger.RoleBank,
		Balance:   ledger.Unlimited(),
		CreatedAt: base,
	}
}

func transfer(id, sessionID, from, to string, amount int64, offset time.Duration) ledger.Transfer {
	return ledger.Transfer{
		ID:            id,
		SessionID:     sessionID,
		FromAccountID: from,
		ToAccountID:   to,
		Amount:        decimal.NewFromInt(amount),
		CreatedAt:     base.Add(offset),
		UpdatedAt:     base.Add(offset),
	}
}

func testSessionRoundTrip(t *testing.T, open Factory) {
	s := newStore(t, open)
	ctx := context.Background()

	want := session("g1", 0)
	want.StartingBalance = decimal.RequireFromString("1250.50")
	put(t, s, func(ctx context.Context, tx ledger.Tx) error {
		return tx.PutSession(ctx, want)
	})

	got, err := s.GetSession(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Name, got.Name)
	assert.True(t, want.StartingBalance.Equal(got.StartingBalance))
	assert.Equal(t, ledger.StatusActive, got.Status)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))

	want.Status = ledger.StatusEnded
	put(t, s, func(ctx context.Context, tx ledger.Tx) error {
		return tx.PutSession(ctx, want)
	})

	got, err = s.GetSession(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusEnded, got.Status)
}

func testListSessionsByStatus(t *testing.T, open Factory) {
	s := newStore(t, open)
	ctx := context.Background()

	ended := session("old", 0)
	ended.Status = ledger.StatusEnded
	put(t, s, func(ctx context.Context, tx ledger.Tx) error {
		for _, sess := range []ledger.Session{session("a", time.Minute), session("b", 2*time.Minute), ended} {
			if err := tx.PutSession(ctx, sess); err != nil {
				return err
			}
		}
		return nil
	})

	active, err := s.ListSessions(ctx, ledger.StatusActive)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "b", active[0].ID)
	assert.Equal(t, "a", active[1].ID)

	done, err := s.ListSessions(ctx, ledger.StatusEnded)
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, "old", done[0].ID)
}

func testAccountOrdering(t *testing.T, open Factory) {
	s := newStore(t, open)
	ctx := context.Background()

	put(t, s, func(ctx context.Context, tx ledger.Tx) error {
		if err := tx.PutSession(ctx, session("g1", 0)); err != nil {
			return err
		}
		if err := tx.PutSession(ctx, session("g2", 0)); err != nil {
			return err
		}
		for _, a := range []ledger.Account{
			player("p1", "g1", "Zed", 10),
			player("p2", "g1", "Alice", 20),
			bank("b1", "g1"),
			player("p3", "g2", "Mallory", 30),
		} {
			if err := tx.PutAccount(ctx, a); err != nil {
				return err
			}
		}
		return nil
	})

	accounts, err := s.ListAccounts(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, accounts, 3)
	assert.Equal(t, []string{"b1", "p2", "p1"}, []string{accounts[0].ID, accounts[1].ID, accounts[2].ID})
	assert.True(t, accounts[0].Balance.IsUnlimited())
	assert.True(t, accounts[1].Balance.Equal(ledger.Finite(decimal.NewFromInt(20))))

	got, err := s.GetAccount(ctx, "p3")
	require.NoError(t, err)
	assert.Equal(t, "g2", got.SessionID)
	assert.Equal(t, ledger.RolePlayer, got.Role)
}

func testSingleBank(t *testing.T, open Factory) {
	s := newStore(t, open)
	ctx := context.Background()

	put(t, s, func(ctx context.Context, tx ledger.Tx) error {
		if err := tx.PutSession(ctx, session("g1", 0)); err != nil {
			return err
		}
		return tx.PutAccount(ctx, bank("b1", "g1"))
	})

	err := s.Atomic(ctx, func(tx ledger.Tx) error {
		found, ok, err := tx.FindBank(ctx, "g1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "b1", found.ID)

		return tx.PutAccount(ctx, bank("b2", "g1"))
	})
	require.ErrorIs(t, err, ledger.ErrDuplicateBank)

	accounts, err := s.ListAccounts(ctx, "g1")
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

func testTransferOrdering(t *testing.T, open Factory) {
	s := newStore(t, open)
	ctx := context.Background()

	put(t, s, func(ctx context.Context, tx ledger.Tx) error {
		if err := tx.PutSession(ctx, session("g1", 0)); err != nil {
			return err
		}
		for _, a := range []ledger.Account{player("p1", "g1", "Alice", 10), player("p2", "g1", "Bob", 10)} {
			if err := tx.PutAccount(ctx, a); err != nil {
				return err
			}
		}
		return nil
	})
	put(t, s, func(ctx context.Context, tx ledger.Tx) error {
		return tx.PutTransfer(ctx, transfer("t1", "g1", "p1", "p2", 1, time.Second))
	})
	put(t, s, func(ctx context.Context, tx ledger.Tx) error {
		return tx.PutTransfer(ctx, transfer("t2", "g1", "p2", "p1", 2, time.Second))
	})
	put(t, s, func(ctx context.Context, tx ledger.Tx) error {
		return tx.PutTransfer(ctx, transfer("t3", "g1", "p1", "p2", 3, 2*time.Second))
	})

	transfers, err := s.ListTransfers(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, transfers, 3)
	assert.Equal(t, []string{"t3", "t2", "t1"}, []string{transfers[0].ID, transfers[1].ID, transfers[2].ID})

	updated := transfers[2]
	updated.Amount = decimal.NewFromInt(7)
	updated.UpdatedAt = base.Add(time.Hour)
	put(t, s, func(ctx context.Context, tx ledger.Tx) error {
		return tx.PutTransfer(ctx, updated)
	})

	got, err := s.GetTransfer(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(7)))
	assert.True(t, got.CreatedAt.Equal(base.Add(time.Second)))
	assert.True(t, got.UpdatedAt.Equal(base.Add(time.Hour)))
}

func testRollbackOnError(t *testing.T, open Factory) {
	s := newStore(t, open)
	ctx := context.Background()

	put(t, s, func(ctx context.Context, tx ledger.Tx) error {
		if err := tx.PutSession(ctx, session("g1", 0)); err != nil {
			return err
		}
		return tx.PutAccount(ctx, player("p1", "g1", "Alice", 100))
	})

	boom := errors.New("boom")
	err := s.Atomic(ctx, func(tx ledger.Tx) error {
		a, err := tx.GetAccount(ctx, "p1")
		if err != nil {
			return err
		}
		a.Balance = ledger.Finite(decimal.NewFromInt(1))
		if err := tx.PutAccount(ctx, a); err != nil {
			return err
		}

		seen, err := tx.GetAccount(ctx, "p1")
		if err != nil {
			return err
		}
		assert.True(t, seen.Balance.Equal(a.Balance), "writes must be visible inside the transaction")

		if err := tx.PutTransfer(ctx, transfer("t1", "g1", "p1", "p1", 99, 0)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetAccount(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(ledger.Finite(decimal.NewFromInt(100))))

	_, err = s.GetTransfer(ctx, "t1")
	require.ErrorIs(t, err, ledger.ErrTransferNotFound)
}

func testDeleteTransfer(t *testing.T, open Factory) {
	s := newStore(t, open)
	ctx := context.Background()

	put(t, s, func(ctx context.Context, tx ledger.Tx) error {
		if err := tx.PutSession(ctx, session("g1", 0)); err != nil {
			return err
		}
		for _, a := range []ledger.Account{player("p1", "g1", "Alice", 10), player("p2", "g1", "Bob", 10)} {
			if err := tx.PutAccount(ctx, a); err != nil {
				return err
			}
		}
		return tx.PutTransfer(ctx, transfer("t1", "g1", "p1", "p2", 1, 0))
	})

	put(t, s, func(ctx context.Context, tx ledger.Tx) error {
		if err := tx.DeleteTransfer(ctx, "t1"); err != nil {
			return err
		}
		_, err := tx.GetTransfer(ctx, "t1")
		assert.ErrorIs(t, err, ledger.ErrTransferNotFound)
		return nil
	})

	transfers, err := s.ListTransfers(ctx, "g1")
	require.NoError(t, err)
	assert.Empty(t, transfers)

	err = s.Atomic(ctx, func(tx ledger.Tx) error {
		return tx.DeleteTransfer(ctx, "t1")
	})
	require.ErrorIs(t, err, ledger.ErrTransferNotFound)
}

func testNotFound(t *testing.T, open Factory) {
	s := newStore(t, open)
	ctx := context.Background()

	_, err := s.GetSession(ctx, "missing")
	require.ErrorIs(t, err, ledger.ErrSessionNotFound)

	_, err = s.GetAccount(ctx, "missing")
	require.ErrorIs(t, err, ledger.ErrAccountNotFound)

	_, err = s.GetTransfer(ctx, "missing")
	require.ErrorIs(t, err, ledger.ErrTransferNotFound)

	accounts, err := s.ListAccounts(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, accounts)
}
