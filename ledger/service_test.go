package ledger_test

import (
	"context"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Seednode/bankbox/ledger"
	"github.com/Seednode/bankbox/ledger/memstore"
	"github.com/Seednode/bankbox/ledger/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []ledger.Event
}

func (r *recorder) Publish(ev ledger.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) types() []ledger.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]ledger.EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func (r *recorder) last() ledger.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

var stores = map[string]func(t *testing.T) ledger.Store{
	"memory": func(t *testing.T) ledger.Store {
		return memstore.New()
	},
	"sqlite": func(t *testing.T) ledger.Store {
		s, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = s.Close()
		})
		return s
	},
}

func eachStore(t *testing.T, fn func(t *testing.T, svc *ledger.Service, rec *recorder)) {
	for name, open := range stores {
		t.Run(name, func(t *testing.T) {
			rec := &recorder{}
			fn(t, ledger.NewService(open(t), rec), rec)
		})
	}
}

func amount(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func balanceOf(t *testing.T, svc *ledger.Service, id string) ledger.Balance {
	t.Helper()

	a, err := svc.Account(context.Background(), id)
	require.NoError(t, err)
	return a.Balance
}

type table struct {
	session ledger.Session
	bank    ledger.Account
	alice   ledger.Account
	bob     ledger.Account
}

func setup(t *testing.T, svc *ledger.Service) table {
	t.Helper()
	ctx := context.Background()

	starting := amount(1500)
	session, err := svc.CreateSession(ctx, ledger.CreateSessionInput{Name: "Friday Game", StartingBalance: &starting})
	require.NoError(t, err)

	join := func(name string, role ledger.Role) ledger.Account {
		a, err := svc.JoinSession(ctx, ledger.JoinSessionInput{SessionID: session.ID, Name: name, Role: role})
		require.NoError(t, err)
		return a
	}

	return table{
		session: session,
		bank:    join("Bank", ledger.RoleBank),
		alice:   join("Alice", ledger.RolePlayer),
		bob:     join("Bob", ledger.RolePlayer),
	}
}

func TestFridayGame(t *testing.T) {
	eachStore(t, func(t *testing.T, svc *ledger.Service, rec *recorder) {
		ctx := context.Background()
		g := setup(t, svc)

		assert.True(t, g.bank.Balance.IsUnlimited())
		assert.True(t, g.alice.Balance.Equal(ledger.Finite(amount(1500))))

		res, err := svc.Transfer(ctx, ledger.TransferInput{
			SessionID: g.session.ID, FromAccountID: g.alice.ID, ToAccountID: g.bob.ID, Amount: amount(200),
		})
		require.NoError(t, err)
		assert.True(t, res.From.Balance.Equal(ledger.Finite(amount(1300))))
		assert.True(t, res.To.Balance.Equal(ledger.Finite(amount(1700))))
		assert.True(t, res.Transfer.Amount.Equal(amount(200)))

		ev := rec.last()
		assert.Equal(t, ledger.EventTransferApplied, ev.Type)
		assert.Equal(t, g.session.ID, ev.SessionID)
		assert.Equal(t, res, ev.Data)

		_, err = svc.Transfer(ctx, ledger.TransferInput{
			SessionID: g.session.ID, FromAccountID: g.bob.ID, ToAccountID: g.bank.ID, Amount: amount(1700),
		})
		require.NoError(t, err)
		assert.True(t, balanceOf(t, svc, g.bob.ID).Equal(ledger.Finite(decimal.Zero)))
		assert.True(t, balanceOf(t, svc, g.bank.ID).IsUnlimited())

		_, err = svc.Transfer(ctx, ledger.TransferInput{
			SessionID: g.session.ID, FromAccountID: g.bob.ID, ToAccountID: g.alice.ID, Amount: amount(1),
		})
		require.ErrorIs(t, err, ledger.ErrInsufficientFunds)
		assert.Equal(t, ledger.KindConflict, ledger.KindOf(err))
		assert.True(t, balanceOf(t, svc, g.bob.ID).Equal(ledger.Finite(decimal.Zero)))
		assert.True(t, balanceOf(t, svc, g.alice.ID).Equal(ledger.Finite(amount(1300))))

		transfers, err := svc.Transfers(ctx, g.session.ID)
		require.NoError(t, err)
		assert.Len(t, transfers, 2)

		assert.Equal(t, []ledger.EventType{
			ledger.EventSessionCreated,
			ledger.EventParticipantJoined,
			ledger.EventParticipantJoined,
			ledger.EventParticipantJoined,
			ledger.EventTransferApplied,
			ledger.EventTransferApplied,
		}, rec.types())
	})
}

func TestCreateSessionValidation(t *testing.T) {
	svc := ledger.NewService(memstore.New(), nil)
	ctx := context.Background()

	_, err := svc.CreateSession(ctx, ledger.CreateSessionInput{Name: "   "})
	require.ErrorIs(t, err, ledger.ErrInvalidName)

	for i, bad := range []decimal.Decimal{
		amount(-1),
		decimal.New(1, -8000000),
		decimal.New(1, 8000000),
		decimal.RequireFromString("0.00001"),
		decimal.RequireFromString("9999999999999999"),
	} {
		_, err = svc.CreateSession(ctx, ledger.CreateSessionInput{Name: "Game", StartingBalance: &bad})
		require.ErrorIs(t, err, ledger.ErrInvalidStartingBalance, "case %d", i)
	}

	cents := decimal.RequireFromString("12.3400")
	session, err := svc.CreateSession(ctx, ledger.CreateSessionInput{Name: "Euro", StartingBalance: &cents})
	require.NoError(t, err)
	assert.True(t, session.StartingBalance.Equal(decimal.RequireFromString("12.34")))

	session, err = svc.CreateSession(ctx, ledger.CreateSessionInput{Name: "  Game  "})
	require.NoError(t, err)
	assert.Equal(t, "Game", session.Name)
	assert.True(t, session.StartingBalance.Equal(ledger.DefaultStartingBalance))
	assert.Equal(t, ledger.StatusActive, session.Status)

	zero := decimal.Zero
	session, err = svc.CreateSession(ctx, ledger.CreateSessionInput{Name: "Broke", StartingBalance: &zero})
	require.NoError(t, err)
	assert.True(t, session.StartingBalance.IsZero())
}

func TestServerDefaultStartingBalance(t *testing.T) {
	svc := ledger.NewService(memstore.New(), nil, ledger.WithStartingBalance(amount(200)))

	session, err := svc.CreateSession(context.Background(), ledger.CreateSessionInput{Name: "Small"})
	require.NoError(t, err)
	assert.True(t, session.StartingBalance.Equal(amount(200)))
}

func TestJoinSessionRejections(t *testing.T) {
	eachStore(t, func(t *testing.T, svc *ledger.Service, rec *recorder) {
		ctx := context.Background()
		g := setup(t, svc)

		_, err := svc.JoinSession(ctx, ledger.JoinSessionInput{SessionID: "nope", Name: "Eve", Role: ledger.RolePlayer})
		require.ErrorIs(t, err, ledger.ErrSessionNotFound)

		_, err = svc.JoinSession(ctx, ledger.JoinSessionInput{SessionID: g.session.ID, Name: "Bank 2", Role: ledger.RoleBank})
		require.ErrorIs(t, err, ledger.ErrDuplicateBank)
		assert.Equal(t, ledger.KindConflict, ledger.KindOf(err))

		_, err = svc.JoinSession(ctx, ledger.JoinSessionInput{SessionID: g.session.ID, Name: "", Role: ledger.RolePlayer})
		require.ErrorIs(t, err, ledger.ErrInvalidName)

		_, err = svc.JoinSession(ctx, ledger.JoinSessionInput{SessionID: g.session.ID, Name: "Eve"})
		require.ErrorIs(t, err, ledger.ErrInvalidRole)

		accounts, err := svc.Accounts(ctx, g.session.ID)
		require.NoError(t, err)
		require.Len(t, accounts, 3)
		assert.Equal(t, []string{"Bank", "Alice", "Bob"}, []string{accounts[0].Name, accounts[1].Name, accounts[2].Name})
		for _, a := range accounts[1:] {
			assert.True(t, a.Balance.Equal(ledger.Finite(amount(1500))))
		}

		_, err = svc.EndSession(ctx, g.bank.ID)
		require.NoError(t, err)

		_, err = svc.JoinSession(ctx, ledger.JoinSessionInput{SessionID: g.session.ID, Name: "Late", Role: ledger.RolePlayer})
		require.ErrorIs(t, err, ledger.ErrSessionEnded)
	})
}

func TestConcurrentBankJoinsAdmitOne(t *testing.T) {
	eachStore(t, func(t *testing.T, svc *ledger.Service, rec *recorder) {
		ctx := context.Background()
		session, err := svc.CreateSession(ctx, ledger.CreateSessionInput{Name: "Race"})
		require.NoError(t, err)

		var (
			wg     sync.WaitGroup
			mu     sync.Mutex
			joined int
		)
		for i := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := svc.JoinSession(ctx, ledger.JoinSessionInput{
					SessionID: session.ID, Name: fmt.Sprintf("Bank %d", i), Role: ledger.RoleBank,
				})
				if err == nil {
					mu.Lock()
					joined++
					mu.Unlock()
					return
				}
				assert.ErrorIs(t, err, ledger.ErrDuplicateBank)
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, joined)
		accounts, err := svc.Accounts(ctx, session.ID)
		require.NoError(t, err)
		assert.Len(t, accounts, 1)
	})
}

func TestEndSession(t *testing.T) {
	eachStore(t, func(t *testing.T, svc *ledger.Service, rec *recorder) {
		ctx := context.Background()
		g := setup(t, svc)

		_, err := svc.EndSession(ctx, "ghost")
		require.ErrorIs(t, err, ledger.ErrAccountNotFound)

		_, err = svc.EndSession(ctx, g.alice.ID)
		require.ErrorIs(t, err, ledger.ErrNotAuthorized)
		assert.Equal(t, ledger.KindAuthorization, ledger.KindOf(err))

		session, err := svc.Session(ctx, g.session.ID)
		require.NoError(t, err)
		assert.Equal(t, ledger.StatusActive, session.Status)

		ended, err := svc.EndSession(ctx, g.bank.ID)
		require.NoError(t, err)
		assert.Equal(t, ledger.StatusEnded, ended.Status)

		again, err := svc.EndSession(ctx, g.bank.ID)
		require.NoError(t, err)
		assert.Equal(t, ledger.StatusEnded, again.Status)

		var endedEvents int
		for _, typ := range rec.types() {
			if typ == ledger.EventSessionEnded {
				endedEvents++
			}
		}
		assert.Equal(t, 1, endedEvents)

		active, err := svc.Sessions(ctx, ledger.StatusActive)
		require.NoError(t, err)
		assert.Empty(t, active)

		_, err = svc.Transfer(ctx, ledger.TransferInput{
			SessionID: g.session.ID, FromAccountID: g.alice.ID, ToAccountID: g.bob.ID, Amount: amount(1),
		})
		require.ErrorIs(t, err, ledger.ErrSessionEnded)
	})
}

func TestConcurrentEndSessionNotifiesOnce(t *testing.T) {
	eachStore(t, func(t *testing.T, svc *ledger.Service, rec *recorder) {
		ctx := context.Background()
		g := setup(t, svc)

		const callers = 16

		var wg sync.WaitGroup
		errs := make(chan error, callers)
		for range callers {
			wg.Add(1)
			go func() {
				defer wg.Done()

				session, err := svc.EndSession(ctx, g.bank.ID)
				if err == nil && session.Status != ledger.StatusEnded {
					err = fmt.Errorf("session %s still %s", session.ID, session.Status)
				}
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			require.NoError(t, err)
		}

		var endedEvents int
		for _, typ := range rec.types() {
			if typ == ledger.EventSessionEnded {
				endedEvents++
			}
		}
		assert.Equal(t, 1, endedEvents)
	})
}

func TestTransferValidation(t *testing.T) {
	eachStore(t, func(t *testing.T, svc *ledger.Service, rec *recorder) {
		ctx := context.Background()
		g := setup(t, svc)
		other := setup(t, svc)

		cases := []struct {
			name string
			in   ledger.TransferInput
			want error
		}{
			{"zero amount", ledger.TransferInput{SessionID: g.session.ID, FromAccountID: g.alice.ID, ToAccountID: g.bob.ID}, ledger.ErrInvalidAmount},
			{"negative amount", ledger.TransferInput{SessionID: g.session.ID, FromAccountID: g.alice.ID, ToAccountID: g.bob.ID, Amount: amount(-5)}, ledger.ErrInvalidAmount},
			{"self transfer", ledger.TransferInput{SessionID: g.session.ID, FromAccountID: g.alice.ID, ToAccountID: g.alice.ID, Amount: amount(5)}, ledger.ErrSameAccount},
			{"unknown source", ledger.TransferInput{SessionID: g.session.ID, FromAccountID: "ghost", ToAccountID: g.bob.ID, Amount: amount(5)}, ledger.ErrAccountNotFound},
			{"foreign destination", ledger.TransferInput{SessionID: g.session.ID, FromAccountID: g.alice.ID, ToAccountID: other.bob.ID, Amount: amount(5)}, ledger.ErrAccountNotFound},
			{"wrong session", ledger.TransferInput{SessionID: other.session.ID, FromAccountID: g.alice.ID, ToAccountID: g.bob.ID, Amount: amount(5)}, ledger.ErrAccountNotFound},
			{"overdraft", ledger.TransferInput{SessionID: g.session.ID, FromAccountID: g.alice.ID, ToAccountID: g.bob.ID, Amount: amount(1501)}, ledger.ErrInsufficientFunds},
			{"excess precision", ledger.TransferInput{SessionID: g.session.ID, FromAccountID: g.alice.ID, ToAccountID: g.bob.ID, Amount: decimal.RequireFromString("0.00001")}, ledger.ErrInvalidAmount},
			{"tiny exponent", ledger.TransferInput{SessionID: g.session.ID, FromAccountID: g.alice.ID, ToAccountID: g.bob.ID, Amount: decimal.New(1, -8000000)}, ledger.ErrInvalidAmount},
			{"huge exponent", ledger.TransferInput{SessionID: g.session.ID, FromAccountID: g.bank.ID, ToAccountID: g.bob.ID, Amount: decimal.New(1, 8000000)}, ledger.ErrInvalidAmount},
			{"too many digits", ledger.TransferInput{SessionID: g.session.ID, FromAccountID: g.bank.ID, ToAccountID: g.bob.ID, Amount: decimal.RequireFromString("1234567890123456")}, ledger.ErrInvalidAmount},
		}

		before := len(rec.types())
		for _, tc := range cases {
			_, err := svc.Transfer(ctx, tc.in)
			require.ErrorIs(t, err, tc.want, tc.name)
		}

		assert.Len(t, rec.types(), before, "rejected transfers must not notify")
		assert.True(t, balanceOf(t, svc, g.alice.ID).Equal(ledger.Finite(amount(1500))))
		assert.True(t, balanceOf(t, svc, g.bob.ID).Equal(ledger.Finite(amount(1500))))
		assert.True(t, balanceOf(t, svc, other.bob.ID).Equal(ledger.Finite(amount(1500))))

		transfers, err := svc.Transfers(ctx, g.session.ID)
		require.NoError(t, err)
		assert.Empty(t, transfers)
	})
}

func TestBankPaysOut(t *testing.T) {
	svc := ledger.NewService(memstore.New(), nil)
	ctx := context.Background()
	g := setup(t, svc)

	res, err := svc.Transfer(ctx, ledger.TransferInput{
		SessionID: g.session.ID, FromAccountID: g.bank.ID, ToAccountID: g.alice.ID, Amount: decimal.RequireFromString("200.25"),
	})
	require.NoError(t, err)
	assert.True(t, res.From.Balance.IsUnlimited())
	assert.True(t, res.To.Balance.Equal(ledger.Finite(decimal.RequireFromString("1700.25"))))
}

func TestUpdateTransfer(t *testing.T) {
	eachStore(t, func(t *testing.T, svc *ledger.Service, rec *recorder) {
		ctx := context.Background()
		g := setup(t, svc)

		res, err := svc.Transfer(ctx, ledger.TransferInput{
			SessionID: g.session.ID, FromAccountID: g.alice.ID, ToAccountID: g.bob.ID, Amount: amount(200),
		})
		require.NoError(t, err)

		newAmount := amount(50)
		adj, err := svc.UpdateTransfer(ctx, res.Transfer.ID, ledger.TransferPatch{Amount: &newAmount})
		require.NoError(t, err)
		assert.True(t, adj.Transfer.Amount.Equal(newAmount))
		assert.True(t, balanceOf(t, svc, g.alice.ID).Equal(ledger.Finite(amount(1450))))
		assert.True(t, balanceOf(t, svc, g.bob.ID).Equal(ledger.Finite(amount(1550))))
		assert.Len(t, adj.Accounts, 2)
		assert.Equal(t, ledger.EventTransferUpdated, rec.last().Type)

		for i, bad := range []decimal.Decimal{decimal.New(1, -8000000), decimal.New(1, 8000000), decimal.RequireFromString("0.00005")} {
			_, err = svc.UpdateTransfer(ctx, res.Transfer.ID, ledger.TransferPatch{Amount: &bad})
			require.ErrorIs(t, err, ledger.ErrInvalidAmount, "case %d", i)
		}
		assert.True(t, balanceOf(t, svc, g.alice.ID).Equal(ledger.Finite(amount(1450))))

		// Redirect the payment to the bank: Bob gives back the 50.
		bankID := g.bank.ID
		adj, err = svc.UpdateTransfer(ctx, res.Transfer.ID, ledger.TransferPatch{ToAccountID: &bankID})
		require.NoError(t, err)
		assert.Equal(t, g.bank.ID, adj.Transfer.ToAccountID)
		assert.True(t, balanceOf(t, svc, g.alice.ID).Equal(ledger.Finite(amount(1450))))
		assert.True(t, balanceOf(t, svc, g.bob.ID).Equal(ledger.Finite(amount(1500))))
		assert.True(t, balanceOf(t, svc, g.bank.ID).IsUnlimited())
		assert.Len(t, adj.Accounts, 3)

		stored, err := svc.GetTransfer(ctx, res.Transfer.ID)
		require.NoError(t, err)
		assert.True(t, stored.CreatedAt.Equal(res.Transfer.CreatedAt))
	})
}

func TestUpdateTransferRevalidatesNewSource(t *testing.T) {
	eachStore(t, func(t *testing.T, svc *ledger.Service, rec *recorder) {
		ctx := context.Background()
		g := setup(t, svc)

		res, err := svc.Transfer(ctx, ledger.TransferInput{
			SessionID: g.session.ID, FromAccountID: g.alice.ID, ToAccountID: g.bob.ID, Amount: amount(100),
		})
		require.NoError(t, err)

		// After undoing, Alice has 1500; 1501 is too much.
		tooMuch := amount(1501)
		_, err = svc.UpdateTransfer(ctx, res.Transfer.ID, ledger.TransferPatch{Amount: &tooMuch})
		require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

		// Exactly everything she has is fine.
		all := amount(1500)
		_, err = svc.UpdateTransfer(ctx, res.Transfer.ID, ledger.TransferPatch{Amount: &all})
		require.NoError(t, err)
		assert.True(t, balanceOf(t, svc, g.alice.ID).Equal(ledger.Finite(decimal.Zero)))
		assert.True(t, balanceOf(t, svc, g.bob.ID).Equal(ledger.Finite(amount(3000))))

		same := g.bob.ID
		_, err = svc.UpdateTransfer(ctx, res.Transfer.ID, ledger.TransferPatch{FromAccountID: &same})
		require.ErrorIs(t, err, ledger.ErrSameAccount)

		zero := decimal.Zero
		_, err = svc.UpdateTransfer(ctx, res.Transfer.ID, ledger.TransferPatch{Amount: &zero})
		require.ErrorIs(t, err, ledger.ErrInvalidAmount)

		_, err = svc.UpdateTransfer(ctx, "ghost", ledger.TransferPatch{Amount: &all})
		require.ErrorIs(t, err, ledger.ErrTransferNotFound)
	})
}

func TestDeleteTransfer(t *testing.T) {
	eachStore(t, func(t *testing.T, svc *ledger.Service, rec *recorder) {
		ctx := context.Background()
		g := setup(t, svc)

		res, err := svc.Transfer(ctx, ledger.TransferInput{
			SessionID: g.session.ID, FromAccountID: g.alice.ID, ToAccountID: g.bob.ID, Amount: amount(300),
		})
		require.NoError(t, err)

		// Bob spends it all, so the reversal cannot take it back.
		_, err = svc.Transfer(ctx, ledger.TransferInput{
			SessionID: g.session.ID, FromAccountID: g.bob.ID, ToAccountID: g.bank.ID, Amount: amount(1800),
		})
		require.NoError(t, err)

		_, err = svc.DeleteTransfer(ctx, res.Transfer.ID)
		require.ErrorIs(t, err, ledger.ErrInsufficientFunds)
		assert.True(t, balanceOf(t, svc, g.alice.ID).Equal(ledger.Finite(amount(1200))))
		assert.True(t, balanceOf(t, svc, g.bob.ID).Equal(ledger.Finite(decimal.Zero)))

		_, err = svc.Transfer(ctx, ledger.TransferInput{
			SessionID: g.session.ID, FromAccountID: g.bank.ID, ToAccountID: g.bob.ID, Amount: amount(300),
		})
		require.NoError(t, err)

		adj, err := svc.DeleteTransfer(ctx, res.Transfer.ID)
		require.NoError(t, err)
		assert.True(t, adj.Deleted)
		assert.Equal(t, ledger.EventTransferDeleted, rec.last().Type)
		assert.True(t, balanceOf(t, svc, g.alice.ID).Equal(ledger.Finite(amount(1500))))
		assert.True(t, balanceOf(t, svc, g.bob.ID).Equal(ledger.Finite(decimal.Zero)))

		_, err = svc.GetTransfer(ctx, res.Transfer.ID)
		require.ErrorIs(t, err, ledger.ErrTransferNotFound)

		_, err = svc.DeleteTransfer(ctx, res.Transfer.ID)
		require.ErrorIs(t, err, ledger.ErrTransferNotFound)
	})
}

func TestConcurrentTransfersConserveMoney(t *testing.T) {
	eachStore(t, func(t *testing.T, svc *ledger.Service, rec *recorder) {
		ctx := context.Background()
		g := setup(t, svc)

		carol, err := svc.JoinSession(ctx, ledger.JoinSessionInput{SessionID: g.session.ID, Name: "Carol", Role: ledger.RolePlayer})
		require.NoError(t, err)

		players := []string{g.alice.ID, g.bob.ID, carol.ID}

		var wg sync.WaitGroup
		for w := range 6 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				r := rand.New(rand.NewPCG(uint64(w), 7))
				for range 40 {
					from := players[r.IntN(len(players))]
					to := players[r.IntN(len(players))]
					if from == to {
						continue
					}
					_, err := svc.Transfer(ctx, ledger.TransferInput{
						SessionID: g.session.ID, FromAccountID: from, ToAccountID: to, Amount: amount(int64(1 + r.IntN(400))),
					})
					if err != nil {
						assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
					}
				}
			}()
		}
		wg.Wait()

		total := decimal.Zero
		accounts, err := svc.Accounts(ctx, g.session.ID)
		require.NoError(t, err)
		for _, a := range accounts {
			v, ok := a.Balance.Amount()
			if !ok {
				continue
			}
			assert.False(t, v.IsNegative(), "%s went negative: %s", a.Name, v)
			total = total.Add(v)
		}
		assert.True(t, total.Equal(amount(4500)), "total drifted to %s", total)
	})
}

func TestStateSnapshot(t *testing.T) {
	svc := ledger.NewService(memstore.New(), nil)
	ctx := context.Background()
	g := setup(t, svc)

	_, err := svc.Transfer(ctx, ledger.TransferInput{
		SessionID: g.session.ID, FromAccountID: g.alice.ID, ToAccountID: g.bob.ID, Amount: amount(10),
	})
	require.NoError(t, err)

	state, err := svc.State(ctx, g.session.ID)
	require.NoError(t, err)
	assert.Equal(t, g.session.ID, state.Session.ID)
	assert.Len(t, state.Accounts, 3)
	assert.Len(t, state.Transfers, 1)

	_, err = svc.State(ctx, "ghost")
	require.ErrorIs(t, err, ledger.ErrSessionNotFound)

	_, err = svc.Accounts(ctx, "ghost")
	require.ErrorIs(t, err, ledger.ErrSessionNotFound)
}
