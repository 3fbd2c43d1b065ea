/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a session.
type Status uint8

const (
	StatusActive Status = iota + 1
	StatusEnded
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusEnded:
		return "ended"
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

// ParseStatus accepts only the exact lowercase names.
func ParseStatus(v string) (Status, error) {
	switch v {
	case "active":
		return StatusActive, nil
	case "ended":
		return StatusEnded, nil
	}
	return 0, fmt.Errorf("unknown session status %q", v)
}

func (s Status) MarshalText() ([]byte, error) {
	if s != StatusActive && s != StatusEnded {
		return nil, fmt.Errorf("invalid session status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Role distinguishes the single bank of a session from ordinary players.
type Role uint8

const (
	RolePlayer Role = iota + 1
	RoleBank
)

func (r Role) String() string {
	switch r {
	case RolePlayer:
		return "player"
	case RoleBank:
		return "bank"
	}
	return fmt.Sprintf("Role(%d)", uint8(r))
}

func ParseRole(v string) (Role, error) {
	switch v {
	case "player":
		return RolePlayer, nil
	case "bank":
		return RoleBank, nil
	}
	return 0, ErrInvalidRole
}

func (r Role) MarshalText() ([]byte, error) {
	if r != RolePlayer && r != RoleBank {
		return nil, fmt.Errorf("invalid role %d", uint8(r))
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	v, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

const (
	// MoneyScale is the number of fractional digits an amount may carry.
	MoneyScale = 4
	// MoneyDigits bounds the integer part of an amount.
	MoneyDigits = 15
)

// MoneyInRange reports whether d is small enough in both directions to be
// stored and added without rescaling to arbitrary precision. The exponent is
// checked before anything that could rescale d.
func MoneyInRange(d decimal.Decimal) bool {
	exp := int64(d.Exponent())
	if exp > MoneyDigits || exp < -(MoneyScale+MoneyDigits) {
		return false
	}
	if int64(d.NumDigits())+exp > MoneyDigits {
		return false
	}
	if exp < -MoneyScale && !d.Equal(d.Truncate(MoneyScale)) {
		return false
	}
	return true
}

// Balance is either unlimited (the bank) or a finite, non-negative amount.
// The zero value is a finite balance of zero.
type Balance struct {
	unlimited bool
	amount    decimal.Decimal
}

func Unlimited() Balance {
	return Balance{unlimited: true}
}

func Finite(amount decimal.Decimal) Balance {
	return Balance{amount: amount}
}

func (b Balance) IsUnlimited() bool {
	return b.unlimited
}

// Amount returns the finite amount; ok is false for an unlimited balance.
func (b Balance) Amount() (amount decimal.Decimal, ok bool) {
	if b.unlimited {
		return decimal.Zero, false
	}
	return b.amount, true
}

// Debit removes amount. Unlimited balances are left untouched.
func (b Balance) Debit(amount decimal.Decimal) (Balance, error) {
	if b.unlimited {
		return b, nil
	}
	next := b.amount.Sub(amount)
	if next.IsNegative() {
		return b, ErrInsufficientFunds
	}
	return Finite(next), nil
}

// Credit adds amount. Unlimited balances are left untouched.
func (b Balance) Credit(amount decimal.Decimal) Balance {
	if b.unlimited {
		return b
	}
	return Finite(b.amount.Add(amount))
}

func (b Balance) Equal(o Balance) bool {
	if b.unlimited || o.unlimited {
		return b.unlimited == o.unlimited
	}
	return b.amount.Equal(o.amount)
}

func (b Balance) String() string {
	if b.unlimited {
		return "unlimited"
	}
	return b.amount.String()
}

type balanceJSON struct {
	Unlimited bool             `json:"unlimited,omitempty"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
}

func (b Balance) MarshalJSON() ([]byte, error) {
	if b.unlimited {
		return json.Marshal(balanceJSON{Unlimited: true})
	}
	amount := b.amount
	return json.Marshal(balanceJSON{Amount: &amount})
}

func (b *Balance) UnmarshalJSON(data []byte) error {
	var v balanceJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch {
	case v.Unlimited:
		*b = Unlimited()
	case v.Amount != nil:
		*b = Finite(*v.Amount)
	default:
		*b = Finite(decimal.Zero)
	}
	return nil
}

// Session is one bounded ledger ("game").
type Session struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	StartingBalance decimal.Decimal `json:"starting_balance"`
	Status          Status          `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
}

func (s Session) Active() bool {
	return s.Status == StatusActive
}

// Account is a participant ("player") of a session.
type Account struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	Balance   Balance   `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
}

func (a Account) IsBank() bool {
	return a.Role == RoleBank
}

// Transfer is one recorded movement of funds between two accounts.
type Transfer struct {
	ID            string          `json:"id"`
	SessionID     string          `json:"session_id"`
	FromAccountID string          `json:"from_account_id"`
	ToAccountID   string          `json:"to_account_id"`
	Amount        decimal.Decimal `json:"amount"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// TransferResult is returned by a successful transfer and broadcast with it.
type TransferResult struct {
	Transfer Transfer `json:"transfer"`
	From     Account  `json:"from_account"`
	To       Account  `json:"to_account"`
}

// Adjustment describes an amended or deleted transfer and every account
// whose balance it touched.
type Adjustment struct {
	Transfer Transfer  `json:"transfer"`
	Deleted  bool      `json:"deleted,omitempty"`
	Accounts []Account `json:"accounts"`
}

// SessionState is the full pull view of a session.
type SessionState struct {
	Session   Session    `json:"session"`
	Accounts  []Account  `json:"accounts"`
	Transfers []Transfer `json:"transfers"`
}
