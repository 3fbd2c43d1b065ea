/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package ledger

import "errors"

// Kind tells callers whether an error is theirs to fix, not theirs to do,
// or ours.
type Kind uint8

const (
	KindInfrastructure Kind = iota
	KindValidation
	KindNotFound
	KindAuthorization
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindAuthorization:
		return "authorization"
	case KindConflict:
		return "conflict"
	}
	return "infrastructure"
}

type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	ErrInvalidName            = &Error{Kind: KindValidation, Code: "invalid_name", Message: "name is required"}
	ErrInvalidStartingBalance = &Error{Kind: KindValidation, Code: "invalid_starting_balance", Message: "starting balance must be a non-negative amount with at most 4 decimal places"}
	ErrInvalidAmount          = &Error{Kind: KindValidation, Code: "invalid_amount", Message: "amount must be positive with at most 4 decimal places"}
	ErrInvalidRole            = &Error{Kind: KindValidation, Code: "invalid_role", Message: "role must be \"bank\" or \"player\""}
	ErrSameAccount            = &Error{Kind: KindValidation, Code: "same_account", Message: "cannot transfer to the same account"}

	ErrSessionNotFound  = &Error{Kind: KindNotFound, Code: "session_not_found", Message: "game not found"}
	ErrAccountNotFound  = &Error{Kind: KindNotFound, Code: "account_not_found", Message: "player not found"}
	ErrTransferNotFound = &Error{Kind: KindNotFound, Code: "transfer_not_found", Message: "transaction not found"}

	ErrNotAuthorized = &Error{Kind: KindAuthorization, Code: "not_authorized", Message: "only the bank can end the game"}

	ErrDuplicateBank     = &Error{Kind: KindConflict, Code: "duplicate_bank", Message: "this game already has a bank"}
	ErrInsufficientFunds = &Error{Kind: KindConflict, Code: "insufficient_funds", Message: "insufficient funds"}
	ErrSessionEnded      = &Error{Kind: KindConflict, Code: "session_ended", Message: "game has ended"}
	ErrConcurrentUpdate  = &Error{Kind: KindConflict, Code: "concurrent_update", Message: "transaction was modified concurrently, try again"}
)

// KindOf classifies err. Anything that is not a ledger error is
// infrastructure.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInfrastructure
}
