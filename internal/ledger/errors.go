package ledger

import (
	"errors"
)

// Expected transfer outcomes. Callers branch on them with errors.Is or KindOf.
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrLockTimeout       = errors.New("lock timeout")
)

// Kind tags the outcome of a ledger operation.
type Kind uint8

const (
	KindNone Kind = iota
	KindInvalidArgument
	KindInvalidAmount
	KindInsufficientFunds
	KindLockTimeout
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindInvalidAmount:
		return "invalid_amount"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindLockTimeout:
		return "lock_timeout"
	default:
		return "unknown"
	}
}

// KindOf maps err to its Kind. A nil error is KindNone.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInvalidArgument):
		return KindInvalidArgument
	case errors.Is(err, ErrInvalidAmount):
		return KindInvalidAmount
	case errors.Is(err, ErrInsufficientFunds):
		return KindInsufficientFunds
	case errors.Is(err, ErrLockTimeout):
		return KindLockTimeout
	default:
		return KindUnknown
	}
}

// IsRetryable reports whether the same call may succeed if simply repeated.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockTimeout)
}
