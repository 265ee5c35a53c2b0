package wallet

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
)

var (
	// ErrWalletRejected means the signer answered but refused the request.
	ErrWalletRejected = errors.New("wallet rejected the request")
	// ErrWalletUnavailable means the signer could not be reached.
	ErrWalletUnavailable = errors.New("wallet unavailable")
	// ErrTimeout means a signer call exceeded its deadline.
	ErrTimeout = errors.New("wallet timeout")
	// ErrUnrecognizedTxResult is returned when a submission result carries
	// no transaction id in any known shape.
	ErrUnrecognizedTxResult = errors.New("unrecognized transaction result")
	// ErrInvalidTx is returned when a value cannot be used as a transaction.
	ErrInvalidTx = errors.New("invalid transaction")
)

// SignerError wraps a failed signer call with the operation that failed
// and its category (ErrWalletRejected, ErrWalletUnavailable or ErrTimeout).
type SignerError struct {
	Op   string
	Kind error
	Err  error
}

func (e *SignerError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *SignerError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// classify wraps a signer error into a SignerError of the right category.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *SignerError
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return &SignerError{Op: op, Kind: kindOf(err), Err: err}
}

func kindOf(err error) error {
	switch {
	case isTimeout(err):
		return ErrTimeout
	case errors.Is(err, ErrWalletUnavailable), isUnavailable(err):
		return ErrWalletUnavailable
	default:
		return ErrWalletRejected
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return containsErr(err, "timed out") || containsErr(err, "timeout")
}

func isUnavailable(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	return containsErr(err, "connection refused") ||
		containsErr(err, "not connected") ||
		containsErr(err, "disconnected") ||
		containsErr(err, "unavailable")
}

// dustWord matches the fee currency name on its own, not inside words like
// "industry".
var dustWord = regexp.MustCompile(`(?i)\bdust\b`)

// IsInsufficientFunds reports whether err means the wallet could not pay
// for the transaction, typically because it lacks fee currency (DUST).
func IsInsufficientFunds(err error) bool {
	if err == nil {
		return false
	}
	return containsErr(err, "insufficient") ||
		containsErr(err, "not enough") ||
		dustWord.MatchString(err.Error())
}

// IsRejected reports whether the signer refused a request.
func IsRejected(err error) bool {
	return errors.Is(err, ErrWalletRejected)
}

func containsErr(err error, sub string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), strings.ToLower(sub))
}
