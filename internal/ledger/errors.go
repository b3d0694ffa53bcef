package ledger

import "errors"

var (
	ErrUnauthorized      = errors.New("caller is not authorized for this operation")
	ErrInvalidCost       = errors.New("cost must be positive")
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrInvalidLimit      = errors.New("invalid limit")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrSelfTransaction   = errors.New("buyer and seller are the same account")
	ErrLimitExceeded     = errors.New("service limit exceeded")
	ErrRefundFailure     = errors.New("owner balance cannot cover refund")
	ErrInvalidAccount    = errors.New("invalid account identity")
)

// Wire codes for the failure taxonomy.
const (
	CodeOK                = "OK"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeInvalidCost       = "INVALID_COST"
	CodeInvalidQuantity   = "INVALID_QUANTITY"
	CodeInvalidLimit      = "INVALID_LIMIT"
	CodeInsufficientFunds = "INSUFFICIENT_FUNDS"
	CodeSelfTransaction   = "SELF_TRANSACTION"
	CodeLimitExceeded     = "LIMIT_EXCEEDED"
	CodeRefundFailure     = "REFUND_FAILURE"
	CodeInvalidAccount    = "INVALID_ACCOUNT"
	CodeInternal          = "INTERNAL"
)

var codes = []struct {
	err  error
	code string
}{
	{ErrUnauthorized, CodeUnauthorized},
	{ErrInvalidCost, CodeInvalidCost},
	{ErrInvalidQuantity, CodeInvalidQuantity},
	{ErrInvalidLimit, CodeInvalidLimit},
	{ErrInsufficientFunds, CodeInsufficientFunds},
	{ErrSelfTransaction, CodeSelfTransaction},
	{ErrLimitExceeded, CodeLimitExceeded},
	{ErrRefundFailure, CodeRefundFailure},
	{ErrInvalidAccount, CodeInvalidAccount},
}

// Code returns the wire code for err. Errors outside the taxonomy
// (storage, transport) map to CodeInternal.
func Code(err error) string {
	if err == nil {
		return CodeOK
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// IsRejection reports whether err is a precondition failure, as opposed to
// an infrastructure error.
func IsRejection(err error) bool {
	code := Code(err)
	return code != CodeOK && code != CodeInternal
}
