package service

import "errors"

// ErrInvalidRequest marks malformed requests that never reach the ledger.
var ErrInvalidRequest = errors.New("invalid request")
