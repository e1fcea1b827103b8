package exception

import "github.com/yanun0323/errors"

var (
	ErrInvalidEvent     = errors.New("signal: invalid event")
	ErrInvalidSide      = errors.New("signal: invalid side")
	ErrPriceUnavailable = errors.New("signal: price unavailable")
	ErrPersistence      = errors.New("signal: persistence failure")
)

// Store errors
var (
	ErrDuplicateOpen = errors.New("signal: open record already exists for trade id")
	ErrSignalNotOpen = errors.New("signal: record is not open")
)
