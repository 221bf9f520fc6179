package service

import (
	"errors"
	"fmt"
)

var (
	ErrValidation         = errors.New("validation error")
	ErrSessionActive      = fmt.Errorf("%w: a blast session is already running for this owner", ErrValidation)
	ErrDailyLimitReached  = fmt.Errorf("%w: daily message limit reached for this mode", ErrValidation)
	ErrGatewayUnavailable = errors.New("gateway unavailable")
	ErrLedger             = errors.New("ledger error")
	ErrSessionFailed      = errors.New("blast session failed")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
