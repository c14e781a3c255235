package cli

import (
	"github.com/MintHotspot/hotspot-backend-go/src/session"
)

// Process exit codes.
const (
	ExitOK              = 0
	ExitBlocked         = 1
	ExitConfiguration   = 2
	ExitInvalidArgument = 3
)

// ExitCode maps an error to the process exit code scripted callers see.
// Errors without a classification count as configuration failures.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch session.KindOf(err) {
	case session.HardwareError, session.SafetyBlock:
		return ExitBlocked
	case session.InvalidArgument:
		return ExitInvalidArgument
	}
	return ExitConfiguration
}
