package config

import (
	"os"
	"strings"
)

// Entitlement gates resolved outside the engine (plan/feature lookup happens
// in the session layer). The engine only consumes the booleans.
//
// Set via env:
// - DISABLED_TRANSFER_SCOPES="BRANCH,CHANNEL"
//
// Scope keys are case-insensitive. Unset means everything is enabled.
func TransferScopeEnabled(scope string) bool {
	scope = strings.ToUpper(strings.TrimSpace(scope))
	if scope == "" {
		return false
	}
	raw := os.Getenv("DISABLED_TRANSFER_SCOPES")
	if strings.TrimSpace(raw) == "" {
		return true
	}
	for _, part := range strings.Split(raw, ",") {
		if strings.ToUpper(strings.TrimSpace(part)) == scope {
			return false
		}
	}
	return true
}
