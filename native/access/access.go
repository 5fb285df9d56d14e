package access

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Role identifiers recognised by the crowdfunding deployment.
const (
	RoleDefaultAdmin = "DEFAULT_ADMIN"
	RolePauser       = "PAUSER"
	RoleUpdater      = "UPDATER"
	RoleWithdrawer   = "WITHDRAWER"
)

var (
	ErrUnknownRole = errors.New("access: unknown role")
	ErrZeroAccount = errors.New("access: account must not be zero")
	errNilState    = errors.New("access: state not configured")
)

var knownRoles = map[string]struct{}{
	RoleDefaultAdmin: {},
	RolePauser:       {},
	RoleUpdater:      {},
	RoleWithdrawer:   {},
}

// Roles returns every recognised role in a stable order.
func Roles() []string {
	return []string{RoleDefaultAdmin, RolePauser, RoleUpdater, RoleWithdrawer}
}

// NormalizeRole canonicalises a role name and validates it against the known
// set.
func NormalizeRole(role string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(role))
	if _, ok := knownRoles[normalized]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	return normalized, nil
}

// MissingRoleError is returned when an account attempts an operation reserved
// for a role it does not hold.
type MissingRoleError struct {
	Account [20]byte
	Role    string
}

func (e *MissingRoleError) Error() string {
	return fmt.Sprintf("access control: account 0x%s is missing role %s", hex.EncodeToString(e.Account[:]), e.Role)
}

// IsMissingRole reports whether err carries a MissingRoleError.
func IsMissingRole(err error) bool {
	var target *MissingRoleError
	return errors.As(err, &target)
}
