package access

import (
	"encoding/hex"

	"fundchain/core/types"
)

const (
	EventTypeRoleGranted = "access.role.granted"
	EventTypeRoleRevoked = "access.role.revoked"
)

// NewRoleGrantedEvent describes a role assignment. A zero sender marks a
// bootstrap grant.
func NewRoleGrantedEvent(role string, account, sender [20]byte) *types.Event {
	return newRoleEvent(EventTypeRoleGranted, role, account, sender)
}

// NewRoleRevokedEvent describes a role removal.
func NewRoleRevokedEvent(role string, account, sender [20]byte) *types.Event {
	return newRoleEvent(EventTypeRoleRevoked, role, account, sender)
}

func newRoleEvent(eventType, role string, account, sender [20]byte) *types.Event {
	attrs := map[string]string{
		"role":    role,
		"account": hex.EncodeToString(account[:]),
	}
	if sender != ([20]byte{}) {
		attrs["sender"] = hex.EncodeToString(sender[:])
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
