package access

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"fundchain/core/events"
	"fundchain/core/types"
)

type mockState struct {
	roles map[string][][]byte
}

func newMockState() *mockState {
	return &mockState{roles: make(map[string][][]byte)}
}

func (m *mockState) SetRole(role string, addr []byte) error {
	m.roles[role] = append(m.roles[role], append([]byte(nil), addr...))
	return nil
}

func (m *mockState) RemoveRole(role string, addr []byte) error {
	kept := m.roles[role][:0]
	for _, member := range m.roles[role] {
		if !bytes.Equal(member, addr) {
			kept = append(kept, member)
		}
	}
	m.roles[role] = kept
	return nil
}

func (m *mockState) HasRole(role string, addr []byte) bool {
	for _, member := range m.roles[role] {
		if bytes.Equal(member, addr) {
			return true
		}
	}
	return false
}

func (m *mockState) RoleMembers(role string) ([][]byte, error) {
	return m.roles[role], nil
}

type capturingEmitter struct{ events []*types.Event }

func (c *capturingEmitter) Emit(evt events.Event) {
	if wrapper, ok := evt.(accessEvent); ok {
		c.events = append(c.events, wrapper.evt)
	}
}

func testAddress(fill byte) [20]byte {
	var out [20]byte
	copy(out[:], bytes.Repeat([]byte{fill}, 20))
	return out
}

func newTestEngine(t *testing.T) (*Engine, *capturingEmitter, [20]byte) {
	t.Helper()
	engine := NewEngine()
	engine.SetState(newMockState())
	emitter := &capturingEmitter{}
	engine.SetEmitter(emitter)
	admin := testAddress(0xAD)
	require.NoError(t, engine.Bootstrap(RoleDefaultAdmin, admin))
	return engine, emitter, admin
}

func TestMissingRoleErrorMessage(t *testing.T) {
	err := error(&MissingRoleError{Account: testAddress(0x01), Role: RoleUpdater})
	require.Equal(t, "access control: account 0x0101010101010101010101010101010101010101 is missing role UPDATER", err.Error())
	require.True(t, IsMissingRole(err))
	require.False(t, IsMissingRole(errors.New("other")))
}

func TestNormalizeRole(t *testing.T) {
	role, err := NormalizeRole(" updater ")
	require.NoError(t, err)
	require.Equal(t, RoleUpdater, role)
	_, err = NormalizeRole("MINTER")
	require.ErrorIs(t, err, ErrUnknownRole)
}

func TestGrantAndRevoke(t *testing.T) {
	engine, emitter, admin := newTestEngine(t)
	updater := testAddress(0x01)

	require.Error(t, engine.RequireRole(RoleUpdater, updater))
	require.NoError(t, engine.Grant(admin, RoleUpdater, updater))
	require.NoError(t, engine.Grant(admin, RoleUpdater, updater))
	require.NoError(t, engine.RequireRole(RoleUpdater, updater))
	require.True(t, engine.HasRole("updater", updater))

	members, err := engine.Members(RoleUpdater)
	require.NoError(t, err)
	require.Equal(t, [][20]byte{updater}, members)

	require.NoError(t, engine.Revoke(admin, RoleUpdater, updater))
	require.NoError(t, engine.Revoke(admin, RoleUpdater, updater))
	require.False(t, engine.HasRole(RoleUpdater, updater))

	var granted, revoked int
	for _, evt := range emitter.events {
		switch evt.Type {
		case EventTypeRoleGranted:
			granted++
		case EventTypeRoleRevoked:
			revoked++
			require.Equal(t, RoleUpdater, evt.Attributes["role"])
		}
	}
	require.Equal(t, 2, granted, "bootstrap plus one grant")
	require.Equal(t, 1, revoked)
}

func TestGrantRequiresAdmin(t *testing.T) {
	engine, _, admin := newTestEngine(t)
	outsider := testAddress(0x05)

	err := engine.Grant(outsider, RolePauser, outsider)
	var missing *MissingRoleError
	require.ErrorAs(t, err, &missing)
	require.Equal(t, RoleDefaultAdmin, missing.Role)

	require.True(t, IsMissingRole(engine.Revoke(outsider, RoleDefaultAdmin, admin)))
	require.ErrorIs(t, engine.Grant(admin, RolePauser, [20]byte{}), ErrZeroAccount)
	require.ErrorIs(t, engine.Grant(admin, "ROOT", outsider), ErrUnknownRole)
}

func TestEngineWithoutState(t *testing.T) {
	engine := NewEngine()
	require.ErrorIs(t, engine.RequireRole(RoleUpdater, testAddress(0x01)), errNilState)
	require.False(t, engine.HasRole(RoleUpdater, testAddress(0x01)))
}
