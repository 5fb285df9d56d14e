package state

import "strings"

// SetPaused stores the pause flag for module.
func (m *Manager) SetPaused(module string, paused bool) error {
	return m.put(prefixedKey(pausePrefix, []byte(strings.TrimSpace(module))), paused)
}

// IsPaused reports the stored pause flag. Read errors report false.
func (m *Manager) IsPaused(module string) bool {
	var paused bool
	if _, err := m.get(prefixedKey(pausePrefix, []byte(strings.TrimSpace(module))), &paused); err != nil {
		return false
	}
	return paused
}
