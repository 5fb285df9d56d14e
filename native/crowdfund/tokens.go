package crowdfund

import "fundchain/native/access"

// AddToken admits an asset to the supported set. Re-adding a supported token
// is a no-op.
func (e *Engine) AddToken(caller [20]byte, token [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.requireRole(access.RoleUpdater, caller); err != nil {
		return err
	}
	if isZeroAddress(token) {
		return ErrZeroAddress
	}
	supported, err := e.state.CrowdfundTokenSupported(token)
	if err != nil {
		return err
	}
	if supported {
		return nil
	}
	if err := e.state.CrowdfundAddToken(token); err != nil {
		return err
	}
	e.emit(NewTokenAddedEvent(token))
	return nil
}

// IsTokenSupported reports whether token may back a project.
func (e *Engine) IsTokenSupported(token [20]byte) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	return e.state.CrowdfundTokenSupported(token)
}

// SupportedTokens lists the supported assets.
func (e *Engine) SupportedTokens() ([][20]byte, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.state.CrowdfundTokens()
}
