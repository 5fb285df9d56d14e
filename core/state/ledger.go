package state

import "math/big"

func (m *Manager) LedgerBalance(token, owner [20]byte) (*big.Int, error) {
	return m.loadBigInt(prefixedKey(ledgerBalancePrefix, token[:], owner[:]))
}

func (m *Manager) LedgerSetBalance(token, owner [20]byte, amount *big.Int) error {
	return m.writeBigInt(prefixedKey(ledgerBalancePrefix, token[:], owner[:]), amount)
}

func (m *Manager) LedgerAllowance(token, owner, spender [20]byte) (*big.Int, error) {
	return m.loadBigInt(prefixedKey(ledgerAllowancePrefix, token[:], owner[:], spender[:]))
}

func (m *Manager) LedgerSetAllowance(token, owner, spender [20]byte, amount *big.Int) error {
	return m.writeBigInt(prefixedKey(ledgerAllowancePrefix, token[:], owner[:], spender[:]), amount)
}

func (m *Manager) LedgerSupply(token [20]byte) (*big.Int, error) {
	return m.loadBigInt(prefixedKey(ledgerSupplyPrefix, token[:]))
}

func (m *Manager) LedgerSetSupply(token [20]byte, amount *big.Int) error {
	return m.writeBigInt(prefixedKey(ledgerSupplyPrefix, token[:]), amount)
}
