package ledger

import (
	"encoding/hex"
	"math/big"

	"fundchain/core/types"
)

const (
	EventTypeMint     = "ledger.mint"
	EventTypeTransfer = "ledger.transfer"
	EventTypeApproval = "ledger.approval"
)

func NewMintEvent(token, to [20]byte, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeMint,
		Attributes: map[string]string{
			"token":  hex.EncodeToString(token[:]),
			"to":     hex.EncodeToString(to[:]),
			"amount": amount.String(),
		},
	}
}

func NewTransferEvent(token, from, to [20]byte, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeTransfer,
		Attributes: map[string]string{
			"token":  hex.EncodeToString(token[:]),
			"from":   hex.EncodeToString(from[:]),
			"to":     hex.EncodeToString(to[:]),
			"amount": amount.String(),
		},
	}
}

func NewApprovalEvent(token, owner, spender [20]byte, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeApproval,
		Attributes: map[string]string{
			"token":   hex.EncodeToString(token[:]),
			"owner":   hex.EncodeToString(owner[:]),
			"spender": hex.EncodeToString(spender[:]),
			"amount":  amount.String(),
		},
	}
}
