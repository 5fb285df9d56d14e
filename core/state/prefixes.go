package state

var (
	rolePrefix  = []byte("access/role/")
	pausePrefix = []byte("common/pause/")

	ledgerBalancePrefix   = []byte("ledger/balance/")
	ledgerAllowancePrefix = []byte("ledger/allowance/")
	ledgerSupplyPrefix    = []byte("ledger/supply/")

	crowdfundTokenPrefix     = []byte("crowdfund/token/")
	crowdfundProjectPrefix   = []byte("crowdfund/project/")
	crowdfundThresholdPrefix = []byte("crowdfund/threshold/")
	crowdfundDonationPrefix  = []byte("crowdfund/donation/")
	crowdfundBallotPrefix    = []byte("crowdfund/ballot/")
	crowdfundFeePoolPrefix   = []byte("crowdfund/fees/")

	// Singleton records go through the KV helpers, which hash the key.
	crowdfundTokenListKey    = []byte("crowdfund/token-list")
	crowdfundProjectCountKey = []byte("crowdfund/project-count")
	eventSequenceKey         = []byte("events/sequence")
)
