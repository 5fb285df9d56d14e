package crowdfund

import "errors"

// Input validation.
var (
	ErrZeroAddress                = errors.New("crowdfund: zero address")
	ErrZeroAmount                 = errors.New("crowdfund: zero amount")
	ErrZeroRequiredAmount         = errors.New("crowdfund: required amount must be positive")
	ErrZeroThresholds             = errors.New("crowdfund: project needs at least one threshold")
	ErrZeroVoteCooldown           = errors.New("crowdfund: vote cooldown must be positive")
	ErrZeroRequiredVotePercentage = errors.New("crowdfund: required vote percentage must be positive")
	ErrCantGoAbove10000           = errors.New("crowdfund: basis points cannot exceed 10000")
	ErrAmountTooSmall             = errors.New("crowdfund: amount too small")
	ErrInvalidProjectId           = errors.New("crowdfund: invalid project id")
	ErrInvalidThresholdId         = errors.New("crowdfund: invalid threshold id")
	ErrCantWithdrawToSameProject  = errors.New("crowdfund: cannot withdraw to the same project")
	ErrDifferentExchangeToken     = errors.New("crowdfund: projects use different exchange tokens")
)

// State preconditions.
var (
	ErrTokenNotSupported          = errors.New("crowdfund: token not supported")
	ErrProjectNotActive           = errors.New("crowdfund: project not active")
	ErrNotInVotingSession         = errors.New("crowdfund: not in voting session")
	ErrCanOnlyVoteOnce            = errors.New("crowdfund: can only vote once")
	ErrCantDeliberateWithoutVotes = errors.New("crowdfund: cannot deliberate without votes")
	ErrNoFundsToWithdraw          = errors.New("crowdfund: no funds to withdraw")
	ErrNoFeesToWithdraw           = errors.New("crowdfund: no fees to withdraw")
	ErrAllowanceNotApproved       = errors.New("crowdfund: allowance not approved")
)

// Authorisation.
var (
	ErrNotADonator     = errors.New("crowdfund: caller is not a donator")
	ErrNotProjectOwner = errors.New("crowdfund: caller is not the project owner")
)

var (
	errNilState  = errors.New("crowdfund: state not configured")
	errNilLedger = errors.New("crowdfund: ledger not configured")
)

// IsValidationError reports whether err is a malformed-input failure.
func IsValidationError(err error) bool {
	return matchesAny(err,
		ErrZeroAddress, ErrZeroAmount, ErrZeroRequiredAmount, ErrZeroThresholds,
		ErrZeroVoteCooldown, ErrZeroRequiredVotePercentage, ErrCantGoAbove10000,
		ErrAmountTooSmall, ErrInvalidProjectId, ErrInvalidThresholdId,
		ErrCantWithdrawToSameProject, ErrDifferentExchangeToken,
	)
}

// IsPreconditionError reports whether err is a state-precondition failure.
func IsPreconditionError(err error) bool {
	return matchesAny(err,
		ErrTokenNotSupported, ErrProjectNotActive, ErrNotInVotingSession,
		ErrCanOnlyVoteOnce, ErrCantDeliberateWithoutVotes, ErrNoFundsToWithdraw,
		ErrNoFeesToWithdraw, ErrAllowanceNotApproved,
	)
}

// IsAuthorizationError reports whether err is a caller-identity failure owned
// by this module. Role failures are reported by the access package.
func IsAuthorizationError(err error) bool {
	return matchesAny(err, ErrNotADonator, ErrNotProjectOwner)
}

func matchesAny(err error, targets ...error) bool {
	if err == nil {
		return false
	}
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
