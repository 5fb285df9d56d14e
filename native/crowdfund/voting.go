package crowdfund

import (
	"fmt"
	"math/big"

	"fundchain/native/access"
)

// Vote records the caller's ballot on the project's current threshold. Only
// donors may vote and each donor votes at most once per threshold.
func (e *Engine) Vote(caller [20]byte, projectID uint64, choice bool) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.guard(); err != nil {
		return err
	}
	project, err := e.loadProject(projectID)
	if err != nil {
		return err
	}
	donated, err := e.state.CrowdfundDonation(caller, projectID)
	if err != nil {
		return err
	}
	if donated == nil || donated.Sign() <= 0 {
		return ErrNotADonator
	}
	if project.AllThresholdsPassed() {
		return ErrNotInVotingSession
	}
	index := project.CurrentThreshold
	threshold, err := e.loadThreshold(projectID, index)
	if err != nil {
		return err
	}
	if !threshold.VoteSession.IsVotingInSession {
		return ErrNotInVotingSession
	}
	ballot, err := e.state.CrowdfundBallot(caller, projectID, index)
	if err != nil {
		return err
	}
	if ballot.Voted {
		return ErrCanOnlyVoteOnce
	}
	if err := e.state.CrowdfundPutBallot(caller, projectID, index, Ballot{Voted: true, Choice: choice}); err != nil {
		return err
	}
	if choice {
		threshold.VoteSession.PositiveVotes++
	} else {
		threshold.VoteSession.NegativeVotes++
	}
	if err := e.state.CrowdfundPutThreshold(projectID, index, threshold); err != nil {
		return err
	}
	e.emit(NewVoteCastEvent(project, caller, index, choice))
	return nil
}

// EndVoting closes the current threshold's session. The threshold passes only
// when the positive ratio strictly exceeds the project's required percentage;
// a pass releases the budget and may immediately open the next threshold's
// session when funding already covers it.
func (e *Engine) EndVoting(caller [20]byte, projectID uint64) (Outcome, error) {
	if err := e.ready(); err != nil {
		return Outcome{}, err
	}
	if err := e.requireRole(access.RoleUpdater, caller); err != nil {
		return Outcome{}, err
	}
	if err := e.guard(); err != nil {
		return Outcome{}, err
	}
	project, err := e.loadProject(projectID)
	if err != nil {
		return Outcome{}, err
	}
	if project.AllThresholdsPassed() {
		return Outcome{}, ErrNotInVotingSession
	}
	index := project.CurrentThreshold
	threshold, err := e.loadThreshold(projectID, index)
	if err != nil {
		return Outcome{}, err
	}
	session := threshold.VoteSession
	if !session.IsVotingInSession {
		return Outcome{}, ErrNotInVotingSession
	}
	if session.PositiveVotes == 0 && session.NegativeVotes == 0 {
		return Outcome{}, ErrCantDeliberateWithoutVotes
	}
	ratio, err := ratioBps(session.PositiveVotes, session.NegativeVotes)
	if err != nil {
		return Outcome{}, err
	}
	outcome := Outcome{
		ProjectID:      projectID,
		ThresholdIndex: index,
		PositiveVotes:  session.PositiveVotes,
		NegativeVotes:  session.NegativeVotes,
		RatioBps:       ratio,
		Passed:         ratio > uint64(project.RequiredVotePercentage),
		Released:       big.NewInt(0),
	}

	threshold.VoteSession.IsVotingInSession = false
	if err := e.state.CrowdfundPutThreshold(projectID, index, threshold); err != nil {
		return Outcome{}, err
	}

	var opened *sessionOpening
	if outcome.Passed {
		project.CurrentThreshold++
		project.AvailableToWithdraw = new(big.Int).Add(project.AvailableToWithdraw, threshold.Budget)
		outcome.Released = cloneBigInt(threshold.Budget)
		opened, err = e.maybeOpenSession(project)
		if err != nil {
			return Outcome{}, err
		}
		if err := e.storeProject(project); err != nil {
			return Outcome{}, err
		}
	}

	e.emit(NewDeliberatedEvent(outcome))
	if opened != nil {
		e.emit(NewSessionStartedEvent(project, opened.index, opened.cumulative))
	}
	return outcome, nil
}

// HasVoted reports whether the voter cast a ballot on the threshold,
// regardless of its direction.
func (e *Engine) HasVoted(voter [20]byte, projectID, index uint64) (bool, error) {
	ballot, err := e.Ballot(voter, projectID, index)
	if err != nil {
		return false, err
	}
	return ballot.Voted, nil
}

// Ballot returns the recorded vote of voter on the threshold.
func (e *Engine) Ballot(voter [20]byte, projectID, index uint64) (Ballot, error) {
	if err := e.ready(); err != nil {
		return Ballot{}, err
	}
	project, err := e.loadProject(projectID)
	if err != nil {
		return Ballot{}, err
	}
	if index >= project.NbOfThresholds {
		return Ballot{}, fmt.Errorf("%w: project %d threshold %d", ErrInvalidThresholdId, projectID, index)
	}
	return e.state.CrowdfundBallot(voter, projectID, index)
}

func ratioBps(positive, negative uint64) (uint64, error) {
	total := new(big.Int).Add(new(big.Int).SetUint64(positive), new(big.Int).SetUint64(negative))
	if total.Sign() == 0 {
		return 0, ErrCantDeliberateWithoutVotes
	}
	ratio := new(big.Int).Mul(new(big.Int).SetUint64(positive), big.NewInt(BasisPointsDenominator))
	ratio.Quo(ratio, total)
	return ratio.Uint64(), nil
}
