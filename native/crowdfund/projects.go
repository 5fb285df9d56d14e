package crowdfund

import (
	"fmt"
	"math/big"

	"fundchain/native/access"
)

// CreateProject registers a new project with its ordered thresholds and
// returns its index. Thresholds are stored with closed vote sessions.
func (e *Engine) CreateProject(caller [20]byte, data ProjectData, budgets []*big.Int) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if err := e.requireRole(access.RoleUpdater, caller); err != nil {
		return 0, err
	}
	if err := e.guard(); err != nil {
		return 0, err
	}
	supported, err := e.state.CrowdfundTokenSupported(data.ExchangeToken)
	if err != nil {
		return 0, err
	}
	if !supported {
		return 0, ErrTokenNotSupported
	}
	if len(budgets) == 0 {
		return 0, ErrZeroThresholds
	}
	if data.RequiredAmount == nil || data.RequiredAmount.Sign() <= 0 {
		return 0, ErrZeroRequiredAmount
	}
	if isZeroAddress(data.Owner) {
		return 0, ErrZeroAddress
	}
	if data.VoteCooldown == 0 {
		return 0, ErrZeroVoteCooldown
	}
	if data.RequiredVotePercentage == 0 {
		return 0, ErrZeroRequiredVotePercentage
	}
	if data.RequiredVotePercentage > BasisPointsDenominator || data.DonationFeeBps > BasisPointsDenominator {
		return 0, ErrCantGoAbove10000
	}
	for i, budget := range budgets {
		if budget == nil || budget.Sign() <= 0 {
			return 0, fmt.Errorf("%w: threshold %d budget", ErrZeroAmount, i)
		}
	}

	id, err := e.state.CrowdfundProjectCount()
	if err != nil {
		return 0, err
	}
	now := e.nowFn()
	project := &Project{
		ID:                     id,
		Owner:                  data.Owner,
		ExchangeToken:          data.ExchangeToken,
		Name:                   sanitizeText(data.Name),
		AssoName:               sanitizeText(data.AssoName),
		Description:            sanitizeText(data.Description),
		TeamMembers:            sanitizeMembers(data.TeamMembers),
		RequiredAmount:         new(big.Int).Set(data.RequiredAmount),
		CurrentAmount:          big.NewInt(0),
		AvailableToWithdraw:    big.NewInt(0),
		CurrentThreshold:       0,
		NbOfThresholds:         uint64(len(budgets)),
		RequiredVotePercentage: data.RequiredVotePercentage,
		DonationFeeBps:         data.DonationFeeBps,
		VoteCooldown:           data.VoteCooldown,
		IsActive:               true,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	for i, budget := range budgets {
		if err := e.state.CrowdfundPutThreshold(id, uint64(i), &Threshold{Budget: new(big.Int).Set(budget)}); err != nil {
			return 0, err
		}
	}
	if err := e.state.CrowdfundPutProject(project); err != nil {
		return 0, err
	}
	if err := e.state.CrowdfundSetProjectCount(id + 1); err != nil {
		return 0, err
	}
	e.emit(NewProjectCreatedEvent(project))
	return id, nil
}

// UpdateStatus activates or deactivates a project.
func (e *Engine) UpdateStatus(caller [20]byte, projectID uint64, active bool) error {
	project, err := e.updaterProject(caller, projectID)
	if err != nil {
		return err
	}
	project.IsActive = active
	if err := e.storeProject(project); err != nil {
		return err
	}
	e.emit(NewStatusUpdatedEvent(project))
	return nil
}

// UpdateVoteCooldown changes the stored vote cooldown.
func (e *Engine) UpdateVoteCooldown(caller [20]byte, projectID uint64, seconds uint64) error {
	project, err := e.updaterProject(caller, projectID)
	if err != nil {
		return err
	}
	project.VoteCooldown = seconds
	if err := e.storeProject(project); err != nil {
		return err
	}
	e.emit(NewCooldownUpdatedEvent(project))
	return nil
}

// SetDonationFee changes the fee taken from future donations.
func (e *Engine) SetDonationFee(caller [20]byte, projectID uint64, bps uint32) error {
	project, err := e.updaterProject(caller, projectID)
	if err != nil {
		return err
	}
	if bps > BasisPointsDenominator {
		return ErrCantGoAbove10000
	}
	project.DonationFeeBps = bps
	if err := e.storeProject(project); err != nil {
		return err
	}
	e.emit(NewFeeUpdatedEvent(project))
	return nil
}

func (e *Engine) updaterProject(caller [20]byte, projectID uint64) (*Project, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.requireRole(access.RoleUpdater, caller); err != nil {
		return nil, err
	}
	return e.loadProject(projectID)
}

// Project returns a copy of the project.
func (e *Engine) Project(projectID uint64) (*Project, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	project, err := e.loadProject(projectID)
	if err != nil {
		return nil, err
	}
	return project.Clone(), nil
}

// Threshold returns a copy of the threshold at index.
func (e *Engine) Threshold(projectID, index uint64) (*Threshold, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	project, err := e.loadProject(projectID)
	if err != nil {
		return nil, err
	}
	if index >= project.NbOfThresholds {
		return nil, fmt.Errorf("%w: project %d threshold %d", ErrInvalidThresholdId, projectID, index)
	}
	threshold, err := e.loadThreshold(projectID, index)
	if err != nil {
		return nil, err
	}
	return threshold.Clone(), nil
}

// Thresholds returns every threshold of the project in order.
func (e *Engine) Thresholds(projectID uint64) ([]*Threshold, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	project, err := e.loadProject(projectID)
	if err != nil {
		return nil, err
	}
	out := make([]*Threshold, 0, project.NbOfThresholds)
	for i := uint64(0); i < project.NbOfThresholds; i++ {
		threshold, err := e.loadThreshold(projectID, i)
		if err != nil {
			return nil, err
		}
		out = append(out, threshold.Clone())
	}
	return out, nil
}

// ProjectCount returns the number of registered projects.
func (e *Engine) ProjectCount() (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	return e.state.CrowdfundProjectCount()
}

// Projects returns up to limit projects starting at offset.
func (e *Engine) Projects(offset, limit uint64) ([]*Project, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	count, err := e.state.CrowdfundProjectCount()
	if err != nil {
		return nil, err
	}
	if offset >= count || limit == 0 {
		return []*Project{}, nil
	}
	end := count
	if limit < count-offset {
		end = offset + limit
	}
	out := make([]*Project, 0, end-offset)
	for id := offset; id < end; id++ {
		project, err := e.loadProject(id)
		if err != nil {
			return nil, err
		}
		out = append(out, project.Clone())
	}
	return out, nil
}

// cumulativeBudget sums the budgets of thresholds[0..index].
func (e *Engine) cumulativeBudget(projectID, index uint64) (*big.Int, error) {
	total := big.NewInt(0)
	for i := uint64(0); i <= index; i++ {
		threshold, err := e.loadThreshold(projectID, i)
		if err != nil {
			return nil, err
		}
		total.Add(total, threshold.Budget)
	}
	return total, nil
}
