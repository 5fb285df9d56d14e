package rpc

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"fundchain/core"
	"fundchain/crypto"
	"fundchain/native/access"
	"fundchain/native/crowdfund"
)

const (
	defaultProjectPage = 50
	maxProjectPage     = 500
)

type infoResponse struct {
	Vault       Account `json:"vault"`
	MinDonation string  `json:"minDonation"`
	Root        string  `json:"root"`
	DevMode     bool    `json:"devMode"`
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	root := s.exec.Root().Hex()
	s.view(w, r, func(ctx *core.Context) (interface{}, error) {
		return infoResponse{
			Vault:       ctx.Crowdfund.Vault(),
			MinDonation: amountOf(ctx.Crowdfund.MinDonation()),
			Root:        root,
			DevMode:     s.devMode,
		}, nil
	})
}

// Tokens

type tokenRequest struct {
	Token Account `json:"token"`
}

func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	s.view(w, r, func(ctx *core.Context) (interface{}, error) {
		tokens, err := ctx.Crowdfund.SupportedTokens()
		if err != nil {
			return nil, err
		}
		out := make([]Account, len(tokens))
		for i, t := range tokens {
			out[i] = t
		}
		return map[string]interface{}{"tokens": out}, nil
	})
}

func (s *Server) handleTokenSupported(w http.ResponseWriter, r *http.Request) {
	token, err := accountParam(r, "token")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.view(w, r, func(ctx *core.Context) (interface{}, error) {
		ok, err := ctx.Crowdfund.IsTokenSupported(token)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"token": Account(token), "supported": ok}, nil
	})
}

func (s *Server) handleAddToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.call(w, r, "crowdfund.addToken", func(ctx *core.Context, caller [20]byte) (interface{}, error) {
		return nil, ctx.Crowdfund.AddToken(caller, req.Token)
	})
}

// Projects

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	data, budgets := req.data()
	s.call(w, r, "crowdfund.createProject", func(ctx *core.Context, caller [20]byte) (interface{}, error) {
		id, err := ctx.Crowdfund.CreateProject(caller, data, budgets)
		if err != nil {
			return nil, err
		}
		return map[string]uint64{"projectId": id}, nil
	})
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	offset, err := queryUint(r, "offset", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := queryUint(r, "limit", defaultProjectPage)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if limit == 0 || limit > maxProjectPage {
		limit = maxProjectPage
	}
	s.view(w, r, func(ctx *core.Context) (interface{}, error) {
		total, err := ctx.Crowdfund.ProjectCount()
		if err != nil {
			return nil, err
		}
		projects, err := ctx.Crowdfund.Projects(offset, limit)
		if err != nil {
			return nil, err
		}
		views := make([]ProjectView, len(projects))
		for i, p := range projects {
			views[i] = projectView(p)
		}
		return map[string]interface{}{"total": total, "offset": offset, "projects": views}, nil
	})
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.view(w, r, func(ctx *core.Context) (interface{}, error) {
		p, err := ctx.Crowdfund.Project(id)
		if err != nil {
			return nil, err
		}
		return projectView(p), nil
	})
}

func (s *Server) handleListThresholds(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.view(w, r, func(ctx *core.Context) (interface{}, error) {
		thresholds, err := ctx.Crowdfund.Thresholds(id)
		if err != nil {
			return nil, err
		}
		views := make([]ThresholdView, len(thresholds))
		for i, t := range thresholds {
			views[i] = thresholdView(uint64(i), t)
		}
		return map[string]interface{}{"projectId": id, "thresholds": views}, nil
	})
}

func (s *Server) handleGetThreshold(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	index, err := uintParam(r, "index")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.view(w, r, func(ctx *core.Context) (interface{}, error) {
		t, err := ctx.Crowdfund.Threshold(id, index)
		if err != nil {
			return nil, err
		}
		return thresholdView(index, t), nil
	})
}

type ballotResponse struct {
	ProjectID uint64  `json:"projectId"`
	Index     uint64  `json:"index"`
	Voter     Account `json:"voter"`
	Voted     bool    `json:"voted"`
	Choice    bool    `json:"choice"`
}

func (s *Server) handleGetBallot(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	index, err := uintParam(r, "index")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	voter, err := accountParam(r, "voter")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.view(w, r, func(ctx *core.Context) (interface{}, error) {
		b, err := ctx.Crowdfund.Ballot(voter, id, index)
		if err != nil {
			return nil, err
		}
		return ballotResponse{ProjectID: id, Index: index, Voter: voter, Voted: b.Voted, Choice: b.Choice}, nil
	})
}

func (s *Server) handleGetDonation(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	donor, err := accountParam(r, "donor")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.view(w, r, func(ctx *core.Context) (interface{}, error) {
		amount, err := ctx.Crowdfund.Donation(donor, id)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"projectId": id,
			"donor":     Account(donor),
			"amount":    amountOf(amount),
			"isDonator": amount != nil && amount.Sign() > 0,
		}, nil
	})
}

type statusRequest struct {
	Active bool `json:"active"`
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req statusRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.call(w, r, "crowdfund.updateStatus", func(ctx *core.Context, caller [20]byte) (interface{}, error) {
		return nil, ctx.Crowdfund.UpdateStatus(caller, id, req.Active)
	})
}

type cooldownRequest struct {
	Seconds uint64 `json:"seconds"`
}

func (s *Server) handleUpdateCooldown(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req cooldownRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.call(w, r, "crowdfund.updateVoteCooldown", func(ctx *core.Context, caller [20]byte) (interface{}, error) {
		return nil, ctx.Crowdfund.UpdateVoteCooldown(caller, id, req.Seconds)
	})
}

type feeRequest struct {
	Bps uint32 `json:"bps"`
}

func (s *Server) handleSetFee(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req feeRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.call(w, r, "crowdfund.setDonationFee", func(ctx *core.Context, caller [20]byte) (interface{}, error) {
		return nil, ctx.Crowdfund.SetDonationFee(caller, id, req.Bps)
	})
}

// Donations and votes

type donateRequest struct {
	Amount Amount `json:"amount"`
}

func (s *Server) handleDonate(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req donateRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.call(w, r, "crowdfund.donate", func(ctx *core.Context, caller [20]byte) (interface{}, error) {
		return nil, ctx.Crowdfund.Donate(caller, id, req.Amount.BigInt())
	})
}

type voteRequest struct {
	Choice *bool `json:"choice"`
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req voteRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Choice == nil {
		s.writeError(w, r, fmt.Errorf("%w: choice required", errBadRequest))
		return
	}
	s.call(w, r, "crowdfund.vote", func(ctx *core.Context, caller [20]byte) (interface{}, error) {
		return nil, ctx.Crowdfund.Vote(caller, id, *req.Choice)
	})
}

func (s *Server) handleEndVoting(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.call(w, r, "crowdfund.endVoting", func(ctx *core.Context, caller [20]byte) (interface{}, error) {
		outcome, err := ctx.Crowdfund.EndVoting(caller, id)
		if err != nil {
			return nil, err
		}
		return outcomeView(outcome), nil
	})
}

// Settlement

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.call(w, r, "crowdfund.withdraw", func(ctx *core.Context, caller [20]byte) (interface{}, error) {
		amount, err := ctx.Crowdfund.Withdraw(caller, id)
		if err != nil {
			return nil, err
		}
		return map[string]string{"amount": amountOf(amount)}, nil
	})
}

type transferRequest struct {
	ToProjectID uint64 `json:"toProjectId"`
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req transferRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.call(w, r, "crowdfund.withdrawToOtherProject", func(ctx *core.Context, caller [20]byte) (interface{}, error) {
		amount, err := ctx.Crowdfund.WithdrawToOtherProject(caller, id, req.ToProjectID)
		if err != nil {
			return nil, err
		}
		return map[string]string{"amount": amountOf(amount)}, nil
	})
}

func (s *Server) handleFeesAvailable(w http.ResponseWriter, r *http.Request) {
	token, err := accountParam(r, "token")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.view(w, r, func(ctx *core.Context) (interface{}, error) {
		amount, err := ctx.Crowdfund.FeesAvailable(token)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"token": Account(token), "amount": amountOf(amount)}, nil
	})
}

func (s *Server) handleWithdrawFees(w http.ResponseWriter, r *http.Request) {
	token, err := accountParam(r, "token")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.call(w, r, "crowdfund.withdrawFees", func(ctx *core.Context, caller [20]byte) (interface{}, error) {
		amount, err := ctx.Crowdfund.WithdrawFees(caller, token)
		if err != nil {
			return nil, err
		}
		return map[string]string{"amount": amountOf(amount)}, nil
	})
}

// Ledger

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	token, err := accountParam(r, "token")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	owner, err := accountParam(r, "owner")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.view(w, r, func(ctx *core.Context) (interface{}, error) {
		bal, err := ctx.Ledger.Balance(token, owner)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"token": Account(token), "owner": Account(owner), "balance": amountOf(bal)}, nil
	})
}

func (s *Server) handleAllowance(w http.ResponseWriter, r *http.Request) {
	token, err := accountParam(r, "token")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	owner, err := accountParam(r, "owner")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	spender, err := accountParam(r, "spender")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.view(w, r, func(ctx *core.Context) (interface{}, error) {
		allowance, err := ctx.Ledger.Allowance(token, owner, spender)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"token":     Account(token),
			"owner":     Account(owner),
			"spender":   Account(spender),
			"allowance": amountOf(allowance),
		}, nil
	})
}

type approveRequest struct {
	Token Account `json:"token"`
	// Spender defaults to the crowdfund vault.
	Spender *Account `json:"spender,omitempty"`
	Amount  Amount   `json:"amount"`
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.call(w, r, "ledger.approve", func(ctx *core.Context, caller [20]byte) (interface{}, error) {
		spender := ctx.Crowdfund.Vault()
		if req.Spender != nil {
			spender = *req.Spender
		}
		return nil, ctx.Ledger.Approve(req.Token, caller, spender, req.Amount.BigInt())
	})
}

type mintRequest struct {
	Token  Account `json:"token"`
	To     Account `json:"to"`
	Amount Amount  `json:"amount"`
}

// handleMint credits test balances. It is only routed in dev mode.
func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	if !s.devMode {
		writeProblem(w, r, http.StatusNotFound, "not_found", "mint is only available in dev mode")
		return
	}
	var req mintRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.call(w, r, "ledger.mint", func(ctx *core.Context, _ [20]byte) (interface{}, error) {
		return nil, ctx.Ledger.Mint(req.Token, req.To, req.Amount.BigInt())
	})
}

// Admin

type moduleRequest struct {
	Module string `json:"module"`
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	var req moduleRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.call(w, r, "admin.pause", func(ctx *core.Context, caller [20]byte) (interface{}, error) {
		return nil, ctx.Pauses.Pause(caller, req.Module)
	})
}

func (s *Server) handleUnpause(w http.ResponseWriter, r *http.Request) {
	var req moduleRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.call(w, r, "admin.unpause", func(ctx *core.Context, caller [20]byte) (interface{}, error) {
		return nil, ctx.Pauses.Unpause(caller, req.Module)
	})
}

func (s *Server) handlePauseStatus(w http.ResponseWriter, r *http.Request) {
	module := chi.URLParam(r, "module")
	if module == "" {
		module = crowdfund.ModuleName
	}
	s.view(w, r, func(ctx *core.Context) (interface{}, error) {
		return map[string]interface{}{"module": module, "paused": ctx.Pauses.IsPaused(module)}, nil
	})
}

type roleRequest struct {
	Role    string  `json:"role"`
	Account Account `json:"account"`
}

func (s *Server) handleGrantRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.call(w, r, "admin.grantRole", func(ctx *core.Context, caller [20]byte) (interface{}, error) {
		return nil, ctx.Access.Grant(caller, req.Role, req.Account)
	})
}

func (s *Server) handleRevokeRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.call(w, r, "admin.revokeRole", func(ctx *core.Context, caller [20]byte) (interface{}, error) {
		return nil, ctx.Access.Revoke(caller, req.Role, req.Account)
	})
}

func (s *Server) handleRoleMembers(w http.ResponseWriter, r *http.Request) {
	role, err := access.NormalizeRole(chi.URLParam(r, "role"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.view(w, r, func(ctx *core.Context) (interface{}, error) {
		members, err := ctx.Access.Members(role)
		if err != nil {
			return nil, err
		}
		out := make([]string, len(members))
		for i, m := range members {
			out[i] = crypto.FormatAccount(m)
		}
		return map[string]interface{}{"role": role, "members": out}, nil
	})
}
