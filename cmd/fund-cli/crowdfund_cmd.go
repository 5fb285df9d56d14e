package main

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

func runTokenCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		return printError(stderr, "usage: token list | token add --token <addr> | token supported --token <addr>")
	}
	switch args[0] {
	case "list":
		return send(stdout, stderr, http.MethodGet, "/v1/tokens", nil)
	case "add", "supported":
		fs := newFlagSet("token "+args[0], stderr)
		token := fs.String("token", "", "token account")
		if err := fs.Parse(args[1:]); err != nil {
			return 1
		}
		if *token == "" {
			return printError(stderr, "--token is required")
		}
		if args[0] == "add" {
			return send(stdout, stderr, http.MethodPost, "/v1/tokens", map[string]string{"token": *token})
		}
		return send(stdout, stderr, http.MethodGet, "/v1/tokens/"+url.PathEscape(*token), nil)
	default:
		return printError(stderr, "unknown token subcommand: "+args[0])
	}
}

func runProjectCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		return printError(stderr, "usage: project create|get|list|thresholds|status|cooldown|fee|transfer")
	}
	switch args[0] {
	case "create":
		return runProjectCreate(args[1:], stdout, stderr)
	case "list":
		fs := newFlagSet("project list", stderr)
		offset := fs.Uint64("offset", 0, "first project id")
		limit := fs.Uint64("limit", 50, "page size")
		if err := fs.Parse(args[1:]); err != nil {
			return 1
		}
		return send(stdout, stderr, http.MethodGet, fmt.Sprintf("/v1/projects?offset=%d&limit=%d", *offset, *limit), nil)
	case "get", "thresholds":
		fs := newFlagSet("project "+args[0], stderr)
		id := fs.Uint64("project", 0, "project id")
		if err := fs.Parse(args[1:]); err != nil {
			return 1
		}
		path := fmt.Sprintf("/v1/projects/%d", *id)
		if args[0] == "thresholds" {
			path += "/thresholds"
		}
		return send(stdout, stderr, http.MethodGet, path, nil)
	case "status":
		fs := newFlagSet("project status", stderr)
		id := fs.Uint64("project", 0, "project id")
		active := fs.Bool("active", true, "accept donations")
		if err := fs.Parse(args[1:]); err != nil {
			return 1
		}
		return send(stdout, stderr, http.MethodPost, fmt.Sprintf("/v1/projects/%d/status", *id), map[string]bool{"active": *active})
	case "cooldown":
		fs := newFlagSet("project cooldown", stderr)
		id := fs.Uint64("project", 0, "project id")
		seconds := fs.Uint64("seconds", 0, "vote cooldown in seconds")
		if err := fs.Parse(args[1:]); err != nil {
			return 1
		}
		return send(stdout, stderr, http.MethodPost, fmt.Sprintf("/v1/projects/%d/cooldown", *id), map[string]uint64{"seconds": *seconds})
	case "fee":
		fs := newFlagSet("project fee", stderr)
		id := fs.Uint64("project", 0, "project id")
		bps := fs.Uint("bps", 0, "donation fee in basis points")
		if err := fs.Parse(args[1:]); err != nil {
			return 1
		}
		if *bps > 10_000 {
			return printError(stderr, "--bps must be <= 10000")
		}
		return send(stdout, stderr, http.MethodPost, fmt.Sprintf("/v1/projects/%d/fee", *id), map[string]uint{"bps": *bps})
	case "transfer":
		fs := newFlagSet("project transfer", stderr)
		from := fs.Uint64("from", 0, "source project id")
		to := fs.Uint64("to", 0, "destination project id")
		if err := fs.Parse(args[1:]); err != nil {
			return 1
		}
		return send(stdout, stderr, http.MethodPost, fmt.Sprintf("/v1/projects/%d/transfer", *from), map[string]uint64{"toProjectId": *to})
	default:
		return printError(stderr, "unknown project subcommand: "+args[0])
	}
}

func runProjectCreate(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("project create", stderr)
	var (
		owner, token, name, asso, description, team, required, budgets string
		votePct, feeBps                                                 uint
		cooldown                                                        uint64
	)
	fs.StringVar(&owner, "owner", "", "project owner account")
	fs.StringVar(&token, "exchange-token", "", "accepted token account")
	fs.StringVar(&name, "name", "", "project name")
	fs.StringVar(&asso, "asso", "", "association name")
	fs.StringVar(&description, "description", "", "project description")
	fs.StringVar(&team, "team", "", "comma separated team members")
	fs.StringVar(&required, "required", "", "required amount in base units")
	fs.StringVar(&budgets, "budgets", "", "comma separated threshold budgets")
	fs.UintVar(&votePct, "vote-bps", 5000, "approval ratio to exceed, in basis points")
	fs.UintVar(&feeBps, "fee-bps", 0, "donation fee in basis points")
	fs.Uint64Var(&cooldown, "cooldown", 1, "vote cooldown in seconds")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	for flagName, v := range map[string]string{"--owner": owner, "--exchange-token": token, "--required": required, "--budgets": budgets} {
		if strings.TrimSpace(v) == "" {
			return printError(stderr, flagName+" is required")
		}
	}
	body := map[string]interface{}{
		"owner":                  owner,
		"exchangeToken":          token,
		"name":                   name,
		"assoName":               asso,
		"description":            description,
		"teamMembers":            splitList(team),
		"requiredAmount":         required,
		"requiredVotePercentage": votePct,
		"donationFeeBps":         feeBps,
		"voteCooldown":           cooldown,
		"thresholdBudgets":       splitList(budgets),
	}
	return send(stdout, stderr, http.MethodPost, "/v1/projects", body)
}

func runDonate(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("donate", stderr)
	id := fs.Uint64("project", 0, "project id")
	amount := fs.String("amount", "", "gross amount in base units")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *amount == "" {
		return printError(stderr, "--amount is required")
	}
	return send(stdout, stderr, http.MethodPost, fmt.Sprintf("/v1/projects/%d/donations", *id), map[string]string{"amount": *amount})
}

func runVote(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("vote", stderr)
	id := fs.Uint64("project", 0, "project id")
	choice := fs.String("choice", "", "yes or no")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	var positive bool
	switch strings.ToLower(strings.TrimSpace(*choice)) {
	case "yes", "y", "true":
		positive = true
	case "no", "n", "false":
	default:
		return printError(stderr, "--choice must be yes or no")
	}
	return send(stdout, stderr, http.MethodPost, fmt.Sprintf("/v1/projects/%d/votes", *id), map[string]bool{"choice": positive})
}

func runEndVote(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("end-vote", stderr)
	id := fs.Uint64("project", 0, "project id")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	return send(stdout, stderr, http.MethodPost, fmt.Sprintf("/v1/projects/%d/votes/end", *id), nil)
}

func runWithdraw(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("withdraw", stderr)
	id := fs.Uint64("project", 0, "project id")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	return send(stdout, stderr, http.MethodPost, fmt.Sprintf("/v1/projects/%d/withdraw", *id), nil)
}

func runFeesCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || (args[0] != "get" && args[0] != "withdraw") {
		return printError(stderr, "usage: fees get|withdraw --token <addr>")
	}
	fs := newFlagSet("fees "+args[0], stderr)
	token := fs.String("token", "", "token account")
	if err := fs.Parse(args[1:]); err != nil {
		return 1
	}
	if *token == "" {
		return printError(stderr, "--token is required")
	}
	path := "/v1/fees/" + url.PathEscape(*token)
	if args[0] == "withdraw" {
		return send(stdout, stderr, http.MethodPost, path+"/withdraw", nil)
	}
	return send(stdout, stderr, http.MethodGet, path, nil)
}

func splitList(raw string) []string {
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
