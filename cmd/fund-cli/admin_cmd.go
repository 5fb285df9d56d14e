package main

import (
	"io"
	"net/http"
	"net/url"
)

func runLedgerCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		return printError(stderr, "usage: ledger mint|approve|balance|allowance")
	}
	fs := newFlagSet("ledger "+args[0], stderr)
	token := fs.String("token", "", "token account")
	owner := fs.String("owner", "", "owner account (balance, allowance)")
	spender := fs.String("spender", "", "spender account; approve defaults to the crowdfund vault")
	to := fs.String("to", "", "recipient (mint)")
	amount := fs.String("amount", "", "amount in base units")
	if err := fs.Parse(args[1:]); err != nil {
		return 1
	}
	if *token == "" {
		return printError(stderr, "--token is required")
	}
	switch args[0] {
	case "mint":
		if *to == "" || *amount == "" {
			return printError(stderr, "--to and --amount are required")
		}
		return send(stdout, stderr, http.MethodPost, "/v1/ledger/mint", map[string]string{"token": *token, "to": *to, "amount": *amount})
	case "approve":
		if *amount == "" {
			return printError(stderr, "--amount is required")
		}
		body := map[string]string{"token": *token, "amount": *amount}
		if *spender != "" {
			body["spender"] = *spender
		}
		return send(stdout, stderr, http.MethodPost, "/v1/ledger/approve", body)
	case "balance":
		if *owner == "" {
			return printError(stderr, "--owner is required")
		}
		return send(stdout, stderr, http.MethodGet, "/v1/ledger/balances/"+url.PathEscape(*token)+"/"+url.PathEscape(*owner), nil)
	case "allowance":
		if *owner == "" || *spender == "" {
			return printError(stderr, "--owner and --spender are required")
		}
		return send(stdout, stderr, http.MethodGet,
			"/v1/ledger/allowances/"+url.PathEscape(*token)+"/"+url.PathEscape(*owner)+"/"+url.PathEscape(*spender), nil)
	default:
		return printError(stderr, "unknown ledger subcommand: "+args[0])
	}
}

func runAdminCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		return printError(stderr, "usage: admin pause|unpause|grant|revoke|members")
	}
	fs := newFlagSet("admin "+args[0], stderr)
	module := fs.String("module", "crowdfund", "module name (pause, unpause)")
	role := fs.String("role", "", "role name (grant, revoke, members)")
	account := fs.String("account", "", "account (grant, revoke)")
	if err := fs.Parse(args[1:]); err != nil {
		return 1
	}
	switch args[0] {
	case "pause", "unpause":
		return send(stdout, stderr, http.MethodPost, "/v1/admin/"+args[0], map[string]string{"module": *module})
	case "grant", "revoke":
		if *role == "" || *account == "" {
			return printError(stderr, "--role and --account are required")
		}
		return send(stdout, stderr, http.MethodPost, "/v1/admin/roles/"+args[0], map[string]string{"role": *role, "account": *account})
	case "members":
		if *role == "" {
			return printError(stderr, "--role is required")
		}
		return send(stdout, stderr, http.MethodGet, "/v1/admin/roles/"+url.PathEscape(*role), nil)
	default:
		return printError(stderr, "unknown admin subcommand: "+args[0])
	}
}
