package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

var (
	apiEndpoint = defaultAPIEndpoint()
	apiToken    = os.Getenv("FUND_API_TOKEN")
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	args, err := applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if len(args) < 1 {
		printUsage(stdout)
		return 0
	}

	switch args[0] {
	case "generate-key":
		return runGenerateKey(args[1:], stdout, stderr)
	case "address":
		return runAddress(args[1:], stdout, stderr)
	case "auth":
		return runAuthCommand(args[1:], stdout, stderr)
	case "token":
		return runTokenCommand(args[1:], stdout, stderr)
	case "project":
		return runProjectCommand(args[1:], stdout, stderr)
	case "donate":
		return runDonate(args[1:], stdout, stderr)
	case "vote":
		return runVote(args[1:], stdout, stderr)
	case "end-vote":
		return runEndVote(args[1:], stdout, stderr)
	case "withdraw":
		return runWithdraw(args[1:], stdout, stderr)
	case "fees":
		return runFeesCommand(args[1:], stdout, stderr)
	case "ledger":
		return runLedgerCommand(args[1:], stdout, stderr)
	case "admin":
		return runAdminCommand(args[1:], stdout, stderr)
	case "events":
		return runEvents(args[1:], stdout, stderr)
	case "export":
		return runExport(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		printUsage(stderr)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `Usage: fund-cli [--api URL] [--token JWT] <command> [arguments]

Global flags:
  --api      API endpoint (default $FUND_API_URL or http://127.0.0.1:8545)
  --token    bearer token for write calls (default $FUND_API_TOKEN)

Commands:
  generate-key --out <file>                 create an encrypted keystore and print its address
  address --keystore <file>                 print the address stored in a keystore
  auth issue --subject <addr>               sign an API token with $FUND_HMAC_SECRET
  token list|add|supported                  manage accepted exchange tokens
  project create|get|list|thresholds|status|cooldown|fee|transfer
  donate --project <id> --amount <n>        donate to a project
  vote --project <id> --choice yes|no       vote on the open threshold
  end-vote --project <id>                   close the open vote session
  withdraw --project <id>                   release approved funds to the owner
  fees get|withdraw --token <addr>          inspect or sweep the fee pool
  ledger mint|approve|balance|allowance     interact with the token ledger
  admin pause|unpause|grant|revoke|members  operate roles and pauses
  events [--type T] [--project id]          query committed events
  export --format csv|parquet --out <file>  export committed events`)
}

func defaultAPIEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("FUND_API_URL")); v != "" {
		return v
	}
	return "http://127.0.0.1:8545"
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--api" || arg == "--token":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for %s", arg)
			}
			if arg == "--api" {
				apiEndpoint = args[i+1]
			} else {
				apiToken = args[i+1]
			}
			i++
		case strings.HasPrefix(arg, "--api="):
			apiEndpoint = strings.TrimPrefix(arg, "--api=")
		case strings.HasPrefix(arg, "--token="):
			apiToken = strings.TrimPrefix(arg, "--token=")
		default:
			out = append(out, arg)
		}
	}
	return out, nil
}
