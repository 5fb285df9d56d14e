package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"fundchain/cmd/internal/passphrase"
	"fundchain/crypto"
	"fundchain/rpc"
)

const (
	keystorePassEnv = "FUND_KEYSTORE_PASS"
	hmacSecretEnv   = "FUND_HMAC_SECRET"
)

// passphraseFor is swapped in tests.
var passphraseFor = func(prompt string) (string, error) {
	return passphrase.NewSource(keystorePassEnv, prompt).Get()
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func printError(stderr io.Writer, msg string) int {
	fmt.Fprintf(stderr, "Error: %s\n", msg)
	return 1
}

func runGenerateKey(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("generate-key", stderr)
	out := fs.String("out", "wallet.json", "keystore output path")
	light := fs.Bool("light", false, "use light scrypt parameters (tests and throwaway keys)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if _, err := os.Stat(*out); err == nil {
		return printError(stderr, fmt.Sprintf("%s already exists; refusing to overwrite", *out))
	}
	pass, err := passphraseFor("Enter new keystore passphrase: ")
	if err != nil {
		return printError(stderr, err.Error())
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return printError(stderr, err.Error())
	}
	params := crypto.StandardScrypt
	if *light {
		params = crypto.LightScrypt
	}
	if err := crypto.SaveToKeystoreWithParams(*out, key, pass, params); err != nil {
		return printError(stderr, err.Error())
	}
	fmt.Fprintf(stdout, "Keystore written to %s\n", *out)
	fmt.Fprintf(stdout, "Address: %s\n", key.PubKey().Address().String())
	return 0
}

func runAddress(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("address", stderr)
	path := fs.String("keystore", "wallet.json", "keystore path")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	pass, err := passphraseFor("Enter keystore passphrase: ")
	if err != nil {
		return printError(stderr, err.Error())
	}
	key, err := crypto.LoadFromKeystore(*path, pass)
	if err != nil {
		return printError(stderr, err.Error())
	}
	fmt.Fprintln(stdout, key.PubKey().Address().String())
	return 0
}

// runAuthCommand signs API tokens for operators holding the daemon secret.
func runAuthCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] != "issue" {
		return printError(stderr, "usage: auth issue --subject <addr> [--ttl 1h] [--issuer fundd] [--audience fundchain]")
	}
	fs := newFlagSet("auth issue", stderr)
	subject := fs.String("subject", "", "caller account (bech32 or 0x hex)")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	issuer := fs.String("issuer", "", "iss claim")
	audience := fs.String("audience", "", "aud claim")
	if err := fs.Parse(args[1:]); err != nil {
		return 1
	}
	if _, err := crypto.ParseAccount(*subject); err != nil {
		return printError(stderr, fmt.Sprintf("--subject: %v", err))
	}
	secret := strings.TrimSpace(os.Getenv(hmacSecretEnv))
	if secret == "" {
		return printError(stderr, hmacSecretEnv+" must be set")
	}
	token, err := rpc.IssueToken([]byte(secret), *subject, *issuer, *audience, *ttl)
	if err != nil {
		return printError(stderr, err.Error())
	}
	fmt.Fprintln(stdout, token)
	return 0
}
