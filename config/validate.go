package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"fundchain/crypto"
	"fundchain/native/access"
)

// MinSecretLength is the shortest accepted HMAC secret outside dev mode.
var MinSecretLength = 32

// Validate rejects configurations fundd cannot run with.
func Validate(c *Config) error {
	if c == nil {
		return errors.New("config: nil config")
	}
	if strings.TrimSpace(c.ListenAddress) == "" {
		return errors.New("config: ListenAddress required")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return errors.New("config: DataDir required")
	}
	if _, err := c.MinDonationAmount(); err != nil {
		return err
	}
	if _, err := c.VaultAccount(); err != nil {
		return err
	}
	if _, err := c.RoleGrants(); err != nil {
		return err
	}
	if secret := c.Auth.Secret(); len(secret) < MinSecretLength && !c.DevMode {
		return fmt.Errorf("config: auth secret must be at least %d bytes", MinSecretLength)
	}
	if c.Auth.ClockSkewSeconds < 0 {
		return errors.New("config: auth ClockSkewSeconds must not be negative")
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 || c.RateLimit.MaxConnections < 0 {
		return errors.New("config: rate limit values must not be negative")
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Level)) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Logging.Level)
	}
	if url := strings.TrimSpace(c.Webhook.URL); url != "" {
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			return fmt.Errorf("config: webhook URL %q must be http or https", url)
		}
		if strings.TrimSpace(c.Webhook.Secret) == "" {
			return errors.New("config: webhook Secret required when URL is set")
		}
	}
	if c.Webhook.MaxRetries < 0 {
		return errors.New("config: webhook MaxRetries must not be negative")
	}
	if (c.Telemetry.Metrics || c.Telemetry.Traces) && strings.TrimSpace(c.Telemetry.Endpoint) == "" {
		return errors.New("config: telemetry endpoint required when exporters are enabled")
	}
	return nil
}

// Secret resolves the HMAC secret, preferring the environment variable named
// by HMACSecretEnv when it is set.
func (a Auth) Secret() []byte {
	if name := strings.TrimSpace(a.HMACSecretEnv); name != "" {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return []byte(v)
		}
	}
	return []byte(strings.TrimSpace(a.HMACSecret))
}

// MinDonationAmount parses Crowdfund.MinDonation. Nil means the engine default.
func (c *Config) MinDonationAmount() (*big.Int, error) {
	raw := strings.TrimSpace(c.Crowdfund.MinDonation)
	if raw == "" {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok || v.Sign() <= 0 {
		return nil, fmt.Errorf("config: crowdfund MinDonation %q must be a positive integer", raw)
	}
	return v, nil
}

// VaultAccount parses Crowdfund.Vault. The zero account means derive it.
func (c *Config) VaultAccount() ([20]byte, error) {
	raw := strings.TrimSpace(c.Crowdfund.Vault)
	if raw == "" {
		return [20]byte{}, nil
	}
	addr, err := crypto.ParseAccount(raw)
	if err != nil {
		return [20]byte{}, fmt.Errorf("config: crowdfund Vault: %w", err)
	}
	return addr, nil
}

// RoleGrants resolves the configured role members into accounts keyed by
// canonical role name.
func (c *Config) RoleGrants() (map[string][][20]byte, error) {
	grants := map[string][][20]byte{}
	for role, members := range map[string][]string{
		access.RoleDefaultAdmin: c.Roles.DefaultAdmin,
		access.RolePauser:       c.Roles.Pauser,
		access.RoleUpdater:      c.Roles.Updater,
		access.RoleWithdrawer:   c.Roles.Withdrawer,
	} {
		for _, raw := range members {
			addr, err := crypto.ParseAccount(raw)
			if err != nil {
				return nil, fmt.Errorf("config: roles %s: %w", role, err)
			}
			grants[role] = append(grants[role], addr)
		}
	}
	return grants, nil
}
