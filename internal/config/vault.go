package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"recletter/internal/errors"

	"github.com/hashicorp/vault/api"
)

// VaultConfig holds Vault connection configuration
type VaultConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Address   string `mapstructure:"address"`
	Token     string `mapstructure:"token"`
	TokenFile string `mapstructure:"tokenFile"`
	Namespace string `mapstructure:"namespace"`

	// Secret paths
	Secrets VaultSecrets `mapstructure:"secrets"`
}

// VaultSecrets names the KVv2 paths each secret is read from. An empty path
// leaves the value from the config file or environment in place.
type VaultSecrets struct {
	APIKeys   string `mapstructure:"apiKeys"`   // "keys": comma-separated server API keys
	GeminiKey string `mapstructure:"geminiKey"` // "api_key"
	Webhook   string `mapstructure:"webhook"`   // "url": spreadsheet webhook
	Admin     string `mapstructure:"admin"`     // "passphrase": configuration-mode gate
}

const vaultReadTimeout = 15 * time.Second

// secretReader reads one string field of a KVv2 secret
type secretReader interface {
	ReadString(ctx context.Context, path, key string) (string, error)
}

// VaultClient reads string secrets from a KVv2 engine
type VaultClient struct {
	client *api.Client
	logger *errors.Logger
}

// NewVaultClient connects to Vault and checks that it is reachable and unsealed
func NewVaultClient(cfg VaultConfig, logger *errors.Logger) (*VaultClient, error) {
	apiCfg := api.DefaultConfig()
	if cfg.Address != "" {
		apiCfg.Address = cfg.Address
	}
	client, err := api.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	token, err := resolveVaultToken(cfg)
	if err != nil {
		return nil, err
	}
	client.SetToken(token)

	health, err := client.Sys().Health()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to vault: %w", err)
	}
	if health.Sealed {
		return nil, fmt.Errorf("vault at %s is sealed", client.Address())
	}

	logger.Info("Connected to Vault",
		"address", client.Address(),
		"version", health.Version,
		"cluster_name", health.ClusterName)
	return &VaultClient{client: client, logger: logger}, nil
}

// resolveVaultToken returns the configured token, or the contents of the token file
func resolveVaultToken(cfg VaultConfig) (string, error) {
	token := cfg.Token
	if token == "" && cfg.TokenFile != "" {
		raw, err := os.ReadFile(cfg.TokenFile)
		if err != nil {
			return "", fmt.Errorf("failed to read vault token file: %w", err)
		}
		token = strings.TrimSpace(string(raw))
	}
	if token == "" {
		return "", fmt.Errorf("vault token is required when vault is enabled")
	}
	return token, nil
}

// ReadString returns the string stored under key in the KVv2 secret at path
func (vc *VaultClient) ReadString(ctx context.Context, path, key string) (string, error) {
	secret, err := vc.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return "", fmt.Errorf("failed to read secret from %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("secret not found at path: %s", path)
	}

	data, ok := secret.Data["data"].(map[string]any)
	if !ok {
		return "", fmt.Errorf("secret at %s is not in KVv2 format (missing 'data' field)", path)
	}
	raw, ok := data[key]
	if !ok {
		return "", fmt.Errorf("key '%s' not found in secret %s", key, path)
	}
	value, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("value for key '%s' is not a string in secret %s", key, path)
	}

	vc.logger.Debug("Secret read from Vault",
		"path", path,
		"key", key,
		"version", secretVersion(secret.Data["metadata"]))
	return value, nil
}

// secretVersion extracts the KVv2 version from the metadata block, or 0
func secretVersion(metadata any) int64 {
	m, ok := metadata.(map[string]any)
	if !ok {
		return 0
	}
	switch v := m["version"].(type) {
	case json.Number:
		n, _ := v.Int64()
		return n
	case float64:
		return int64(v)
	case int64:
		return v
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	default:
		return 0
	}
}

// vaultBinding ties one Vault secret field to the config value it overrides
type vaultBinding struct {
	name  string
	path  string
	key   string
	apply func(value string)
}

func (c *Config) vaultBindings() []vaultBinding {
	paths := c.Vault.Secrets
	return []vaultBinding{
		{name: "server API keys", path: paths.APIKeys, key: "keys", apply: func(v string) {
			c.Server.APIKeys = splitSecretList(v)
		}},
		{name: "Gemini API key", path: paths.GeminiKey, key: "api_key", apply: c.applyGeminiKey},
		{name: "webhook URL", path: paths.Webhook, key: "url", apply: func(v string) {
			c.Webhook.URL = v
		}},
		{name: "admin passphrase", path: paths.Admin, key: "passphrase", apply: func(v string) {
			c.Admin.Passphrase = v
		}},
	}
}

// applyGeminiKey sets the global key and fills every operation that has none of its own
func (c *Config) applyGeminiKey(key string) {
	c.AI.APIKey = key
	for _, op := range c.operationConfigs() {
		if op.APIKey == "" {
			op.APIKey = key
		}
	}
}

func splitSecretList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ApplyVaultSecrets overrides the configured secrets with the values stored in
// Vault. It does nothing when Vault is disabled.
func ApplyVaultSecrets(cfg *Config, logger *errors.Logger) error {
	if !cfg.Vault.Enabled {
		logger.Debug("Vault integration disabled, skipping secret loading")
		return nil
	}

	client, err := NewVaultClient(cfg.Vault, logger)
	if err != nil {
		return errors.NewConfigError(errors.ErrCodeInvalidConfig, "failed to initialize vault client", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), vaultReadTimeout)
	defer cancel()
	return applySecrets(ctx, client, cfg, logger)
}

func applySecrets(ctx context.Context, reader secretReader, cfg *Config, logger *errors.Logger) error {
	loaded := 0
	for _, b := range cfg.vaultBindings() {
		if b.path == "" {
			continue
		}
		value, err := reader.ReadString(ctx, b.path, b.key)
		if err != nil {
			return errors.NewConfigError(errors.ErrCodeInvalidConfig,
				fmt.Sprintf("failed to load %s from vault", b.name), err).
				WithContext("path", b.path)
		}
		if strings.TrimSpace(value) == "" {
			logger.Warn("Empty secret in Vault, keeping configured value", "secret", b.name, "path", b.path)
			continue
		}
		b.apply(value)
		loaded++
		logger.Info("Secret loaded from Vault", "secret", b.name, "path", b.path)
	}

	logger.Info("Vault secrets applied", "loaded", loaded)
	return nil
}
