package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
)

// applyFallbacks fills values that viper cannot express as plain defaults
func (c *Config) applyFallbacks() {
	if len(c.Server.APIKeys) == 0 {
		c.Server.APIKeys = splitSecretList(os.Getenv(envPrefix + "_SERVER_APIKEYS"))
	}
	if c.AI.APIKey == "" {
		c.AI.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if c.Server.TLS.Mode == "server" && c.Server.TLS.MinVersion == "" {
		c.Server.TLS.MinVersion = "1.2"
	}

	c.Store.Path = os.ExpandEnv(c.Store.Path)
	c.Store.SQLite.Path = os.ExpandEnv(c.Store.SQLite.Path)
	if c.Store.SessionID == "" {
		c.Store.SessionID = "default"
	}
	if c.Admin.Passphrase == "" {
		c.Admin.Passphrase = DefaultAdminPassphrase
	}

	if c.Observability.ServiceInstance == "" {
		c.Observability.ServiceInstance = serviceInstanceID(c.Observability.ServiceName)
	}
}

func serviceInstanceID(serviceName string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "1"
	}
	return serviceName + "-" + host
}

// summarizedEnv lists the variables reported at startup
var summarizedEnv = []string{
	"RECLETTER_AI_APIKEY",
	"RECLETTER_AI_PROVIDER",
	"RECLETTER_AI_MODEL",
	"RECLETTER_SERVER_PORT",
	"RECLETTER_SERVER_HOST",
	"RECLETTER_APP_LOGLEVEL",
	"RECLETTER_STORE_BACKEND",
	"RECLETTER_WEBHOOK_URL",
	"RECLETTER_ADMIN_PASSPHRASE",
	"RECLETTER_VAULT_ENABLED",
	"GEMINI_API_KEY",
}

// summary describes where the configuration came from and its key values,
// with secrets masked
func (c *Config) summary(source string) []string {
	lines := []string{"Loaded from " + source}

	for _, name := range summarizedEnv {
		value := os.Getenv(name)
		if value == "" {
			continue
		}
		if isSensitiveEnvVar(name) {
			value = "***MASKED***"
		}
		lines = append(lines, fmt.Sprintf("env %s=%s", name, value))
	}

	key := "set"
	if c.AI.APIKey == "" {
		key = "not set, template letters only"
	}
	lines = append(lines,
		fmt.Sprintf("ai: provider=%s model=%s key=%s", c.AI.Provider, c.AI.Model, key),
		fmt.Sprintf("server: %s:%s tls=%s", c.Server.Host, c.Server.Port, c.Server.TLS.Mode),
		fmt.Sprintf("store: backend=%s session=%s", c.Store.Backend, c.Store.SessionID),
		fmt.Sprintf("webhook=%t vault=%t observability=%t log_level=%s",
			c.Webhook.URL != "", c.Vault.Enabled, c.Observability.Enabled, c.App.LogLevel),
	)

	for _, name := range sortedOperations(c.operationConfigs()) {
		op, _ := c.GetOperationConfig(name)
		lines = append(lines, fmt.Sprintf("ai.%s: provider=%s model=%s", name, op.Provider, op.Model))
	}
	return lines
}

func isSensitiveEnvVar(name string) bool {
	lower := strings.ToLower(name)
	return slices.ContainsFunc([]string{"key", "passphrase", "webhook"}, func(s string) bool {
		return strings.Contains(lower, s)
	})
}
