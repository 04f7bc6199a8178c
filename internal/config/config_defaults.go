package config

import (
	"time"

	"github.com/spf13/viper"
)

// DefaultAdminPassphrase unlocks configuration mode when no passphrase is configured
const DefaultAdminPassphrase = "rec0mm3ndME!"

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// AI Configuration - Global defaults
	v.SetDefault("ai.provider", "gemini")
	v.SetDefault("ai.model", "gemini-2.5-flash")
	v.SetDefault("ai.timeout", 60*time.Second)
	v.SetDefault("ai.apiKey", "")
	v.SetDefault("ai.maxRetries", 3)
	v.SetDefault("ai.temperature", 0.7)
	v.SetDefault("ai.useSystemPrompts", true)

	// Questions: creative phrasing, short output
	v.SetDefault("ai.questions.provider", "gemini")
	v.SetDefault("ai.questions.model", "")
	v.SetDefault("ai.questions.timeout", 45*time.Second)
	v.SetDefault("ai.questions.maxRetries", 2)
	v.SetDefault("ai.questions.temperature", 0.8)
	v.SetDefault("ai.questions.useSystemPrompts", true)

	// Letter: long-form output
	v.SetDefault("ai.letter.provider", "gemini")
	v.SetDefault("ai.letter.model", "")
	v.SetDefault("ai.letter.timeout", 90*time.Second)
	v.SetDefault("ai.letter.maxRetries", 2)
	v.SetDefault("ai.letter.temperature", 0.6)
	v.SetDefault("ai.letter.useSystemPrompts", true)

	// Audio: verbatim transcription
	v.SetDefault("ai.audio.provider", "gemini")
	v.SetDefault("ai.audio.model", "")
	v.SetDefault("ai.audio.timeout", 120*time.Second)
	v.SetDefault("ai.audio.maxRetries", 1)
	v.SetDefault("ai.audio.temperature", 0.0)
	v.SetDefault("ai.audio.useSystemPrompts", true)

	for _, op := range []string{"questions", "letter", "audio"} {
		v.SetDefault("ai."+op+".circuitBreaker.enabled", true)
		v.SetDefault("ai."+op+".circuitBreaker.maxRequests", 3)
		v.SetDefault("ai."+op+".circuitBreaker.interval", 60*time.Second)
		v.SetDefault("ai."+op+".circuitBreaker.timeout", 60*time.Second)
		v.SetDefault("ai."+op+".circuitBreaker.minRequests", 3)
		v.SetDefault("ai."+op+".circuitBreaker.failureThreshold", 0.6)
	}

	v.SetDefault("ai.speech.languageCode", "en-US")
	v.SetDefault("ai.speech.sampleRateHertz", 48000)
	v.SetDefault("ai.speech.credentialsFile", "")

	// Server Configuration
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.readTimeout", 60*time.Second)
	v.SetDefault("server.writeTimeout", 180*time.Second) // AI letter generation can be slow
	v.SetDefault("server.idleTimeout", 120*time.Second)
	v.SetDefault("server.maxRequestSize", 25*1024*1024)
	v.SetDefault("server.tls.mode", "disabled")
	v.SetDefault("server.tls.certFile", "")
	v.SetDefault("server.tls.keyFile", "")
	v.SetDefault("server.tls.minVersion", "1.2")
	v.SetDefault("server.apiKeys", []string{})
	v.SetDefault("server.rateLimit.enabled", false)
	v.SetDefault("server.rateLimit.requestsPerMin", 60)
	v.SetDefault("server.rateLimit.burstCapacity", 10)
	v.SetDefault("server.rateLimit.byIP", true)
	v.SetDefault("server.rateLimit.byAPIKey", false)
	v.SetDefault("server.rateLimit.window", time.Minute)

	// App Configuration
	v.SetDefault("app.logLevel", "info")
	v.SetDefault("app.defaultFormat", "text")
	v.SetDefault("app.supportedFormats", []string{"json", "text", "markdown"})
	v.SetDefault("app.maxFileSize", 1024*1024)     // 1MB
	v.SetDefault("app.maxAudioSize", 20*1024*1024) // inline audio limit of the Gemini API
	v.SetDefault("app.exportDir", ".")

	// Store Configuration
	v.SetDefault("store.backend", "file")
	v.SetDefault("store.path", "$HOME/.recletter/state")
	v.SetDefault("store.sessionId", "default")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.keyPrefix", "recletter:")
	v.SetDefault("store.redis.dialTimeout", 5*time.Second)
	v.SetDefault("store.redis.ttl", time.Duration(0))
	v.SetDefault("store.sqlite.path", "recletter.db")
	v.SetDefault("store.contextFile", "")
	v.SetDefault("store.watchContext", false)
	v.SetDefault("store.debounceDelay", time.Second)

	// Webhook Configuration
	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.timeout", 15*time.Second)

	// Admin Configuration
	v.SetDefault("admin.passphrase", DefaultAdminPassphrase)

	// Vault Configuration
	v.SetDefault("vault.enabled", false)
	v.SetDefault("vault.address", "")
	v.SetDefault("vault.token", "")
	v.SetDefault("vault.tokenFile", "")
	v.SetDefault("vault.namespace", "")
	v.SetDefault("vault.secrets.apiKeys", "")
	v.SetDefault("vault.secrets.geminiKey", "")
	v.SetDefault("vault.secrets.webhook", "")
	v.SetDefault("vault.secrets.admin", "")

	// Observability Configuration
	v.SetDefault("observability.enabled", true)
	v.SetDefault("observability.serviceName", "recletter")
	v.SetDefault("observability.serviceVersion", "")  // Will use app version if empty
	v.SetDefault("observability.serviceInstance", "") // Will be auto-generated if empty
	v.SetDefault("observability.consoleOutput", false)
	v.SetDefault("observability.sampleRate", 1.0)
	v.SetDefault("observability.tracing.enabled", true)
	v.SetDefault("observability.tracing.sampleRate", 1.0)
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.collectionInterval", 15*time.Second)
	v.SetDefault("observability.customMetrics.aiOperations.enabled", true)
	v.SetDefault("observability.customMetrics.aiOperations.trackDuration", true)
	v.SetDefault("observability.customMetrics.aiOperations.trackTokenUsage", true)
	v.SetDefault("observability.customMetrics.aiOperations.trackModelInfo", true)
	v.SetDefault("observability.customMetrics.businessMetrics.enabled", true)
	v.SetDefault("observability.customMetrics.businessMetrics.trackSuccessRates", true)
	v.SetDefault("observability.customMetrics.businessMetrics.trackContentSizes", true)
	v.SetDefault("observability.customMetrics.infrastructure.enabled", true)
	v.SetDefault("observability.customMetrics.infrastructure.trackRateLimits", true)
	v.SetDefault("observability.customMetrics.infrastructure.trackWebhooks", true)
	v.SetDefault("observability.console.enabled", false)
	v.SetDefault("observability.console.prettyPrint", true)
	v.SetDefault("observability.prometheus.enabled", false)
	v.SetDefault("observability.prometheus.endpoint", "/metrics")
	v.SetDefault("observability.prometheus.port", "9090")
	v.SetDefault("observability.otlp.enabled", false)
	v.SetDefault("observability.otlp.endpoint", "http://localhost:4318")
	v.SetDefault("observability.otlp.insecure", true)
	v.SetDefault("observability.otlp.headers", map[string]string{})
	v.SetDefault("observability.healthCheck.timeout", 15*time.Second)
}
