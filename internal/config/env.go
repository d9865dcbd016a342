package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"payment-routing-service/internal/gateway"
	"payment-routing-service/internal/models"
)

// LookupEnv resolves an environment variable. os.LookupEnv satisfies it.
type LookupEnv func(key string) (string, bool)

// OSEnv reads the process environment
var OSEnv LookupEnv = os.LookupEnv

// overlayEnv applies environment overrides, the highest precedence source.
// Unparseable values are skipped and reported.
func overlayEnv(s *Settings, lookup LookupEnv) []string {
	var problems []string
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	getBool := func(key string, dst *bool) {
		if v, ok := get(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s: %q is not a boolean", key, v))
				return
			}
			*dst = b
		}
	}
	getInt := func(key string, dst *int) {
		if v, ok := get(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s: %q is not an integer", key, v))
				return
			}
			*dst = n
		}
	}

	for _, name := range models.AllProviders() {
		p := s.Providers[name]
		p.Name = name
		if p.Settings == nil {
			p.Settings = map[string]string{}
		}
		prefix := name.EnvPrefix() + "_"

		if v, ok := get(prefix + "API_KEY"); ok {
			p.APIKey = models.Credential(v)
		}
		if v, ok := get(prefix + "SECRET_KEY"); ok {
			p.SecretKey = models.Credential(v)
		}
		if v, ok := get(prefix + "ENVIRONMENT"); ok {
			p.Environment = models.Environment(strings.ToLower(v))
		}
		if v, ok := get(prefix + "WEBHOOK_URL"); ok {
			p.WebhookURL = v
		}
		getBool(prefix+"ENABLED", &p.Enabled)
		getInt(prefix+"TIMEOUT_SECONDS", &p.TimeoutSeconds)
		getInt(prefix+"RETRY_ATTEMPTS", &p.RetryAttempts)

		if spec, ok := gateway.Spec(name); ok {
			for suffix, key := range spec.EnvSettings {
				if v, ok := get(prefix + suffix); ok {
					p.Settings[key] = v
				}
			}
		}
		s.Providers[name] = p
	}

	getBool("ROUTING_ENABLED", &s.Routing.Enabled)
	if v, ok := get("ROUTING_DEFAULT_STRATEGY"); ok {
		s.Routing.DefaultStrategy = models.Strategy(strings.ToLower(v))
	}
	if v, ok := get("ROUTING_FALLBACK_PROVIDER"); ok {
		s.Routing.FallbackProvider, _ = models.ParseProviderName(v)
	}

	for _, feature := range models.FeatureNames() {
		key := "FEATURE_" + strings.ToUpper(feature)
		enabled, _ := s.Features.Get(feature)
		getBool(key, &enabled)
		_ = s.Features.Set(feature, enabled)
	}

	getInt("SECURITY_MAX_REQUESTS_PER_MINUTE", &s.Security.MaxRequestsPerMinute)
	getBool("SECURITY_REQUIRE_CREDENTIAL_ENCRYPTION", &s.Security.RequireCredentialEncryption)
	getBool("SECURITY_REQUIRE_SIGNATURE_VALIDATION", &s.Security.RequireSignatureValidation)
	if v, ok := get("CORS_ALLOWED_ORIGINS"); ok {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		s.Security.AllowedOrigins = origins
	}
	return problems
}
