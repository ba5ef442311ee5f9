package config

import "log"

func MustNonEmpty(value, envName string) {
	if value == "" {
		log.Fatalf("missing required env %s", envName)
	}
}

// MustOneOf fails when every value is empty.
func MustOneOf(envNames string, values ...[]byte) {
	for _, v := range values {
		if len(v) > 0 {
			return
		}
	}
	log.Fatalf("missing required env: one of %s", envNames)
}

// Validate checks the settings the HTTP server cannot start without.
func (c Config) Validate() {
	MustNonEmpty(c.DatabaseURL, "DATABASE_URL")
	MustOneOf("IDP_JWT_SECRET, IDP_JWT_PUBLIC_KEY", c.SessionSecret, c.SessionPublicKey)
	MustNonEmpty(c.WebhookSecret, "IDP_WEBHOOK_SECRET")
	MustNonEmpty(c.StripeSecretKey, "STRIPE_SECRET_KEY")
}
