package api

import (
	"github.com/caarlos0/env/v11"
)

// Secrets are the upstream credentials. They are read from the environment
// on every request so a key added to a running server takes effect at once.
type Secrets struct {
	GoogleAPIKey     string `env:"GOOGLE_API_KEY"`
	ElevenLabsAPIKey string `env:"ELEVENLABS_API_KEY"`
}

// SecretsFunc loads the current credentials.
type SecretsFunc func() (Secrets, error)

// EnvSecrets reads the credentials from the process environment.
func EnvSecrets() (Secrets, error) {
	return env.ParseAs[Secrets]()
}

// StaticSecrets always returns s.
func StaticSecrets(s Secrets) SecretsFunc {
	return func() (Secrets, error) { return s, nil }
}
