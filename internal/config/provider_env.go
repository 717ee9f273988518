package config

import (
	"context"
	"os"
)

// EnvVarProvider is the SecretProvider for local development: each requested
// key is looked up as an OS environment variable, so a .env file can stand in
// for the parameter store without any AWS access. The loader selects it
// automatically when APP_ENV is "local".
type EnvVarProvider struct{}

func NewEnvVarProvider() *EnvVarProvider {
	return &EnvVarProvider{}
}

// GetParametersBatch looks each key up in the environment. Keys without a
// matching variable are left out of the result; the caller decides whether a
// gap is fatal.
func (p *EnvVarProvider) GetParametersBatch(_ context.Context, keys []string) (map[string]string, error) {
	resolved := make(map[string]string, len(keys))
	for _, key := range keys {
		if value, ok := os.LookupEnv(key); ok {
			resolved[key] = value
		}
	}
	return resolved, nil
}
