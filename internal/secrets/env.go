package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// EnvResolver resolves secrets from process environment variables. The
// optional field, if set, JSON-decodes the variable's value and extracts
// one key — this lets a single env var carry a small JSON blob of
// related secrets.
type EnvResolver struct{}

// NewEnvResolver returns an env: provider.
func NewEnvResolver() *EnvResolver {
	return &EnvResolver{}
}

func (r *EnvResolver) Resolve(_ context.Context, ref string, _, field *string) (string, error) {
	v, ok := os.LookupEnv(ref)
	if !ok {
		return "", fmt.Errorf("environment variable %q is not set", ref)
	}

	if field == nil {
		return v, nil
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(v), &decoded); err != nil {
		return "", fmt.Errorf("environment variable %q is not a JSON object: %w", ref, err)
	}
	fv, ok := decoded[*field]
	if !ok {
		return "", fmt.Errorf("field %q not present in environment variable %q", *field, ref)
	}
	s, ok := fv.(string)
	if !ok {
		return "", fmt.Errorf("field %q in environment variable %q is not a string", *field, ref)
	}
	return s, nil
}
