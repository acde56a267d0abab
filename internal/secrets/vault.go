package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// VaultResolver resolves secrets from a HashiCorp Vault KV v2 endpoint.
// Requests are wrapped in a circuit breaker so a flapping Vault instance
// fails fast instead of hanging every execution that touches a vault:
// secret.
type VaultResolver struct {
	addr       string
	token      string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// VaultConfig configures the breaker guarding Vault requests.
type VaultConfig struct {
	Addr                  string
	Token                 string
	BreakerMaxRequests    uint32
	BreakerTimeout        time.Duration
}

// NewVaultResolver builds a vault: provider.
func NewVaultResolver(cfg VaultConfig) *VaultResolver {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "vault-secrets",
		MaxRequests: cfg.BreakerMaxRequests,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
	})

	return &VaultResolver{
		addr:       cfg.Addr,
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		breaker:    breaker,
	}
}

// Validate performs a token self-lookup to confirm Vault is reachable
// and the configured token is valid, per the registry's validate() probe.
func (r *VaultResolver) Validate(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.addr+"/v1/auth/token/lookup-self", nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Vault-Token", r.token)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("vault token lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("vault token lookup returned status %d", resp.StatusCode)
	}
	return nil
}

type vaultKVResponse struct {
	Data struct {
		Data map[string]any `json:"data"`
	} `json:"data"`
}

func (r *VaultResolver) Resolve(ctx context.Context, ref string, version, field *string) (string, error) {
	result, err := r.breaker.Execute(func() (any, error) {
		return r.get(ctx, ref, version)
	})
	if err != nil {
		return "", err
	}

	data := result.(map[string]any)
	if field == nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}

	fv, ok := data[*field]
	if !ok {
		return "", fmt.Errorf("field %q not present in vault secret %q", *field, ref)
	}
	s, ok := fv.(string)
	if !ok {
		return "", fmt.Errorf("field %q in vault secret %q is not a string", *field, ref)
	}
	return s, nil
}

func (r *VaultResolver) get(ctx context.Context, ref string, version *string) (map[string]any, error) {
	url := r.addr + "/v1/secret/data/" + ref
	if version != nil {
		url += "?version=" + *version
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Vault-Token", r.token)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vault returned status %d for secret %q", resp.StatusCode, ref)
	}

	var parsed vaultKVResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decoding vault response: %w", err)
	}
	return parsed.Data.Data, nil
}
