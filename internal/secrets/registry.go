// Package secrets resolves {$secret} references in a plan into plain
// strings at execution time, via a read-only provider registry.
package secrets

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/griffin-monitoring/griffin/internal/models"
)

// Resolver turns a secret reference into a plain string.
type Resolver interface {
	// Resolve fetches the secret named by ref. version and field are
	// optional: version pins a specific secret version (provider-defined
	// meaning); field extracts one JSON key from a JSON-object secret.
	Resolve(ctx context.Context, ref string, version, field *string) (string, error)
}

// Validator is implemented by resolvers that can probe their backing
// store during registration (e.g. Vault performs a token lookup).
type Validator interface {
	Validate(ctx context.Context) error
}

// Registry maps a provider prefix (e.g. "env", "aws", "vault") to its
// Resolver. It is read-only once constructed.
type Registry struct {
	resolvers map[string]Resolver
}

// NewRegistry builds a Registry from a prefix -> Resolver map, running
// Validate() on every resolver that implements Validator.
func NewRegistry(ctx context.Context, resolvers map[string]Resolver) (*Registry, error) {
	for name, r := range resolvers {
		if v, ok := r.(Validator); ok {
			if err := v.Validate(ctx); err != nil {
				return nil, &ResolutionError{Provider: name, Cause: err}
			}
		}
	}
	return &Registry{resolvers: resolvers}, nil
}

// Resolve looks up ref.Provider's resolver and fetches ref.Ref.
func (r *Registry) Resolve(ctx context.Context, ref models.SecretRef) (string, error) {
	resolver, ok := r.resolvers[ref.Provider]
	if !ok {
		return "", &UnknownProviderError{Provider: ref.Provider}
	}

	v, err := resolver.Resolve(ctx, ref.Ref, ref.Version, ref.Field)
	if err != nil {
		return "", &ResolutionError{Provider: ref.Provider, Ref: ref.Ref, Cause: err}
	}
	return v, nil
}

// ResolvePlan deep-copies plan, replacing every {$secret} StringValue leaf
// in node headers, body, base, and path with its resolved plain string.
// The original plan is left untouched.
func (r *Registry) ResolvePlan(ctx context.Context, plan *models.Plan) (*models.Plan, error) {
	resolved := *plan
	resolved.Nodes = make([]models.Node, len(plan.Nodes))

	for i, n := range plan.Nodes {
		rn, err := r.resolveNode(ctx, n)
		if err != nil {
			return nil, err
		}
		resolved.Nodes[i] = rn
	}

	return &resolved, nil
}

func (r *Registry) resolveNode(ctx context.Context, n models.Node) (models.Node, error) {
	switch v := n.(type) {
	case *models.HTTPRequestNode:
		copyNode := *v

		base, err := r.resolveStringValue(ctx, v.Base)
		if err != nil {
			return nil, err
		}
		copyNode.Base = base

		path, err := r.resolveStringValue(ctx, v.Path)
		if err != nil {
			return nil, err
		}
		copyNode.Path = path

		if v.Headers != nil {
			headers := make(map[string]models.StringValue, len(v.Headers))
			for k, hv := range v.Headers {
				resolvedHV, err := r.resolveStringValue(ctx, hv)
				if err != nil {
					return nil, err
				}
				headers[k] = resolvedHV
			}
			copyNode.Headers = headers
		}

		if v.Body != nil {
			body, err := r.resolveAny(ctx, v.Body)
			if err != nil {
				return nil, err
			}
			copyNode.Body = body
		}

		return &copyNode, nil

	case *models.WaitNode:
		copyNode := *v
		return &copyNode, nil

	case *models.AssertionsNode:
		copyNode := *v
		return &copyNode, nil

	default:
		return n, nil
	}
}

// resolveAny walks an arbitrary JSON-shaped value (map/slice/scalar)
// looking for {$secret}/{$variable}/{$literal} leaves. A plan decoded off
// the wire carries Body as plain any, so a StringValue leaf there never
// arrives as the Go type models.StringValue — it arrives as a
// map[string]any with a single "$literal"/"$secret"/"$variable" key, the
// same shape models.StringValue.UnmarshalJSON decodes. bodyLeaf recognizes
// that shape; the models.StringValue case below only fires for bodies a
// caller constructed programmatically rather than decoded from JSON.
func (r *Registry) resolveAny(ctx context.Context, v any) (any, error) {
	switch t := v.(type) {
	case models.StringValue:
		resolved, err := r.resolveStringValue(ctx, t)
		if err != nil {
			return nil, err
		}
		return resolved.MustLiteral(), nil
	case map[string]any:
		if sv, ok, err := bodyLeaf(t); err != nil {
			return nil, err
		} else if ok {
			resolved, err := r.resolveStringValue(ctx, sv)
			if err != nil {
				return nil, err
			}
			return resolved.MustLiteral(), nil
		}

		out := make(map[string]any, len(t))
		for k, vv := range t {
			rv, err := r.resolveAny(ctx, vv)
			if err != nil {
				return nil, err
			}
			out[k] = rv
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			rv, err := r.resolveAny(ctx, vv)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	default:
		return v, nil
	}
}

// bodyLeaf reports whether m is a JSON-decoded StringValue leaf (exactly
// one of "$literal", "$secret", "$variable") and, if so, decodes it into
// one. A map with none of those keys, or with more than one, is an
// ordinary body object and is walked recursively instead.
func bodyLeaf(m map[string]any) (models.StringValue, bool, error) {
	if len(m) != 1 {
		return models.StringValue{}, false, nil
	}
	for key := range m {
		if key != "$literal" && key != "$secret" && key != "$variable" {
			return models.StringValue{}, false, nil
		}
	}

	raw, err := json.Marshal(m)
	if err != nil {
		return models.StringValue{}, false, fmt.Errorf("secrets: re-encoding body leaf: %w", err)
	}
	var sv models.StringValue
	if err := json.Unmarshal(raw, &sv); err != nil {
		return models.StringValue{}, false, fmt.Errorf("secrets: decoding body leaf: %w", err)
	}
	return sv, true, nil
}

func (r *Registry) resolveStringValue(ctx context.Context, v models.StringValue) (models.StringValue, error) {
	if v.IsLiteral() {
		return v, nil
	}
	if v.IsVariable() {
		return models.StringValue{}, &ResolutionError{
			Provider: "variable",
			Ref:      v.Variable.Key,
			Cause:    errUnresolvedVariable,
		}
	}
	if !v.IsSecret() {
		return v, nil
	}

	resolved, err := r.Resolve(ctx, *v.Secret)
	if err != nil {
		return models.StringValue{}, err
	}
	return models.Lit(resolved), nil
}

var errUnresolvedVariable = errUnresolvedVariableError{}

type errUnresolvedVariableError struct{}

func (errUnresolvedVariableError) Error() string {
	return "variable reference reached the engine unresolved; variables must be resolved before persistence"
}
