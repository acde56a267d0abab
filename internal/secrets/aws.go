package secrets

import (
	"context"
	"encoding/json"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// secretsManagerAPI is the subset of *secretsmanager.Client the resolver
// needs, so tests can substitute a fake without spinning up real AWS
// credentials.
type secretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSResolver resolves secrets from AWS Secrets Manager.
type AWSResolver struct {
	client secretsManagerAPI
}

// NewAWSResolver loads the default AWS config for region and constructs
// an aws: provider.
func NewAWSResolver(ctx context.Context, region string) (*AWSResolver, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("secrets: loading AWS config: %w", err)
	}
	return &AWSResolver{client: secretsmanager.NewFromConfig(cfg)}, nil
}

func (r *AWSResolver) Resolve(ctx context.Context, ref string, version, field *string) (string, error) {
	input := &secretsmanager.GetSecretValueInput{SecretId: &ref}
	if version != nil {
		input.VersionId = version
	}

	out, err := r.client.GetSecretValue(ctx, input)
	if err != nil {
		return "", fmt.Errorf("fetching secret %q: %w", ref, err)
	}

	var raw string
	if out.SecretString != nil {
		raw = *out.SecretString
	} else {
		raw = string(out.SecretBinary)
	}

	if field == nil {
		return raw, nil
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return "", fmt.Errorf("secret %q is not a JSON object: %w", ref, err)
	}
	fv, ok := decoded[*field]
	if !ok {
		return "", fmt.Errorf("field %q not present in secret %q", *field, ref)
	}
	s, ok := fv.(string)
	if !ok {
		return "", fmt.Errorf("field %q in secret %q is not a string", *field, ref)
	}
	return s, nil
}
