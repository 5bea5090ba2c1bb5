// Package secrets resolves the Google service-account key from AWS.
// Plain names are Secrets Manager secret IDs; names prefixed with "ssm:" are
// SecureString parameters in Systems Manager Parameter Store.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/smithy-go"
)

// ParameterPrefix marks a name as an SSM parameter.
const ParameterPrefix = "ssm:"

var (
	ErrSecretNotFound = errors.New("secret not found")
	ErrSecretEmpty    = errors.New("secret value is empty")
	ErrAccessDenied   = errors.New("access denied to secret")
)

type ManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

type ParameterAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

type Client struct {
	manager ManagerAPI
	params  ParameterAPI
}

func New(manager ManagerAPI, params ParameterAPI) *Client {
	return &Client{manager: manager, params: params}
}

func NewFromConfig(cfg aws.Config) *Client {
	return New(secretsmanager.NewFromConfig(cfg), ssm.NewFromConfig(cfg))
}

// Get returns the value stored under name.
func (c *Client) Get(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("secret name cannot be empty")
	}
	if param, ok := strings.CutPrefix(name, ParameterPrefix); ok {
		return c.parameter(ctx, param)
	}
	return c.secret(ctx, name)
}

func (c *Client) secret(ctx context.Context, id string) (string, error) {
	out, err := c.manager.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(id)})
	if err != nil {
		return "", fmt.Errorf("get secret %s: %w", id, classify(err))
	}
	switch {
	case out.SecretString != nil && *out.SecretString != "":
		return *out.SecretString, nil
	case len(out.SecretBinary) > 0:
		return string(out.SecretBinary), nil
	default:
		return "", fmt.Errorf("get secret %s: %w", id, ErrSecretEmpty)
	}
}

func (c *Client) parameter(ctx context.Context, name string) (string, error) {
	out, err := c.params.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("get parameter %s: %w", name, classify(err))
	}
	if out.Parameter == nil || aws.ToString(out.Parameter.Value) == "" {
		return "", fmt.Errorf("get parameter %s: %w", name, ErrSecretEmpty)
	}
	return aws.ToString(out.Parameter.Value), nil
}

func classify(err error) error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.ErrorCode() {
	case "ResourceNotFoundException", "ParameterNotFound":
		return fmt.Errorf("%w: %w", ErrSecretNotFound, err)
	case "AccessDeniedException", "AccessDenied":
		return fmt.Errorf("%w: %w", ErrAccessDenied, err)
	}
	return err
}
