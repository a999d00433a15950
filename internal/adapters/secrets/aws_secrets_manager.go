package secrets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	secretsmanagertypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"go.uber.org/zap"
)

// AWSSecretsManagerConfig contains configuration for AWS Secrets Manager
type AWSSecretsManagerConfig struct {
	// AWS Region (e.g., "us-east-1")
	Region string

	// Optional: AWS profile name (for local development)
	Profile string

	// Optional: Custom endpoint (for LocalStack testing)
	Endpoint string

	// Prefix is prepended to every key to form the secret id,
	// e.g. "subscription-service/" + "paypal.client_secret"
	Prefix string
}

// secretsManagerAPI is the subset of the Secrets Manager client in use
type secretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSSecretsManager reads settings stored as individual plaintext secrets
type AWSSecretsManager struct {
	client secretsManagerAPI
	prefix string
	logger *zap.Logger
}

// NewAWSSecretsManager loads the default AWS credential chain and creates a
// Secrets Manager backed provider
func NewAWSSecretsManager(ctx context.Context, cfg AWSSecretsManagerConfig, logger *zap.Logger) (*AWSSecretsManager, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.Profile != "" {
		// Use specific profile (local development)
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var clientOptions []func(*secretsmanager.Options)
	if cfg.Endpoint != "" {
		clientOptions = append(clientOptions, func(o *secretsmanager.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	logger.Info("AWS Secrets Manager settings provider initialized",
		zap.String("region", cfg.Region),
		zap.String("prefix", cfg.Prefix))

	return newAWSSecretsManager(secretsmanager.NewFromConfig(awsConfig, clientOptions...), cfg.Prefix, logger), nil
}

func newAWSSecretsManager(client secretsManagerAPI, prefix string, logger *zap.Logger) *AWSSecretsManager {
	return &AWSSecretsManager{client: client, prefix: prefix, logger: logger}
}

// Get returns the SecretString of the secret named prefix+key
func (a *AWSSecretsManager) Get(ctx context.Context, key string) (string, error) {
	id := a.prefix + key

	startTime := time.Now()
	result, err := a.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(id),
	})
	if err != nil {
		var notFound *secretsmanagertypes.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return "", fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		a.logger.Error("failed to retrieve secret",
			zap.String("secret_id", id),
			zap.Error(err))
		return "", fmt.Errorf("failed to get secret %s: %w", id, err)
	}

	a.logger.Debug("secret retrieved",
		zap.String("secret_id", id),
		zap.String("version", aws.ToString(result.VersionId)),
		zap.Duration("elapsed", time.Since(startTime)))

	return aws.ToString(result.SecretString), nil
}
