package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	secretsmanagertypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSecretsManager struct {
	secrets   map[string]string
	err       error
	requested []string
}

func (f *fakeSecretsManager) GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	id := aws.ToString(in.SecretId)
	f.requested = append(f.requested, id)
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.secrets[id]
	if !ok {
		return nil, &secretsmanagertypes.ResourceNotFoundException{Message: aws.String("Secrets Manager can't find the specified secret.")}
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(v), VersionId: aws.String("v-1")}, nil
}

func TestAWSSecretsManager_Get(t *testing.T) {
	fake := &fakeSecretsManager{secrets: map[string]string{
		"subscription-service/paypal.client_secret": "EFk0u2",
	}}
	p := newAWSSecretsManager(fake, "subscription-service/", zap.NewNop())

	v, err := p.Get(context.Background(), "paypal.client_secret")
	require.NoError(t, err)
	assert.Equal(t, "EFk0u2", v)
	assert.Equal(t, []string{"subscription-service/paypal.client_secret"}, fake.requested)

	_, err = p.Get(context.Background(), "north.epi_key")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAWSSecretsManager_Failure(t *testing.T) {
	p := newAWSSecretsManager(&fakeSecretsManager{err: errors.New("AccessDeniedException")}, "", zap.NewNop())

	_, err := p.Get(context.Background(), "paypal.client_secret")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "AccessDeniedException")
}
