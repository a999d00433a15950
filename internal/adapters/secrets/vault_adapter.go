package secrets

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	vault "github.com/hashicorp/vault/api"
	"go.uber.org/zap"
)

// VaultConfig contains configuration for HashiCorp Vault
type VaultConfig struct {
	// Vault server address (e.g., "https://vault.example.com:8200")
	Address string

	// Authentication method: "token" or "approle"
	AuthMethod string

	// Token for token authentication
	Token string

	// AppRole credentials (if using AppRole auth)
	RoleID   string
	SecretID string

	// Vault namespace (Vault Enterprise)
	Namespace string

	// KV secrets engine mount path (default: "secret")
	MountPath string

	// KV version: "v1" or "v2" (default: "v2")
	KVVersion string

	// Path of the secret holding all settings as fields
	Path string
}

// DefaultVaultConfig returns default configuration for Vault
func DefaultVaultConfig(address, path string) VaultConfig {
	return VaultConfig{
		Address:    address,
		AuthMethod: "token",
		MountPath:  "secret",
		KVVersion:  "v2",
		Path:       path,
	}
}

// Vault reads settings as the fields of a single KV secret. The secret is
// read once per refresh window; individual keys are served from that read.
type Vault struct {
	client *vault.Client
	config VaultConfig
	logger *zap.Logger

	mu       sync.Mutex
	fields   map[string]interface{}
	readAt   time.Time
	maxStale time.Duration
}

// NewVault creates an authenticated Vault provider
func NewVault(ctx context.Context, cfg VaultConfig, logger *zap.Logger) (*Vault, error) {
	if cfg.MountPath == "" {
		cfg.MountPath = "secret"
	}
	if cfg.KVVersion == "" {
		cfg.KVVersion = "v2"
	}

	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = cfg.Address

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	if err := authenticateVault(ctx, client, cfg); err != nil {
		return nil, fmt.Errorf("failed to authenticate with Vault: %w", err)
	}

	logger.Info("Vault settings provider initialized",
		zap.String("address", cfg.Address),
		zap.String("auth_method", cfg.AuthMethod),
		zap.String("mount_path", cfg.MountPath),
		zap.String("kv_version", cfg.KVVersion))

	return &Vault{
		client:   client,
		config:   cfg,
		logger:   logger,
		maxStale: 30 * time.Second,
	}, nil
}

func authenticateVault(ctx context.Context, client *vault.Client, cfg VaultConfig) error {
	switch cfg.AuthMethod {
	case "", "token":
		if cfg.Token == "" {
			return fmt.Errorf("token is required for token auth")
		}
		client.SetToken(cfg.Token)
		return nil

	case "approle":
		if cfg.RoleID == "" || cfg.SecretID == "" {
			return fmt.Errorf("role_id and secret_id are required for AppRole auth")
		}
		resp, err := client.Logical().WriteWithContext(ctx, "auth/approle/login", map[string]interface{}{
			"role_id":   cfg.RoleID,
			"secret_id": cfg.SecretID,
		})
		if err != nil {
			return fmt.Errorf("AppRole login failed: %w", err)
		}
		if resp == nil || resp.Auth == nil {
			return fmt.Errorf("AppRole login returned no auth info")
		}
		client.SetToken(resp.Auth.ClientToken)
		return nil

	default:
		return fmt.Errorf("unsupported auth method: %s", cfg.AuthMethod)
	}
}

// Get returns the field named key of the configured secret
func (v *Vault) Get(ctx context.Context, key string) (string, error) {
	fields, err := v.read(ctx)
	if err != nil {
		return "", err
	}

	raw, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("%s/%s: %w", v.config.Path, key, ErrNotFound)
	}
	value, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("vault field %s is %T, not a string", key, raw)
	}
	return value, nil
}

func (v *Vault) read(ctx context.Context) (map[string]interface{}, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.fields != nil && time.Since(v.readAt) < v.maxStale {
		return v.fields, nil
	}

	path := strings.Trim(v.config.Path, "/")
	fullPath := fmt.Sprintf("%s/%s", v.config.MountPath, path)
	if v.config.KVVersion == "v2" {
		fullPath = fmt.Sprintf("%s/data/%s", v.config.MountPath, path)
	}

	secret, err := v.client.Logical().ReadWithContext(ctx, fullPath)
	if err != nil {
		v.logger.Error("failed to read secret from Vault",
			zap.String("path", fullPath),
			zap.Error(err))
		return nil, fmt.Errorf("failed to read secret from Vault: %w", err)
	}
	if secret == nil {
		return nil, fmt.Errorf("%s: %w", fullPath, ErrNotFound)
	}

	fields := secret.Data
	if v.config.KVVersion == "v2" {
		// KV v2 wraps data in "data" field
		data, ok := secret.Data["data"].(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("invalid secret format from Vault")
		}
		fields = data
	}

	v.fields = fields
	v.readAt = time.Now()
	return fields, nil
}
