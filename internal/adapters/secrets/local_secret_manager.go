package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// LocalFiles reads each setting from a file named after its key under a
// base directory, the layout of mounted Kubernetes or Docker secrets.
// Files may hold the plain value or JSON {"value": "..."}.
type LocalFiles struct {
	basePath string
	logger   *zap.Logger
}

// NewLocalFiles creates a filesystem-backed provider
func NewLocalFiles(basePath string, logger *zap.Logger) *LocalFiles {
	return &LocalFiles{basePath: basePath, logger: logger}
}

func (m *LocalFiles) Get(ctx context.Context, key string) (string, error) {
	if strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid setting key %q", key)
	}
	filePath := filepath.Join(m.basePath, key)

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return "", fmt.Errorf("failed to read secret: %w", err)
	}

	var secretData struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(data, &secretData); err == nil && secretData.Value != "" {
		return secretData.Value, nil
	}

	m.logger.Debug("read setting from file", zap.String("key", key))
	return strings.TrimSpace(string(data)), nil
}
