package installer

import (
	"context"
	"fmt"

	"github.com/BeaudanBrown/GlobalProtect-openconnect/util"
)

// DefaultLockFile is written by the service once its HTTP API is listening
const DefaultLockFile = "/var/run/gpservice.lock"

// EndpointResolver discovers the base URL of the local service API
type EndpointResolver interface {
	HTTPEndpoint(ctx context.Context) (string, error)
}

type lockFileContent struct {
	Pid  int `json:"pid"`
	Port int `json:"port"`
}

// LockFileResolver reads the service port from its lock file
type LockFileResolver struct {
	path string
}

func NewLockFileResolver(path string) *LockFileResolver {
	return &LockFileResolver{path: path}
}

func (r *LockFileResolver) HTTPEndpoint(_ context.Context) (string, error) {
	if !util.FileExists(r.path) {
		return "", fmt.Errorf("service lock file %s not found, is the service running?", r.path)
	}

	var content lockFileContent
	if _, err := util.ReadJson(r.path, &content); err != nil {
		return "", fmt.Errorf("failed to read service lock file: %w", err)
	}

	if content.Port <= 0 || content.Port > 65535 {
		return "", fmt.Errorf("invalid service port %d in %s", content.Port, r.path)
	}

	return fmt.Sprintf("http://127.0.0.1:%d", content.Port), nil
}

// StaticEndpoint always resolves to the same base URL
type StaticEndpoint string

func (s StaticEndpoint) HTTPEndpoint(_ context.Context) (string, error) {
	return string(s), nil
}
