package installer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	updateGuiPath  = "/update-gui"
	requestTimeout = 2 * time.Minute
)

// Encrypter seals the request body for the service
type Encrypter interface {
	Encrypt(v any) ([]byte, error)
}

// Client hands a verified artifact over to the privileged service
type Client struct {
	crypto   Encrypter
	resolver EndpointResolver
	client   *http.Client
}

func New(crypto Encrypter, resolver EndpointResolver) *Client {
	return &Client{
		crypto:   crypto,
		resolver: resolver,
		client:   &http.Client{Timeout: requestTimeout},
	}
}

// Install asks the service to install the artifact at path. Any non-2xx response is an error.
func (c *Client) Install(ctx context.Context, path, checksum string) error {
	endpoint, err := c.resolver.HTTPEndpoint(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve service endpoint: %w", err)
	}

	payload, err := c.crypto.Encrypt(&UpdateGuiRequest{
		Path:     path,
		Checksum: checksum,
	})
	if err != nil {
		return fmt.Errorf("failed to encrypt request: %w", err)
	}

	url := strings.TrimSuffix(endpoint, "/") + updateGuiPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	log.Debugf("sending install request to %s", url)
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send install request: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			log.Warnf("error closing response body: %v", cerr)
		}
	}()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("service returned HTTP status %d", resp.StatusCode)
	}

	return nil
}
