package downloader

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
)

// checksumLimit is large enough for a sha256sum line with a long file name
const checksumLimit = 1024

// ChecksumFetcher downloads the expected digest published next to a release artifact
type ChecksumFetcher struct {
	url    string
	client *http.Client
}

func NewChecksumFetcher(url string) *ChecksumFetcher {
	return &ChecksumFetcher{
		url:    url,
		client: http.DefaultClient,
	}
}

// WithClient sets the HTTP client used for the fetch
func (c *ChecksumFetcher) WithClient(client *http.Client) *ChecksumFetcher {
	c.client = client
	return c
}

// Fetch returns the lower-cased hex digest. Both a bare digest and the
// "<digest>  <file name>" sha256sum format are accepted.
func (c *ChecksumFetcher) Fetch(ctx context.Context) (string, error) {
	data, err := DownloadToMemory(ctx, c.client, c.url, checksumLimit)
	if err != nil {
		return "", err
	}

	return ParseChecksum(string(data))
}

// ParseChecksum extracts the digest from the first field of content
func ParseChecksum(content string) (string, error) {
	fields := strings.Fields(content)
	if len(fields) == 0 {
		return "", fmt.Errorf("empty checksum file")
	}

	sum := strings.ToLower(fields[0])
	if _, err := hex.DecodeString(sum); err != nil {
		return "", fmt.Errorf("invalid checksum %q: %w", fields[0], err)
	}

	return sum, nil
}
