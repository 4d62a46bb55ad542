package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

// MismatchError is returned when the digest of a file differs from the expected one
type MismatchError struct {
	Path     string
	Expected string
	Actual   string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s: expected %s, got %s", e.Path, e.Expected, e.Actual)
}

// Compute returns the hex encoded SHA-256 digest of the file
func Compute(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Warnf("failed to close %s: %v", path, err)
		}
	}()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify recomputes the digest of path and compares it with expected, ignoring case
func Verify(path, expected string) error {
	expected = strings.ToLower(strings.TrimSpace(expected))
	if expected == "" {
		return fmt.Errorf("empty expected checksum for %s", path)
	}

	actual, err := Compute(path)
	if err != nil {
		return err
	}

	if actual != expected {
		return &MismatchError{Path: path, Expected: expected, Actual: actual}
	}

	log.Debugf("checksum verified for %s", path)
	return nil
}
