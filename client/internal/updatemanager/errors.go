package updatemanager

import (
	"errors"
	"fmt"
)

// Outcome classifies how an update attempt ended
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeDownloadFailed
	OutcomeChecksumMismatch
	OutcomeInstallFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeDownloadFailed:
		return "download_failed"
	case OutcomeChecksumMismatch:
		return "checksum_mismatch"
	case OutcomeInstallFailed:
		return "install_failed"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// DownloadError is a failure to resolve or fetch the artifact or its checksum
type DownloadError struct {
	Err error
}

func (e *DownloadError) Error() string { return fmt.Sprintf("download error: %v", e.Err) }
func (e *DownloadError) Unwrap() error { return e.Err }

// ChecksumError is a digest mismatch or an unreadable artifact
type ChecksumError struct {
	Err error
}

func (e *ChecksumError) Error() string { return fmt.Sprintf("checksum error: %v", e.Err) }
func (e *ChecksumError) Unwrap() error { return e.Err }

// InstallError is a failed request to the installer service
type InstallError struct {
	Err error
}

func (e *InstallError) Error() string { return fmt.Sprintf("install error: %v", e.Err) }
func (e *InstallError) Unwrap() error { return e.Err }

// OutcomeOf maps an attempt error to its outcome; nil is a success and
// unclassified errors count as download failures
func OutcomeOf(err error) Outcome {
	var (
		checksumErr *ChecksumError
		installErr  *InstallError
	)

	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.As(err, &checksumErr):
		return OutcomeChecksumMismatch
	case errors.As(err, &installErr):
		return OutcomeInstallFailed
	default:
		return OutcomeDownloadFailed
	}
}
