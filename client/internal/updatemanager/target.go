package updatemanager

import (
	"errors"
	"fmt"
	"strings"

	goversion "github.com/hashicorp/go-version"

	"github.com/BeaudanBrown/GlobalProtect-openconnect/version"
)

const (
	DefaultReleaseBaseURL = "https://github.com/yuezk/GlobalProtect-openconnect"
	DefaultArtifactName   = "gpgui"

	snapshotTag    = "snapshot"
	artifactURL    = "%s/releases/download/%s/%s_%s.bin.tar.xz"
	checksumSuffix = ".sha256"
)

type ReleaseChannel int

const (
	ChannelRelease ReleaseChannel = iota
	ChannelSnapshot
)

func (c ReleaseChannel) String() string {
	switch c {
	case ChannelRelease:
		return "release"
	case ChannelSnapshot:
		return "snapshot"
	default:
		return fmt.Sprintf("ReleaseChannel(%d)", int(c))
	}
}

// Target identifies the artifact an update attempt installs
type Target struct {
	Version string
	Channel ReleaseChannel
	Arch    string
}

// NewTarget derives the update target from the requested version and the build values
func NewTarget(targetVersion string, build version.Build) (Target, error) {
	if build.Arch == "" {
		return Target{}, errors.New("unknown architecture")
	}

	t := Target{
		Version: targetVersion,
		Channel: ChannelRelease,
		Arch:    build.Arch,
	}

	if build.IsSnapshot() {
		t.Channel = ChannelSnapshot
		return t, nil
	}

	v, err := goversion.NewVersion(targetVersion)
	if err != nil {
		return Target{}, fmt.Errorf("invalid target version %q: %w", targetVersion, err)
	}
	t.Version = strings.TrimPrefix(v.Original(), "v")

	return t, nil
}

// ReleaseTag returns the release path segment of the artifact
func (t Target) ReleaseTag() string {
	if t.Channel == ChannelSnapshot {
		return snapshotTag
	}
	return "v" + t.Version
}

// ReleaseSource is the release host and the base name of the published artifact
type ReleaseSource struct {
	BaseURL      string
	ArtifactName string
}

// DefaultReleaseSource points at the public GitHub releases
func DefaultReleaseSource() ReleaseSource {
	return ReleaseSource{
		BaseURL:      DefaultReleaseBaseURL,
		ArtifactName: DefaultArtifactName,
	}
}

// Location is where the artifact of a target and its checksum are published
type Location struct {
	ArtifactURL string
	ChecksumURL string
}

// Locate builds the download URLs of t
func (s ReleaseSource) Locate(t Target) Location {
	file := fmt.Sprintf(artifactURL, strings.TrimSuffix(s.BaseURL, "/"), t.ReleaseTag(), s.ArtifactName, t.Arch)
	return Location{
		ArtifactURL: file,
		ChecksumURL: file + checksumSuffix,
	}
}
