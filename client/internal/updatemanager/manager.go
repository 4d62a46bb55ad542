package updatemanager

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/BeaudanBrown/GlobalProtect-openconnect/client/internal/updatemanager/checksum"
	"github.com/BeaudanBrown/GlobalProtect-openconnect/client/internal/updatemanager/downloader"
	"github.com/BeaudanBrown/GlobalProtect-openconnect/version"
)

// Artifact is a downloaded file owned by one update attempt
type Artifact interface {
	Path() string
	Close() error
}

type ArtifactFetcher interface {
	Fetch(ctx context.Context, url string, onProgress downloader.ProgressFunc) (Artifact, error)
}

type ChecksumFetcher interface {
	FetchChecksum(ctx context.Context, url string) (string, error)
}

// Installer hands a verified artifact to the privileged service
type Installer interface {
	Install(ctx context.Context, path, checksum string) error
}

type Option func(*GuiUpdater)

// WithBuild overrides the build values used to select the release channel and architecture
func WithBuild(build version.Build) Option {
	return func(u *GuiUpdater) {
		u.build = build
	}
}

func WithReleaseSource(source ReleaseSource) Option {
	return func(u *GuiUpdater) {
		u.source = source
	}
}

// WithHTTPClient sets the client used to fetch the artifact and its checksum
func WithHTTPClient(client *http.Client) Option {
	return func(u *GuiUpdater) {
		u.fetcher = &httpFetcher{client: client}
		u.checksums = &httpFetcher{client: client}
	}
}

// GuiUpdater downloads, verifies and installs a new GUI release.
//
// The outcome of Update is only reported through the notifier: exactly one
// error or done event per attempt. Update does not guard against concurrent
// attempts; callers check IsInProgress first.
type GuiUpdater struct {
	version   string
	build     version.Build
	source    ReleaseSource
	notifier  *ProgressNotifier
	installer Installer

	fetcher   ArtifactFetcher
	checksums ChecksumFetcher
	verify    func(path, checksum string) error

	inProgress atomic.Bool
	progress   tryLockValue[*float64]
}

func NewGuiUpdater(targetVersion string, notifier *ProgressNotifier, installer Installer, opts ...Option) *GuiUpdater {
	u := &GuiUpdater{
		version:   targetVersion,
		build:     version.Current(),
		source:    DefaultReleaseSource(),
		notifier:  notifier,
		installer: installer,
		fetcher:   &httpFetcher{client: http.DefaultClient},
		checksums: &httpFetcher{client: http.DefaultClient},
		verify:    checksum.Verify,
	}

	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Update runs one update attempt to completion. Cancelling ctx fails the
// attempt at its current phase.
func (u *GuiUpdater) Update(ctx context.Context) {
	log.Infof("Update GUI, version: %s", u.version)

	target, err := NewTarget(u.version, u.build)
	if err != nil {
		u.fail(&DownloadError{Err: err})
		return
	}

	location := u.source.Locate(target)
	log.Infof("Downloading file: %s (channel %s)", location.ArtifactURL, target.Channel)

	u.setInProgress(true)

	artifact, sum, err := u.download(ctx, location)
	if artifact != nil {
		defer u.release(artifact)
	}
	if err != nil {
		u.fail(&DownloadError{Err: err})
		return
	}

	if err := u.verify(artifact.Path(), sum); err != nil {
		u.fail(&ChecksumError{Err: err})
		return
	}
	log.Info("Checksum success")

	if err := u.installer.Install(ctx, artifact.Path(), sum); err != nil {
		u.fail(&InstallError{Err: err})
		return
	}

	log.Info("Install success")
	u.notifyDone()
}

// download fetches the artifact and its checksum concurrently. Both fetches run
// to completion; the first error is returned. The artifact is returned whenever
// it was downloaded so the caller can release it.
func (u *GuiUpdater) download(ctx context.Context, location Location) (Artifact, string, error) {
	var (
		g        errgroup.Group
		artifact Artifact
		sum      string
	)

	g.Go(func() error {
		a, err := u.fetcher.Fetch(ctx, location.ArtifactURL, u.onProgress)
		if err != nil {
			return fmt.Errorf("fetch artifact: %w", err)
		}
		artifact = a
		return nil
	})

	g.Go(func() error {
		s, err := u.checksums.FetchChecksum(ctx, location.ChecksumURL)
		if err != nil {
			return fmt.Errorf("fetch checksum: %w", err)
		}
		sum = s
		return nil
	})

	err := g.Wait()
	return artifact, sum, err
}

// onProgress runs on the downloader goroutine
func (u *GuiUpdater) onProgress(progress *float64) {
	if progress != nil {
		p := *progress
		progress = &p
	}

	// Save progress to shared state so that it can be re-sent to the UI when needed
	if !u.progress.TryStore(progress) {
		log.Info("Failed to acquire progress lock")
	}
	u.notifier.Notify(progress)
}

func (u *GuiUpdater) release(artifact Artifact) {
	if err := artifact.Close(); err != nil {
		log.Warnf("failed to remove downloaded artifact: %v", err)
	}
}

// IsInProgress reports whether an attempt is running
func (u *GuiUpdater) IsInProgress() bool {
	return u.inProgress.Load()
}

// NotifyProgress re-sends the last known progress, e.g. after the UI reloaded
func (u *GuiUpdater) NotifyProgress() {
	progress, ok := u.progress.TryLoad()
	if !ok {
		log.Info("Failed to acquire progress lock")
		progress = nil
	}

	u.notifier.Notify(progress)
}

// setInProgress never waits and is never dropped, so the flag is cleared
// before the terminal event even while the UI polls the status.
func (u *GuiUpdater) setInProgress(inProgress bool) {
	u.inProgress.Store(inProgress)
}

func (u *GuiUpdater) fail(err error) {
	log.WithField("outcome", OutcomeOf(err)).Warnf("Update failed: %v", err)
	u.notifyError()
}

func (u *GuiUpdater) notifyError() {
	u.setInProgress(false)
	u.notifier.NotifyError()
}

func (u *GuiUpdater) notifyDone() {
	u.setInProgress(false)
	u.notifier.NotifyDone()
}

// httpFetcher adapts the downloader package to the fetcher interfaces
type httpFetcher struct {
	client *http.Client
}

func (f *httpFetcher) Fetch(ctx context.Context, url string, onProgress downloader.ProgressFunc) (Artifact, error) {
	dl := downloader.New(url).WithClient(f.client)
	dl.OnProgress(onProgress)

	file, err := dl.Download(ctx)
	if err != nil {
		return nil, err
	}
	return file, nil
}

func (f *httpFetcher) FetchChecksum(ctx context.Context, url string) (string, error) {
	return downloader.NewChecksumFetcher(url).WithClient(f.client).Fetch(ctx)
}
