package updatemanager

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BeaudanBrown/GlobalProtect-openconnect/client/internal/updatemanager/checksum"
	"github.com/BeaudanBrown/GlobalProtect-openconnect/client/internal/updatemanager/downloader"
	"github.com/BeaudanBrown/GlobalProtect-openconnect/client/internal/updatemanager/installer"
	"github.com/BeaudanBrown/GlobalProtect-openconnect/encryption"
	"github.com/BeaudanBrown/GlobalProtect-openconnect/version"
)

var productionBuild = version.Build{Version: "2.4.0", Production: true, Arch: "x86_64"}

type emitted struct {
	event   string
	payload any
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []emitted
	onEmit func(event string)
	err    error
}

func (e *recordingEmitter) Emit(event string, payload any) error {
	if e.onEmit != nil {
		e.onEmit(event)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, emitted{event: event, payload: payload})
	return e.err
}

func (e *recordingEmitter) count(event string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, ev := range e.events {
		if ev.event == event {
			n++
		}
	}
	return n
}

func (e *recordingEmitter) progress() []*float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*float64
	for _, ev := range e.events {
		if ev.event == EventUpdateProgress {
			out = append(out, ev.payload.(*float64))
		}
	}
	return out
}

type fileArtifact struct {
	path   string
	closed atomic.Bool
}

func (a *fileArtifact) Path() string { return a.path }

func (a *fileArtifact) Close() error {
	a.closed.Store(true)
	return os.Remove(a.path)
}

type fakeFetcher struct {
	t        *testing.T
	content  string
	progress []*float64
	err      error
	delay    time.Duration

	called   atomic.Bool
	artifact *fileArtifact
	url      string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string, onProgress downloader.ProgressFunc) (Artifact, error) {
	f.called.Store(true)
	f.url = url
	time.Sleep(f.delay)
	for _, p := range f.progress {
		onProgress(p)
	}
	if f.err != nil {
		return nil, f.err
	}

	path := filepath.Join(f.t.TempDir(), "artifact")
	if err := os.WriteFile(path, []byte(f.content), 0o600); err != nil {
		return nil, err
	}
	f.artifact = &fileArtifact{path: path}
	return f.artifact, nil
}

type fakeChecksums struct {
	sum   string
	err   error
	delay time.Duration

	called atomic.Bool
	url    string
}

func (f *fakeChecksums) FetchChecksum(_ context.Context, url string) (string, error) {
	f.called.Store(true)
	f.url = url
	time.Sleep(f.delay)
	return f.sum, f.err
}

type fakeInstaller struct {
	err    error
	during func()

	calls    int
	path     string
	checksum string
}

func (f *fakeInstaller) Install(_ context.Context, path, sum string) error {
	f.calls++
	f.path = path
	f.checksum = sum
	if f.during != nil {
		f.during()
	}
	return f.err
}

func sha(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func ptr(v float64) *float64 {
	return &v
}

type fixture struct {
	updater   *GuiUpdater
	emitter   *recordingEmitter
	fetcher   *fakeFetcher
	checksums *fakeChecksums
	installer *fakeInstaller
	verified  *atomic.Bool
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	const content = "gpgui binary"
	f := &fixture{
		emitter:   &recordingEmitter{},
		fetcher:   &fakeFetcher{t: t, content: content},
		checksums: &fakeChecksums{sum: sha(content)},
		installer: &fakeInstaller{},
		verified:  &atomic.Bool{},
	}

	f.updater = NewGuiUpdater("2.4.1", NewProgressNotifier(f.emitter), f.installer, WithBuild(productionBuild))
	f.updater.fetcher = f.fetcher
	f.updater.checksums = f.checksums
	f.updater.verify = func(path, sum string) error {
		f.verified.Store(true)
		return checksum.Verify(path, sum)
	}
	return f
}

func (f *fixture) assertTerminal(t *testing.T, wantDone bool) {
	t.Helper()

	done := f.emitter.count(EventUpdateDone)
	errs := f.emitter.count(EventUpdateError)
	if wantDone {
		assert.Equal(t, 1, done, "done notifications")
		assert.Equal(t, 0, errs, "error notifications")
	} else {
		assert.Equal(t, 0, done, "done notifications")
		assert.Equal(t, 1, errs, "error notifications")
	}
	assert.False(t, f.updater.IsInProgress())
}

func TestUpdate_Success(t *testing.T) {
	f := newFixture(t)
	f.updater.Update(context.Background())

	f.assertTerminal(t, true)
	assert.True(t, f.verified.Load())
	require.Equal(t, 1, f.installer.calls)
	assert.Equal(t, f.fetcher.artifact.path, f.installer.path)
	assert.Equal(t, f.checksums.sum, f.installer.checksum)

	assert.Equal(t, "https://github.com/yuezk/GlobalProtect-openconnect/releases/download/v2.4.1/gpgui_x86_64.bin.tar.xz", f.fetcher.url)
	assert.Equal(t, f.fetcher.url+".sha256", f.checksums.url)

	// the temporary artifact does not outlive the attempt
	assert.True(t, f.fetcher.artifact.closed.Load())
	_, err := os.Stat(f.fetcher.artifact.path)
	assert.True(t, os.IsNotExist(err))
}

func TestUpdate_DownloadError(t *testing.T) {
	f := newFixture(t)
	f.fetcher.err = errors.New("network unreachable")

	f.updater.Update(context.Background())

	f.assertTerminal(t, false)
	assert.False(t, f.verified.Load())
	assert.Equal(t, 0, f.installer.calls)
	// both fetches were started
	assert.True(t, f.checksums.called.Load())
}

func TestUpdate_ChecksumFetchError(t *testing.T) {
	f := newFixture(t)
	f.checksums.err = errors.New("404")
	f.fetcher.delay = 20 * time.Millisecond

	f.updater.Update(context.Background())

	f.assertTerminal(t, false)
	assert.False(t, f.verified.Load())
	assert.Equal(t, 0, f.installer.calls)

	// the artifact download was allowed to finish and was cleaned up
	require.NotNil(t, f.fetcher.artifact)
	assert.True(t, f.fetcher.artifact.closed.Load())
}

func TestUpdate_ChecksumMismatch(t *testing.T) {
	f := newFixture(t)
	f.checksums.sum = "abc123"
	f.fetcher.content = "content hashing to something else"

	f.updater.Update(context.Background())

	f.assertTerminal(t, false)
	assert.True(t, f.verified.Load())
	assert.Equal(t, 0, f.installer.calls)
	assert.True(t, f.fetcher.artifact.closed.Load())
}

func TestUpdate_InstallError(t *testing.T) {
	f := newFixture(t)
	f.installer.err = errors.New("service returned HTTP status 500")

	f.updater.Update(context.Background())

	f.assertTerminal(t, false)
	assert.Equal(t, 1, f.installer.calls)
	assert.True(t, f.fetcher.artifact.closed.Load())
}

func TestUpdate_InvalidVersion(t *testing.T) {
	f := newFixture(t)
	f.updater.version = "not a version"

	f.updater.Update(context.Background())

	f.assertTerminal(t, false)
	assert.False(t, f.fetcher.called.Load())
	assert.False(t, f.checksums.called.Load())
}

func TestUpdate_SnapshotBuild(t *testing.T) {
	f := newFixture(t)
	f.updater.build = version.Build{Production: false, Arch: "aarch64"}

	f.updater.Update(context.Background())

	f.assertTerminal(t, true)
	assert.Equal(t, "https://github.com/yuezk/GlobalProtect-openconnect/releases/download/snapshot/gpgui_aarch64.bin.tar.xz", f.fetcher.url)
}

func TestUpdate_InProgressWindow(t *testing.T) {
	f := newFixture(t)
	assert.False(t, f.updater.IsInProgress())

	var duringInstall bool
	f.installer.during = func() {
		duringInstall = f.updater.IsInProgress()
	}

	var atTerminal []bool
	f.emitter.onEmit = func(event string) {
		switch event {
		case EventUpdateProgress:
			assert.True(t, f.updater.IsInProgress(), "in progress while downloading")
		case EventUpdateDone, EventUpdateError:
			atTerminal = append(atTerminal, f.updater.IsInProgress())
		}
	}
	f.fetcher.progress = []*float64{ptr(0.5)}

	f.updater.Update(context.Background())

	assert.True(t, duringInstall)
	assert.Equal(t, []bool{false}, atTerminal)
	assert.False(t, f.updater.IsInProgress())
}

func TestUpdate_ForwardsReportedProgress(t *testing.T) {
	f := newFixture(t)
	f.fetcher.progress = []*float64{ptr(0.25), nil, ptr(1)}

	f.updater.Update(context.Background())

	got := f.emitter.progress()
	require.Len(t, got, 3)
	assert.Equal(t, 0.25, *got[0])
	assert.Nil(t, got[1])
	assert.Equal(t, 1.0, *got[2])

	// the last value stays available after the attempt ended
	f.updater.NotifyProgress()
	got = f.emitter.progress()
	require.Len(t, got, 4)
	require.NotNil(t, got[3])
	assert.Equal(t, 1.0, *got[3])
}

func TestNotifyProgress_BeforeAnyUpdate(t *testing.T) {
	f := newFixture(t)

	f.updater.NotifyProgress()

	got := f.emitter.progress()
	require.Len(t, got, 1)
	assert.Nil(t, got[0])
}

func TestSharedState_Contention(t *testing.T) {
	f := newFixture(t)
	f.updater.onProgress(ptr(0.3))

	f.updater.progress.mu.Lock()

	done := make(chan struct{})
	go func() {
		defer close(done)

		// reads give up instead of waiting
		assert.False(t, f.updater.IsInProgress())
		f.updater.NotifyProgress()

		// the write is dropped but the value still reaches the UI
		f.updater.onProgress(ptr(0.6))
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("shared state access blocked")
	}

	f.updater.progress.mu.Unlock()

	got := f.emitter.progress()
	require.Len(t, got, 3)
	assert.Equal(t, 0.3, *got[0])
	assert.Nil(t, got[1])
	assert.Equal(t, 0.6, *got[2])

	last, ok := f.updater.progress.TryLoad()
	require.True(t, ok)
	assert.Equal(t, 0.3, *last)
	assert.False(t, f.updater.IsInProgress())
}

func TestUpdate_ConcurrentStatusQueries(t *testing.T) {
	for attempt := 0; attempt < 20; attempt++ {
		f := newFixture(t)
		for i := 1; i <= 200; i++ {
			f.fetcher.progress = append(f.fetcher.progress, ptr(float64(i)/200))
		}

		stop := make(chan struct{})
		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					select {
					case <-stop:
						return
					default:
						f.updater.IsInProgress()
						f.updater.NotifyProgress()
					}
				}
			}()
		}

		f.updater.Update(context.Background())

		// the flag is already clear while the pollers are still running
		assert.False(t, f.updater.IsInProgress(), "attempt %d", attempt)
		close(stop)
		wg.Wait()

		f.assertTerminal(t, true)
		for _, p := range f.emitter.progress() {
			if p != nil {
				assert.GreaterOrEqual(t, *p, 0.0)
				assert.LessOrEqual(t, *p, 1.0)
			}
		}
	}
}

func TestUpdate_EmitFailuresAreIgnored(t *testing.T) {
	f := newFixture(t)
	f.emitter.err = errors.New("window closed")
	f.fetcher.progress = []*float64{ptr(0.5)}

	f.updater.Update(context.Background())

	f.assertTerminal(t, true)
	assert.Equal(t, 1, f.installer.calls)
}

func TestUpdate_EndToEnd(t *testing.T) {
	const content = "gpgui release archive"
	key := bytes.Repeat([]byte{5}, encryption.KeySize)
	crypto, err := encryption.New(key)
	require.NoError(t, err)

	tests := []struct {
		name          string
		checksum      string
		installStatus int
		wantDone      bool
		wantInstall   bool
	}{
		{name: "installed", checksum: sha(content), installStatus: http.StatusOK, wantDone: true, wantInstall: true},
		{name: "checksum mismatch", checksum: "abc123", installStatus: http.StatusOK, wantInstall: false},
		{name: "installer failure", checksum: sha(content), installStatus: http.StatusInternalServerError, wantInstall: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			releases := http.NewServeMux()
			releases.HandleFunc("/releases/download/v2.4.1/gpgui_x86_64.bin.tar.xz", func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(content))
			})
			releases.HandleFunc("/releases/download/v2.4.1/gpgui_x86_64.bin.tar.xz.sha256", func(w http.ResponseWriter, r *http.Request) {
				_, _ = fmt.Fprintf(w, "%s  gpgui_x86_64.bin.tar.xz\n", tt.checksum)
			})
			releaseServer := httptest.NewServer(releases)
			defer releaseServer.Close()

			var installed atomic.Int32
			var req installer.UpdateGuiRequest
			service := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				installed.Add(1)
				var body bytes.Buffer
				_, _ = body.ReadFrom(r.Body)
				if !assert.NoError(t, crypto.Decrypt(body.Bytes(), &req)) {
					w.WriteHeader(http.StatusBadRequest)
					return
				}
				// the artifact still exists while the service handles it
				_, statErr := os.Stat(req.Path)
				assert.NoError(t, statErr)
				w.WriteHeader(tt.installStatus)
			}))
			defer service.Close()

			emitter := &recordingEmitter{}
			u := NewGuiUpdater("v2.4.1", NewProgressNotifier(emitter),
				installer.New(crypto, installer.StaticEndpoint(service.URL)),
				WithBuild(productionBuild),
				WithReleaseSource(ReleaseSource{BaseURL: releaseServer.URL, ArtifactName: "gpgui"}),
				WithHTTPClient(releaseServer.Client()),
			)

			u.Update(context.Background())

			if tt.wantDone {
				assert.Equal(t, 1, emitter.count(EventUpdateDone))
				assert.Equal(t, 0, emitter.count(EventUpdateError))
			} else {
				assert.Equal(t, 0, emitter.count(EventUpdateDone))
				assert.Equal(t, 1, emitter.count(EventUpdateError))
			}
			assert.False(t, u.IsInProgress())

			if !tt.wantInstall {
				assert.Equal(t, int32(0), installed.Load())
				return
			}
			require.Equal(t, int32(1), installed.Load())
			assert.Equal(t, sha(content), req.Checksum)
			_, statErr := os.Stat(req.Path)
			assert.True(t, os.IsNotExist(statErr))
			assert.NotEmpty(t, emitter.progress())
		})
	}
}
