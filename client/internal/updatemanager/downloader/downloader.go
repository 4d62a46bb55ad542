package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/BeaudanBrown/GlobalProtect-openconnect/version"
)

const (
	userAgent  = "gpgui-helper/%s"
	bufferSize = 32 * 1024
	tempPrefix = "gpgui-update-*"
)

// ProgressFunc receives the downloaded fraction in [0, 1], or nil when the total size is unknown
type ProgressFunc func(progress *float64)

// TempFile is a downloaded file owned by the caller. Close removes it.
type TempFile struct {
	path string
	once sync.Once
}

// Path returns the location of the downloaded file
func (f *TempFile) Path() string {
	return f.path
}

// Close removes the file from disk. It is safe to call more than once.
func (f *TempFile) Close() error {
	var err error
	f.once.Do(func() {
		if rmErr := os.Remove(f.path); rmErr != nil && !os.IsNotExist(rmErr) {
			err = fmt.Errorf("failed to remove %s: %w", f.path, rmErr)
			return
		}
		log.Debugf("removed temporary file %s", f.path)
	})
	return err
}

// FileDownloader downloads a single URL into a temporary file
type FileDownloader struct {
	url        string
	client     *http.Client
	onProgress ProgressFunc
}

// New creates a downloader for url using the default HTTP client
func New(url string) *FileDownloader {
	return &FileDownloader{
		url:    url,
		client: http.DefaultClient,
	}
}

// WithClient sets the HTTP client used for the download
func (d *FileDownloader) WithClient(client *http.Client) *FileDownloader {
	d.client = client
	return d
}

// OnProgress registers the callback invoked after every chunk written to disk.
// The callback runs on the downloading goroutine.
func (d *FileDownloader) OnProgress(fn ProgressFunc) {
	d.onProgress = fn
}

// Download fetches the URL into a new temporary file. On error no file is left behind.
func (d *FileDownloader) Download(ctx context.Context) (*TempFile, error) {
	log.Debugf("starting download from %s", d.url)

	resp, err := get(ctx, d.client, d.url)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			log.Warnf("error closing response body: %v", cerr)
		}
	}()

	out, err := os.CreateTemp("", tempPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary file: %w", err)
	}
	file := &TempFile{path: out.Name()}

	err = d.copyWithProgress(out, resp.Body, resp.ContentLength)
	if cerr := out.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("failed to close %q: %w", file.path, cerr)
	}
	if err != nil {
		if rmErr := file.Close(); rmErr != nil {
			log.Warnf("failed to clean up partial download: %v", rmErr)
		}
		return nil, err
	}

	log.Infof("successfully downloaded %s to %s", d.url, file.path)
	return file, nil
}

func (d *FileDownloader) copyWithProgress(dst io.Writer, src io.Reader, total int64) error {
	buf := make([]byte, bufferSize)
	var received int64

	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return fmt.Errorf("failed to write response body to file: %w", err)
			}
			received += int64(n)
			d.reportProgress(received, total)
		}

		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return fmt.Errorf("failed to read response body: %w", rerr)
		}
	}
}

func (d *FileDownloader) reportProgress(received, total int64) {
	if d.onProgress == nil {
		return
	}

	if total <= 0 {
		d.onProgress(nil)
		return
	}

	progress := float64(received) / float64(total)
	if progress > 1 {
		progress = 1
	}
	d.onProgress(&progress)
}

// DownloadToMemory reads at most limit bytes from url
func DownloadToMemory(ctx context.Context, client *http.Client, url string, limit int64) ([]byte, error) {
	resp, err := get(ctx, client, url)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			log.Warnf("error closing response body: %v", cerr)
		}
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, nil
}

func get(ctx context.Context, client *http.Client, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	req.Header.Set("User-Agent", fmt.Sprintf(userAgent, version.HelperVersion()))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to perform HTTP request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if cerr := resp.Body.Close(); cerr != nil {
			log.Warnf("error closing response body: %v", cerr)
		}
		return nil, fmt.Errorf("unexpected HTTP status: %d", resp.StatusCode)
	}

	return resp, nil
}
