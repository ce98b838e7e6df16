// Package fetch is the Asset Fetcher (component B): resolves source URLs
// (including proxy-wrapped forms), downloads to a scoped temp directory,
// and sends the header set the upstream media host requires.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mlb-digital/hapctl/internal/domain/haperrors"
	"github.com/mlb-digital/hapctl/internal/ports"
)

type Adapter struct {
	client  *http.Client
	referer string
	origin  string
}

func New() *Adapter {
	return &Adapter{
		client:  &http.Client{Timeout: 60 * time.Second},
		referer: "https://www.mlb.com/",
		origin:  "https://www.mlb.com",
	}
}

// Fetch downloads sourceURL into destDir, caching by URL hash so repeated
// calls for the same URL within one working directory don't re-download.
func (a *Adapter) Fetch(ctx context.Context, sourceURL, destDir string) (string, error) {
	resolved, err := normalizeURL(sourceURL)
	if err != nil {
		return "", haperrors.Wrap(haperrors.KindValidation, "normalize source URL", err)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", haperrors.Wrap(haperrors.KindInternal, "create fetch dest dir", err)
	}

	localPath := filepath.Join(destDir, hashURL(resolved)+filepath.Ext(resolved))
	if _, err := os.Stat(localPath); err == nil {
		return localPath, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolved, nil)
	if err != nil {
		return "", haperrors.Wrap(haperrors.KindNetwork, "build fetch request", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; hapctl/1.0)")
	req.Header.Set("Referer", a.referer)
	req.Header.Set("Origin", a.origin)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", haperrors.Wrap(haperrors.KindNetwork, "fetch asset", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", haperrors.New(haperrors.KindUpstreamRejected,
			fmt.Sprintf("upstream returned %d for %s", resp.StatusCode, resolved))
	}

	tmp, err := os.CreateTemp(destDir, "fetch-*.tmp")
	if err != nil {
		return "", haperrors.Wrap(haperrors.KindInternal, "create fetch temp file", err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", haperrors.Wrap(haperrors.KindNetwork, "write fetched asset", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", haperrors.Wrap(haperrors.KindInternal, "close fetch temp file", err)
	}

	if err := os.Rename(tmpName, localPath); err != nil {
		os.Remove(tmpName)
		return "", haperrors.Wrap(haperrors.KindInternal, "finalize fetched asset", err)
	}

	return localPath, nil
}

// normalizeURL unwraps a video-proxy URL (of the shape
// "*video-proxy?url=<encoded>") down to the real source, per §4.B.
func normalizeURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if strings.Contains(u.Path, "video-proxy") {
		inner := u.Query().Get("url")
		if inner != "" {
			decoded, err := url.QueryUnescape(inner)
			if err != nil {
				return "", err
			}
			return decoded, nil
		}
	}
	return raw, nil
}

func hashURL(u string) string {
	sum := sha256.Sum256([]byte(u))
	return hex.EncodeToString(sum[:])[:16]
}

var _ ports.Fetcher = (*Adapter)(nil)
