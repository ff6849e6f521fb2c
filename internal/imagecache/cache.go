package imagecache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BroadApps-official/App-056/internal/logger"
	"github.com/BroadApps-official/App-056/internal/metrics"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	prefetchConcurrency = 4
	maxImageBytes       = 32 << 20
	fetchTimeout        = 60 * time.Second
)

var (
	ErrHostNotAllowed = errors.New("imagecache: host not allowed")
	ErrNotImage       = errors.New("imagecache: response is not an image")
)

type Options struct {
	Dir        string
	HTTPClient *http.Client
	// AllowedHosts limits downloads to these hosts and their subdomains. Empty
	// allows any host.
	AllowedHosts []string
}

// Cache is a read-through disk cache of remote images keyed by the SHA-256 of
// their URL. Entries are never evicted.
type Cache struct {
	dir        string
	httpClient *http.Client
	hosts      []string
	group      singleflight.Group
	log        *logger.Logger
}

func New(opts Options, log *logger.Logger) (*Cache, error) {
	if opts.Dir == "" {
		return nil, errors.New("cache dir is required")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}

	hosts := make([]string, 0, len(opts.AllowedHosts))
	for _, h := range opts.AllowedHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			hosts = append(hosts, h)
		}
	}

	client := &http.Client{Timeout: 30 * time.Second}
	if opts.HTTPClient != nil {
		copied := *opts.HTTPClient
		client = &copied
	}
	c := &Cache{
		dir:        opts.Dir,
		httpClient: client,
		hosts:      hosts,
		log:        log.With("service", "ImageCache"),
	}
	// Redirects must stay inside the allowlist too.
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= 10 {
			return errors.New("stopped after 10 redirects")
		}
		if !c.Allowed(req.URL.String()) {
			return fmt.Errorf("%w: %s", ErrHostNotAllowed, req.URL.Hostname())
		}
		return nil
	}
	return c, nil
}

// Allowed reports whether rawURL is an http(s) URL on an allowed host.
func (c *Cache) Allowed(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return false
	}
	if len(c.hosts) == 0 {
		return true
	}
	host := strings.ToLower(u.Hostname())
	for _, allowed := range c.hosts {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

func Key(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

// Path is where the image for url lives once cached.
func (c *Cache) Path(url string) string {
	return filepath.Join(c.dir, Key(url)+".jpg")
}

func (c *Cache) Has(url string) bool {
	_, err := os.Stat(c.Path(url))
	return err == nil
}

// Get returns the cached bytes for url, downloading and storing them first on
// a miss. Concurrent misses for one url share a single download, which keeps
// running when the caller that started it goes away.
func (c *Cache) Get(ctx context.Context, url string) ([]byte, error) {
	if !c.Allowed(url) {
		return nil, ErrHostNotAllowed
	}

	path := c.Path(url)
	if data, err := os.ReadFile(path); err == nil {
		metrics.CacheLookup(true)
		return data, nil
	}
	metrics.CacheLookup(false)

	ch := c.group.DoChan(path, func() (interface{}, error) {
		// Another caller may have finished the download while we waited.
		if data, err := os.ReadFile(path); err == nil {
			return data, nil
		}
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()
		data, err := c.fetch(fetchCtx, url)
		if err != nil {
			return nil, err
		}
		if err := c.write(path, data); err != nil {
			c.log.Warn("Failed to persist cached image", "path", path, "error", err)
		}
		return data, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

// Prefetch warms the cache for urls. Failures are logged and otherwise ignored.
func (c *Cache) Prefetch(ctx context.Context, urls []string) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(prefetchConcurrency)

	seen := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		if c.Has(u) {
			continue
		}
		u := u
		g.Go(func() error {
			if _, err := c.Get(gctx, u); err != nil {
				c.log.Debug("Prefetch failed", "url", u, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (c *Cache) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image body: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", maxImageBytes)
	}
	if !isImage(resp.Header.Get("Content-Type"), data) {
		return nil, ErrNotImage
	}
	return data, nil
}

// isImage trusts the sniffed bytes first. A declared image type is accepted
// only when sniffing cannot tell, as with formats it does not know.
func isImage(declared string, data []byte) bool {
	sniffed := http.DetectContentType(data)
	if strings.HasPrefix(sniffed, "image/") {
		return true
	}
	if sniffed != "application/octet-stream" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(declared)
	return err == nil && strings.HasPrefix(mediaType, "image/")
}

func (c *Cache) write(path string, data []byte) error {
	tmp, err := os.CreateTemp(c.dir, ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
