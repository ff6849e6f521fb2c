package imagecache_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BroadApps-official/App-056/internal/imagecache"
	"github.com/BroadApps-official/App-056/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jpeg(path string) []byte {
	return append([]byte("\xff\xd8\xff\xe0"), path...)
}

func newCache(t *testing.T, srv *httptest.Server, dir string) *imagecache.Cache {
	t.Helper()
	cache, err := imagecache.New(imagecache.Options{Dir: dir, HTTPClient: srv.Client()}, logger.NewNop())
	require.NoError(t, err)
	return cache
}

func imageServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		time.Sleep(10 * time.Millisecond)
		_, _ = w.Write(jpeg(r.URL.Path))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCache_ReadThrough(t *testing.T) {
	var hits atomic.Int32
	srv := imageServer(t, &hits)
	dir := t.TempDir()
	cache := newCache(t, srv, dir)

	url := srv.URL + "/a.png"
	assert.False(t, cache.Has(url))

	data, err := cache.Get(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, jpeg("/a.png"), data)
	assert.True(t, cache.Has(url))
	assert.Equal(t, filepath.Join(dir, imagecache.Key(url)+".jpg"), cache.Path(url))

	data, err = cache.Get(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, jpeg("/a.png"), data)
	assert.Equal(t, int32(1), hits.Load())
}

func TestCache_ConcurrentMissesShareDownload(t *testing.T) {
	var hits atomic.Int32
	srv := imageServer(t, &hits)
	cache := newCache(t, srv, t.TempDir())

	url := srv.URL + "/shared.png"
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.Get(context.Background(), url)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), hits.Load())
}

func TestCache_MissNotPersisted(t *testing.T) {
	var hits atomic.Int32
	srv := imageServer(t, &hits)
	cache := newCache(t, srv, t.TempDir())

	url := srv.URL + "/missing.png"
	_, err := cache.Get(context.Background(), url)
	require.Error(t, err)
	assert.False(t, cache.Has(url))
}

func TestCache_Prefetch(t *testing.T) {
	var hits atomic.Int32
	srv := imageServer(t, &hits)
	dir := t.TempDir()
	cache := newCache(t, srv, dir)

	urls := []string{srv.URL + "/1.png", srv.URL + "/2.png", srv.URL + "/1.png", "", srv.URL + "/missing.png"}
	cache.Prefetch(context.Background(), urls)

	assert.True(t, cache.Has(srv.URL+"/1.png"))
	assert.True(t, cache.Has(srv.URL+"/2.png"))
	assert.False(t, cache.Has(srv.URL+"/missing.png"))
	assert.Equal(t, int32(3), hits.Load())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestCache_RejectsNonImageBodies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"internal_secret":"s3cr3t"}`))
	}))
	t.Cleanup(srv.Close)
	cache := newCache(t, srv, t.TempDir())

	url := srv.URL + "/config.json"
	_, err := cache.Get(context.Background(), url)
	assert.ErrorIs(t, err, imagecache.ErrNotImage)
	assert.False(t, cache.Has(url))
}

func TestCache_DeclaredImageTypeForUnknownFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/heic")
		_, _ = w.Write([]byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05})
	}))
	t.Cleanup(srv.Close)
	cache := newCache(t, srv, t.TempDir())

	_, err := cache.Get(context.Background(), srv.URL+"/photo.heic")
	assert.NoError(t, err)
}

func TestCache_AllowedHosts(t *testing.T) {
	var hits atomic.Int32
	srv := imageServer(t, &hits)

	blocked, err := imagecache.New(imagecache.Options{
		Dir:          t.TempDir(),
		HTTPClient:   srv.Client(),
		AllowedHosts: []string{"nextgenwebapps.shop", "selcdn.net"},
	}, logger.NewNop())
	require.NoError(t, err)

	_, err = blocked.Get(context.Background(), srv.URL+"/a.png")
	assert.ErrorIs(t, err, imagecache.ErrHostNotAllowed)
	assert.Equal(t, int32(0), hits.Load())

	assert.True(t, blocked.Allowed("https://a2817cd1.selcdn.net/x.jpg"))
	assert.True(t, blocked.Allowed("https://nextgenwebapps.shop/img/1.png"))
	assert.False(t, blocked.Allowed("https://evilselcdn.net/x.jpg"))
	assert.False(t, blocked.Allowed("file:///etc/passwd"))

	allowed, err := imagecache.New(imagecache.Options{
		Dir:          t.TempDir(),
		HTTPClient:   srv.Client(),
		AllowedHosts: []string{"127.0.0.1"},
	}, logger.NewNop())
	require.NoError(t, err)
	_, err = allowed.Get(context.Background(), srv.URL+"/a.png")
	assert.NoError(t, err)
}

func TestCache_RedirectOutsideAllowlist(t *testing.T) {
	var hits atomic.Int32
	internal := imageServer(t, &hits)
	front := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, internal.URL+"/a.png", http.StatusFound)
	}))
	t.Cleanup(front.Close)

	// Both servers listen on 127.0.0.1, so the redirect is told apart by name.
	cache, err := imagecache.New(imagecache.Options{
		Dir:          t.TempDir(),
		AllowedHosts: []string{"localhost"},
	}, logger.NewNop())
	require.NoError(t, err)

	frontURL := strings.Replace(front.URL, "127.0.0.1", "localhost", 1)
	_, err = cache.Get(context.Background(), frontURL+"/start")
	assert.ErrorIs(t, err, imagecache.ErrHostNotAllowed)
	assert.Equal(t, int32(0), hits.Load())
}

func TestCache_CancelledCallerDoesNotFailWaiters(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		_, _ = w.Write(jpeg(r.URL.Path))
	}))
	t.Cleanup(srv.Close)
	cache := newCache(t, srv, t.TempDir())
	url := srv.URL + "/slow.png"

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := cache.Get(firstCtx, url)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return hits.Load() == 1 }, time.Second, 5*time.Millisecond)

	secondData := make(chan []byte, 1)
	go func() {
		data, err := cache.Get(context.Background(), url)
		assert.NoError(t, err)
		secondData <- data
	}()

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	select {
	case data := <-secondData:
		assert.Equal(t, jpeg("/slow.png"), data)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter did not get the shared download")
	}
	assert.Equal(t, int32(1), hits.Load())
	assert.True(t, cache.Has(url))
}
