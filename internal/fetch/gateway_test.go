package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/vigil/internal/common"
)

func testConfig(baseURL string) *common.OriginConfig {
	return &common.OriginConfig{
		BaseURL:         baseURL,
		LoginPath:       "/login",
		UserAgent:       "vigil-test",
		Encoding:        "utf-8",
		RequestInterval: "50ms",
		RequestTimeout:  "5s",
		AnonymousText:   "Login with username",
		MaxBodySize:     1 << 20,
	}
}

func TestFetchMinimumSpacing(t *testing.T) {
	var mu sync.Mutex
	var starts []time.Time

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		starts = append(starts, time.Now())
		mu.Unlock()
		w.Write([]byte("<html>ok</html>"))
	}))
	defer server.Close()

	gw, err := NewGateway(testConfig(server.URL), common.GetLogger())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := gw.Fetch(context.Background(), "/page")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, starts, 4)
	for i := 1; i < len(starts); i++ {
		gap := starts[i].Sub(starts[i-1])
		// Small tolerance for timer scheduling
		assert.GreaterOrEqual(t, gap, 45*time.Millisecond, "request starts too close together")
	}
}

func TestFetchSingleInFlight(t *testing.T) {
	var inflight, maxInflight int64

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		current := atomic.AddInt64(&inflight, 1)
		for {
			max := atomic.LoadInt64(&maxInflight)
			if current <= max || atomic.CompareAndSwapInt64(&maxInflight, max, current) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt64(&inflight, -1)
		w.Write([]byte("<html>ok</html>"))
	}))
	defer server.Close()

	config := testConfig(server.URL)
	config.RequestInterval = "1ms"
	gw, err := NewGateway(config, common.GetLogger())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := gw.Fetch(context.Background(), "/page")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), atomic.LoadInt64(&maxInflight), "requests overlapped")
}

func TestFetchReloginOnceAndRetry(t *testing.T) {
	var mu sync.Mutex
	var sequence []string
	loggedIn := false
	expired := false

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if r.URL.Path == "/login" {
			sequence = append(sequence, "login")
			loggedIn = true
			w.Write([]byte("<html>welcome back</html>"))
			return
		}
		sequence = append(sequence, "get")
		if !loggedIn || !expired {
			// First authenticated GET drops the session to force a re-login
			if loggedIn {
				loggedIn = false
				expired = true
			}
			w.Write([]byte("<html>Login with username, password and session length</html>"))
			return
		}
		w.Write([]byte("<html>topic content</html>"))
	}))
	defer server.Close()

	config := testConfig(server.URL)
	config.RequestInterval = "1ms"
	config.Username = "scraper"
	config.Password = "secret"

	gw, err := NewGateway(config, common.GetLogger())
	require.NoError(t, err)

	doc, err := gw.Fetch(context.Background(), "/page")
	require.NoError(t, err)
	assert.Contains(t, doc.HTML, "topic content")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"login", "get", "login", "get"}, sequence)
}

func TestFetchAuthenticationErrorAfterSecondFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/login" {
			// Login looks successful but the session never sticks
			w.Write([]byte("<html>welcome back</html>"))
			return
		}
		w.Write([]byte("<html>Login with username, password and session length</html>"))
	}))
	defer server.Close()

	config := testConfig(server.URL)
	config.RequestInterval = "1ms"
	config.Username = "scraper"
	config.Password = "secret"

	gw, err := NewGateway(config, common.GetLogger())
	require.NoError(t, err)

	_, err = gw.Fetch(context.Background(), "/page")
	require.Error(t, err)
	var authErr *AuthenticationError
	assert.ErrorAs(t, err, &authErr)
}

func TestFetchNotFoundIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("<html>no such topic</html>"))
	}))
	defer server.Close()

	config := testConfig(server.URL)
	config.RequestInterval = "1ms"
	gw, err := NewGateway(config, common.GetLogger())
	require.NoError(t, err)

	doc, err := gw.Fetch(context.Background(), "/missing")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, doc.StatusCode)
	assert.True(t, doc.Missing())
}

func TestFetchServerErrorSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	config := testConfig(server.URL)
	config.RequestInterval = "1ms"
	gw, err := NewGateway(config, common.GetLogger())
	require.NoError(t, err)

	_, err = gw.Fetch(context.Background(), "/page")
	require.Error(t, err)
	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
}

func TestFetchDecodesLegacyEncoding(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// "café" in windows-1252
		w.Write([]byte{'c', 'a', 'f', 0xE9})
	}))
	defer server.Close()

	config := testConfig(server.URL)
	config.RequestInterval = "1ms"
	config.Encoding = "windows-1252"
	gw, err := NewGateway(config, common.GetLogger())
	require.NoError(t, err)

	doc, err := gw.Fetch(context.Background(), "/page")
	require.NoError(t, err)
	assert.Equal(t, "café", doc.HTML)
}
