package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"mercator-hq/kate/pkg/service"
)

const testSecret = "s3cret"

func sign(t *testing.T, method jwt.SigningMethod, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func requestWith(header, value string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/users/42", nil)
	if header != "" {
		r.Header.Set(header, value)
	}
	return r
}

func wantFailure(t *testing.T, err error, status int) *Failure {
	t.Helper()
	f, ok := AsFailure(err)
	if !ok {
		t.Fatalf("error = %v, want *Failure with status %d", err, status)
	}
	if f.Status != status {
		t.Fatalf("status = %d, want %d (%s)", f.Status, status, f.Message)
	}
	return f
}

func TestAuthenticateJWT(t *testing.T) {
	verify := &service.JWTPolicy{Mode: service.ModeVerify}
	present := &service.JWTPolicy{Mode: service.ModePresent}
	valid := sign(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"sub": "u1"})

	tests := []struct {
		name       string
		policy     *service.JWTPolicy
		header     string
		wantStatus int
	}{
		{"verify ok", verify, "Bearer " + valid, 0},
		{"verify HS512", verify, "Bearer " + sign(t, jwt.SigningMethodHS512, testSecret, jwt.MapClaims{"sub": "u1"}), 0},
		{"wrong secret", verify, "Bearer " + sign(t, jwt.SigningMethodHS256, "other", jwt.MapClaims{}), http.StatusUnauthorized},
		{"expired", verify, "Bearer " + sign(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"exp": time.Now().Add(-time.Hour).Unix()}), http.StatusUnauthorized},
		{"garbage", verify, "Bearer not-a-token", http.StatusUnauthorized},
		{"missing header", verify, "", http.StatusUnauthorized},
		{"basic scheme", verify, "Basic abc", http.StatusUnauthorized},
		{"present accepts any bearer", present, "Bearer not-a-token", 0},
		{"present needs bearer", present, "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}

			p, err := AuthenticateJWT(r, tt.policy, testSecret)
			if tt.wantStatus != 0 {
				wantFailure(t, err, tt.wantStatus)
				return
			}
			if err != nil {
				t.Fatalf("AuthenticateJWT() error = %v", err)
			}
			if p.Kind != service.KindJWT {
				t.Errorf("Kind = %v", p.Kind)
			}
			if tt.policy.Mode == service.ModeVerify && p.Claims["sub"] != "u1" {
				t.Errorf("Claims = %v", p.Claims)
			}
		})
	}
}

func TestAuthenticateJWT_ErrorMessageSurfaced(t *testing.T) {
	r := requestWith("Authorization", "Bearer "+sign(t, jwt.SigningMethodHS256, "other", jwt.MapClaims{}))
	_, err := AuthenticateJWT(r, &service.JWTPolicy{Mode: service.ModeVerify}, testSecret)
	f := wantFailure(t, err, http.StatusUnauthorized)
	if !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
		t.Errorf("error should wrap ErrTokenSignatureInvalid: %v", err)
	}
	if f.Message == "" {
		t.Error("verification message should be surfaced")
	}
}

type fakeFetcher struct {
	status int
	body   string
	err    error
	calls  atomic.Int32
	header http.Header
}

func (f *fakeFetcher) Get(_ context.Context, _ string, header http.Header) (int, []byte, error) {
	f.calls.Add(1)
	f.header = header
	return f.status, []byte(f.body), f.err
}

type countingObserver struct{ hits, misses int }

func (o *countingObserver) KeyCacheHit()  { o.hits++ }
func (o *countingObserver) KeyCacheMiss() { o.misses++ }

func TestKeyAuthenticator(t *testing.T) {
	policy := &service.KeyPolicy{VerifyEndpoint: "http://auth/verify", KeyHeader: "X-User-Key"}

	t.Run("miss then hit", func(t *testing.T) {
		fetcher := &fakeFetcher{status: 200, body: `{"userId":"42"}`}
		obs := &countingObserver{}
		a := NewKeyAuthenticator(NewMemoryKeyCache(), fetcher, obs)

		for i := 0; i < 3; i++ {
			p, err := a.Authenticate(context.Background(), requestWith("X-User-Key", "k1"), policy)
			if err != nil {
				t.Fatalf("Authenticate() error = %v", err)
			}
			if v, _ := p.Lookup("userId"); v != "42" {
				t.Errorf("userId = %q", v)
			}
		}
		if fetcher.calls.Load() != 1 {
			t.Errorf("verify endpoint called %d times, want 1", fetcher.calls.Load())
		}
		if fetcher.header.Get("X-User-Key") != "k1" {
			t.Errorf("key header not forwarded: %v", fetcher.header)
		}
		if obs.hits != 2 || obs.misses != 1 {
			t.Errorf("hits/misses = %d/%d, want 2/1", obs.hits, obs.misses)
		}
	})

	t.Run("invalidate forces reverification", func(t *testing.T) {
		fetcher := &fakeFetcher{status: 200, body: `{}`}
		a := NewKeyAuthenticator(NewMemoryKeyCache(), fetcher, nil)
		ctx := context.Background()

		_, _ = a.Authenticate(ctx, requestWith("X-User-Key", "k1"), policy)
		if err := a.Invalidate(ctx, "k1"); err != nil {
			t.Fatal(err)
		}
		_, _ = a.Authenticate(ctx, requestWith("X-User-Key", "k1"), policy)
		if fetcher.calls.Load() != 2 {
			t.Errorf("verify endpoint called %d times, want 2", fetcher.calls.Load())
		}
	})

	failures := []struct {
		name    string
		fetcher *fakeFetcher
		header  string
	}{
		{"missing header", &fakeFetcher{status: 200, body: `{}`}, ""},
		{"rejected", &fakeFetcher{status: 401, body: `{}`}, "k"},
		{"unreachable", &fakeFetcher{err: errors.New("dial tcp: refused")}, "k"},
		{"not an object", &fakeFetcher{status: 200, body: `["a"]`}, "k"},
	}
	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			cache := NewMemoryKeyCache()
			a := NewKeyAuthenticator(cache, tt.fetcher, nil)
			header := ""
			if tt.header != "" {
				header = "X-User-Key"
			}
			_, err := a.Authenticate(context.Background(), requestWith(header, tt.header), policy)
			wantFailure(t, err, http.StatusForbidden)
			if cache.Len() != 0 {
				t.Error("failed verification must not be cached")
			}
		})
	}
}

// gatedFetcher blocks every verification until release is closed.
type gatedFetcher struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (f *gatedFetcher) Get(ctx context.Context, _ string, _ http.Header) (int, []byte, error) {
	if f.calls.Add(1) == 1 {
		close(f.started)
	}
	select {
	case <-f.release:
		return http.StatusOK, []byte(`{"userId":"42"}`), nil
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}

func TestKeyAuthenticator_ConcurrentMisses(t *testing.T) {
	policy := &service.KeyPolicy{VerifyEndpoint: "http://auth/verify", KeyHeader: "X-User-Key"}
	fetcher := &gatedFetcher{started: make(chan struct{}), release: make(chan struct{})}
	a := NewKeyAuthenticator(NewMemoryKeyCache(), fetcher, nil)

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := a.Authenticate(context.Background(), requestWith("X-User-Key", "k1"), policy)
			errs <- err
		}()
	}

	<-fetcher.started
	time.Sleep(50 * time.Millisecond)
	close(fetcher.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("Authenticate() error = %v", err)
		}
	}
	if n := fetcher.calls.Load(); n != 1 {
		t.Errorf("verify endpoint called %d times, want 1", n)
	}
}

func TestKeyAuthenticator_SharedVerifySurvivesCancelledCaller(t *testing.T) {
	policy := &service.KeyPolicy{VerifyEndpoint: "http://auth/verify", KeyHeader: "X-User-Key"}
	fetcher := &gatedFetcher{started: make(chan struct{}), release: make(chan struct{})}
	a := NewKeyAuthenticator(NewMemoryKeyCache(), fetcher, nil)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := a.Authenticate(firstCtx, requestWith("X-User-Key", "k1"), policy)
		first <- err
	}()
	<-fetcher.started

	second := make(chan error, 1)
	go func() {
		_, err := a.Authenticate(context.Background(), requestWith("X-User-Key", "k1"), policy)
		second <- err
	}()
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	time.Sleep(20 * time.Millisecond)
	close(fetcher.release)

	if err := <-second; err != nil {
		t.Errorf("waiting caller failed after the first caller went away: %v", err)
	}
	<-first
	if n := fetcher.calls.Load(); n != 1 {
		t.Errorf("verify endpoint called %d times, want 1", n)
	}
}

func TestRedisKeyCache(t *testing.T) {
	addr := os.Getenv("KATE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("KATE_TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()
	cache := NewRedisKeyCache(redis.NewClient(&redis.Options{Addr: addr}), "kate:test:")
	defer cache.Close()

	if err := cache.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if _, ok, err := cache.Get(ctx, "absent"); ok || err != nil {
		t.Fatalf("Get(absent) = %v, %v", ok, err)
	}
	if err := cache.Set(ctx, "k", map[string]any{"userId": "42"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, ok, err := cache.Get(ctx, "k")
	if err != nil || !ok || got["userId"] != "42" {
		t.Fatalf("Get() = %v, %v, %v", got, ok, err)
	}
	if err := cache.Invalidate(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := cache.Get(ctx, "k"); ok {
		t.Error("entry survived Invalidate")
	}
}
