package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"quiz-battle-client/internal/domain"
	"quiz-battle-client/internal/infra/memory"
)

func seedCredentials(t *testing.T, store *memory.StateStore, access, refresh string) {
	t.Helper()
	state := domain.CredentialState{
		AccessToken:  access,
		RefreshToken: refresh,
		User:         domain.User{ID: "u1", Username: "alice"},
	}
	if err := store.Put(context.Background(), credentialsKey, state); err != nil {
		t.Fatalf("seed credentials: %v", err)
	}
}

func newGateway(t *testing.T, baseURL string, store *memory.StateStore, opts ...Option) *Gateway {
	t.Helper()
	g := New(baseURL, store, opts...)
	if err := g.Restore(context.Background()); err != nil {
		t.Fatalf("restore: %v", err)
	}
	return g
}

func TestAttachesBearerToken(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	store := memory.NewStateStore()
	seedCredentials(t, store, "token-1", "refresh-1")
	g := newGateway(t, server.URL, store)

	if err := g.DoJSON(context.Background(), http.MethodGet, "/quizzes/quiz-1", nil, nil); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if gotAuth != "Bearer token-1" {
		t.Fatalf("expected bearer header, got %q", gotAuth)
	}
}

func TestAttemptTokenHeaderForwarded(t *testing.T) {
	var gotAttempt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAttempt = r.Header.Get("X-Attempt-Token")
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	store := memory.NewStateStore()
	seedCredentials(t, store, "token-1", "refresh-1")
	g := newGateway(t, server.URL, store)

	err := g.DoJSON(context.Background(), http.MethodPost, "/attempts/a1/answers", map[string]string{}, nil,
		WithHeader("X-Attempt-Token", "attempt-token-1"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if gotAttempt != "attempt-token-1" {
		t.Fatalf("expected attempt token header, got %q", gotAttempt)
	}
}

func TestConcurrentExpiriesShareOneRefresh(t *testing.T) {
	var refreshCalls int64
	var current atomic.Value
	current.Store("stale")

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&refreshCalls, 1)
		// Slow refresh widens the window in which concurrent 401s queue up.
		time.Sleep(150 * time.Millisecond)
		current.Store("fresh")
		json.NewEncoder(w).Encode(domain.CredentialState{
			AccessToken:  "fresh",
			RefreshToken: "refresh-2",
		})
	})
	mux.HandleFunc("/quizzes/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+current.Load().(string) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	store := memory.NewStateStore()
	seedCredentials(t, store, "stale", "refresh-1")
	g := newGateway(t, server.URL, store)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = g.DoJSON(context.Background(), http.MethodGet, "/quizzes/quiz-1", nil, nil)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d failed: %v", i, err)
		}
	}
	if got := atomic.LoadInt64(&refreshCalls); got != 1 {
		t.Fatalf("expected exactly one refresh call, got %d", got)
	}
}

func TestSecondUnauthorizedAfterRefreshIsFatal(t *testing.T) {
	signedOut := false
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(domain.CredentialState{
			AccessToken:  "fresh",
			RefreshToken: "refresh-2",
		})
	})
	mux.HandleFunc("/quizzes/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	store := memory.NewStateStore()
	seedCredentials(t, store, "stale", "refresh-1")
	g := newGateway(t, server.URL, store, WithSignOutHook(func() { signedOut = true }))

	err := g.DoJSON(context.Background(), http.MethodGet, "/quizzes/quiz-1", nil, nil)
	if !errors.Is(err, domain.ErrAuthFailed) {
		t.Fatalf("expected auth failure, got %v", err)
	}
	if !signedOut {
		t.Fatalf("expected sign-out hook to fire")
	}
}

func TestRefreshFailureClearsCredentials(t *testing.T) {
	signedOut := false
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/quizzes/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	store := memory.NewStateStore()
	seedCredentials(t, store, "stale", "refresh-1")
	g := newGateway(t, server.URL, store, WithSignOutHook(func() { signedOut = true }))

	err := g.DoJSON(context.Background(), http.MethodGet, "/quizzes/quiz-1", nil, nil)
	if !errors.Is(err, domain.ErrAuthFailed) {
		t.Fatalf("expected auth failure, got %v", err)
	}
	if !signedOut {
		t.Fatalf("expected sign-out hook to fire")
	}
	if _, ok := g.User(); ok {
		t.Fatalf("expected in-memory credentials to be cleared")
	}

	var state domain.CredentialState
	ok, err := store.Get(context.Background(), credentialsKey, &state)
	if err != nil {
		t.Fatalf("read store: %v", err)
	}
	if ok {
		t.Fatalf("expected stored credentials to be wiped")
	}
}

func TestUnauthorizedWithoutCredentialsSkipsFatalPath(t *testing.T) {
	signedOut := false
	var refreshCalls int64
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&refreshCalls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/quizzes/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	// No stored credentials: a 401 cannot be recovered, but it also must not
	// wipe anything or announce a sign-out for an anonymous caller.
	store := memory.NewStateStore()
	g := newGateway(t, server.URL, store, WithSignOutHook(func() { signedOut = true }))

	err := g.DoJSON(context.Background(), http.MethodGet, "/quizzes/quiz-1", nil, nil)
	if !errors.Is(err, domain.ErrAuthFailed) {
		t.Fatalf("expected auth failure, got %v", err)
	}
	if signedOut {
		t.Fatalf("expected no sign-out for an anonymous caller")
	}
	if got := atomic.LoadInt64(&refreshCalls); got != 0 {
		t.Fatalf("expected no refresh attempt without a refresh token, got %d", got)
	}
}

func TestLoginPersistsCredentials(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["username"] != "alice" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(domain.CredentialState{
			AccessToken:  "token-1",
			RefreshToken: "refresh-1",
			User:         domain.User{ID: "u1", Username: "alice"},
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	store := memory.NewStateStore()
	g := New(server.URL, store)

	user, err := g.Login(context.Background(), "alice", "hunter2")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if user.Username != "alice" {
		t.Fatalf("unexpected user: %+v", user)
	}

	var state domain.CredentialState
	ok, _ := store.Get(context.Background(), credentialsKey, &state)
	if !ok || state.AccessToken != "token-1" {
		t.Fatalf("expected persisted credentials, got ok=%v %+v", ok, state)
	}
}

func TestConflictMapsToSubmissionConflict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer server.Close()

	store := memory.NewStateStore()
	seedCredentials(t, store, "token-1", "refresh-1")
	g := newGateway(t, server.URL, store)

	err := g.DoJSON(context.Background(), http.MethodPost, "/attempts/a1/answers", map[string]string{}, nil)
	if !errors.Is(err, domain.ErrSubmissionConflict) {
		t.Fatalf("expected submission conflict, got %v", err)
	}
}
