package main

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/v3labs/demohub/applib"
	"github.com/v3labs/demohub/applib/sessions"
)

func newTestServer(t *testing.T) *server {
	t.Helper()
	sessionManager, err := sessions.NewManager(time.Hour)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return &server{
		app:      applib.NewApplication(version, "poolmanager", 8501),
		sessions: sessionManager,
	}
}

func postAction(s *server, cookies []*http.Cookie, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/action", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.handleAction(rec, req)
	return rec
}

// Concurrent posts from one browser session all mutate the same World; the
// World lock must keep its ledger maps and event log consistent.
func TestConcurrentActionsShareOneWorld(t *testing.T) {
	s := newTestServer(t)

	// The first request establishes the session; the rest reuse its cookie.
	rec := httptest.NewRecorder()
	s.handleIndex(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("expected a session cookie on the first request")
	}

	actions := []url.Values{
		{"action": {"approve"}, "token": {"USDC"}, "amount": {"100000"}},
		{"action": {"approve"}, "token": {"ETH"}, "amount": {"5"}},
		{"action": {"mint"}, "lower": {"4545"}, "upper": {"5500"}, "llog10": {"10"}},
		{"action": {"swap"}, "amount": {"1"}},
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		form := actions[i%len(actions)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := postAction(s, cookies, form).Code; got != http.StatusOK {
				t.Errorf("action returned status %d, want %d", got, http.StatusOK)
			}
		}()
	}
	wg.Wait()

	// The ledger must still be usable afterwards: a sequential approve wins
	// and is visible through the same session's World.
	res := postAction(s, cookies, url.Values{
		"action": {"approve"}, "token": {"USDC"}, "amount": {"1234"},
	})
	if res.Code != http.StatusOK {
		t.Fatalf("final approve returned status %d", res.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	session, err := s.sessions.Get(httptest.NewRecorder(), req)
	if err != nil {
		t.Fatalf("session lookup failed: %v", err)
	}
	world := worldFromSession(session)
	world.Lock()
	defer world.Unlock()
	usdc := world.Tokens["USDC"]
	if got := usdc.Allowance(world.User, world.Manager.Address); got.Cmp(usdc.Raw(1234)) != 0 {
		t.Errorf("allowance after final approve = %s, want %s", got, usdc.Raw(1234))
	}
}

// Reset swaps in a fresh World for the session; later requests must see it.
func TestResetReplacesSessionWorld(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.handleIndex(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	cookies := rec.Result().Cookies()

	if got := postAction(s, cookies, url.Values{
		"action": {"approve"}, "token": {"USDC"}, "amount": {"777"},
	}).Code; got != http.StatusOK {
		t.Fatalf("approve returned status %d", got)
	}
	if got := postAction(s, cookies, url.Values{"action": {"reset"}}).Code; got != http.StatusOK {
		t.Fatalf("reset returned status %d", got)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	session, err := s.sessions.Get(httptest.NewRecorder(), req)
	if err != nil {
		t.Fatalf("session lookup failed: %v", err)
	}
	world := worldFromSession(session)
	world.Lock()
	defer world.Unlock()
	usdc := world.Tokens["USDC"]
	if got := usdc.Allowance(world.User, world.Manager.Address); got.Sign() != 0 {
		t.Errorf("allowance survived reset: %s", got)
	}
}
