package callback

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"blurclient/internal/checkout"
	"blurclient/internal/domain"
	"blurclient/internal/entitlement"
	"blurclient/internal/identity"
	"blurclient/internal/infra"
	"blurclient/internal/localstate"
)

type fakeStatus struct {
	active bool
	err    error
}

func (f *fakeStatus) SubscriptionStatus(ctx context.Context, userID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.active, nil
}

func newTestServer(t *testing.T, status *fakeStatus, trust bool) (*Server, *entitlement.Store, *identity.Store) {
	t.Helper()
	state, err := localstate.Open(":memory:")
	if err != nil {
		t.Fatalf("open state: %v", err)
	}
	t.Cleanup(func() { state.Close() })
	ent := entitlement.NewStore(state)
	ident := identity.NewStore(state)
	rec := checkout.NewReconciler(status, ent, trust, nil)
	return NewServer(rec, ident, 0, infra.DiscardLogger()), ent, ident
}

func TestSuccessRedirectUnlocks(t *testing.T) {
	server, ent, _ := newTestServer(t, &fakeStatus{active: true}, true)
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/success?user_id=user-1&plan=pro")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "Your Pro subscription is now active!") {
		t.Fatalf("body missing plan confirmation: %s", body)
	}

	unlocked, err := ent.IsUnlocked(context.Background())
	if err != nil {
		t.Fatalf("is unlocked: %v", err)
	}
	if !unlocked {
		t.Fatalf("expected unlock after redirect")
	}

	select {
	case result := <-server.results:
		if result.UserID != "user-1" || !result.Unlocked {
			t.Fatalf("result = %+v", result)
		}
	default:
		t.Fatalf("expected a buffered result")
	}
}

func TestSuccessRedirectProPlusDisplayName(t *testing.T) {
	server, _, _ := newTestServer(t, &fakeStatus{active: true}, true)
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/success?user_id=user-1&plan=pro_plus")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "Your Pro Plus subscription is now active!") {
		t.Fatalf("body = %s", body)
	}
}

func TestSuccessRedirectFallsBackToStoredIdentity(t *testing.T) {
	server, ent, ident := newTestServer(t, &fakeStatus{active: true}, true)
	ctx := context.Background()
	if _, err := ident.Ensure(ctx); err != nil {
		t.Fatalf("ensure identity: %v", err)
	}
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/success")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	unlocked, _ := ent.IsUnlocked(ctx)
	if !unlocked {
		t.Fatalf("expected unlock via stored identity")
	}
}

func TestSuccessRedirectMissingIdentity(t *testing.T) {
	server, ent, _ := newTestServer(t, &fakeStatus{active: true}, true)
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/success")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	unlocked, _ := ent.IsUnlocked(context.Background())
	if unlocked {
		t.Fatalf("must not unlock without an identity")
	}
}

func TestSuccessRedirectQueryFailureStillUnlocks(t *testing.T) {
	status := &fakeStatus{err: fmt.Errorf("%w: backend down", domain.ErrProviderFailure)}
	server, ent, _ := newTestServer(t, status, true)
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/success?user_id=user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 via optimistic unlock", resp.StatusCode)
	}
	unlocked, _ := ent.IsUnlocked(context.Background())
	if !unlocked {
		t.Fatalf("expected optimistic unlock")
	}
}
