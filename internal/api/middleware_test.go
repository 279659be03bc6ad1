package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/skyfay/dbackup/internal/apikey"
	"github.com/skyfay/dbackup/internal/db"
	"github.com/skyfay/dbackup/internal/repositories"
)

// fakeAPIKeyRepository is an in-memory stand-in for repositories.APIKeyRepository.
type fakeAPIKeyRepository struct {
	byHash map[string]*db.APIKey
}

func newFakeAPIKeyRepository() *fakeAPIKeyRepository {
	return &fakeAPIKeyRepository{byHash: make(map[string]*db.APIKey)}
}

func (f *fakeAPIKeyRepository) Create(ctx context.Context, key *db.APIKey) error {
	key.ID = uuid.New()
	f.byHash[key.KeyHash] = key
	return nil
}

func (f *fakeAPIKeyRepository) GetByHash(ctx context.Context, hash string) (*db.APIKey, error) {
	rec, ok := f.byHash[hash]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return rec, nil
}

func (f *fakeAPIKeyRepository) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	return nil
}

func (f *fakeAPIKeyRepository) Revoke(ctx context.Context, id uuid.UUID) error {
	for _, rec := range f.byHash {
		if rec.ID == id {
			now := time.Now().UTC()
			rec.RevokedAt = &now
			return nil
		}
	}
	return repositories.ErrNotFound
}

func (f *fakeAPIKeyRepository) List(ctx context.Context, opts repositories.ListOptions) ([]db.APIKey, int64, error) {
	var out []db.APIKey
	for _, rec := range f.byHash {
		out = append(out, *rec)
	}
	return out, int64(len(out)), nil
}

func newTestHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthenticateRejectsMissingHeader(t *testing.T) {
	repo := newFakeAPIKeyRepository()
	mgr := apikey.New(repo)

	req := httptest.NewRequest(http.MethodGet, "/api/executions/x", nil)
	rec := httptest.NewRecorder()

	Authenticate(mgr, apikey.CapJobsRead)(newTestHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("got status %d, want 401", rec.Code)
	}
}

func TestAuthenticateRejectsMalformedHeader(t *testing.T) {
	repo := newFakeAPIKeyRepository()
	mgr := apikey.New(repo)

	req := httptest.NewRequest(http.MethodGet, "/api/executions/x", nil)
	req.Header.Set("Authorization", "not-a-bearer-token")
	rec := httptest.NewRecorder()

	Authenticate(mgr, apikey.CapJobsRead)(newTestHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("got status %d, want 401", rec.Code)
	}
}

func TestAuthenticateRejectsUnknownKey(t *testing.T) {
	repo := newFakeAPIKeyRepository()
	mgr := apikey.New(repo)

	req := httptest.NewRequest(http.MethodGet, "/api/executions/x", nil)
	req.Header.Set("Authorization", "Bearer dbk_does-not-exist")
	rec := httptest.NewRecorder()

	Authenticate(mgr, apikey.CapJobsRead)(newTestHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("got status %d, want 401", rec.Code)
	}
}

func TestAuthenticateRejectsMissingCapability(t *testing.T) {
	repo := newFakeAPIKeyRepository()
	mgr := apikey.New(repo)
	ctx := context.Background()

	raw, _, err := mgr.Issue(ctx, "read-only", []apikey.Capability{apikey.CapJobsRead})
	if err != nil {
		t.Fatalf("unexpected error issuing key: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/x/run", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec := httptest.NewRecorder()

	Authenticate(mgr, apikey.CapJobsExecute)(newTestHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("got status %d, want 401", rec.Code)
	}
}

func TestAuthenticateRejectsRevokedKey(t *testing.T) {
	repo := newFakeAPIKeyRepository()
	mgr := apikey.New(repo)
	ctx := context.Background()

	raw, rec, err := mgr.Issue(ctx, "to-revoke", []apikey.Capability{apikey.CapJobsRead})
	if err != nil {
		t.Fatalf("unexpected error issuing key: %v", err)
	}
	if err := mgr.Revoke(ctx, rec.ID); err != nil {
		t.Fatalf("unexpected error revoking key: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/executions/x", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	w := httptest.NewRecorder()

	Authenticate(mgr, apikey.CapJobsRead)(newTestHandler()).ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("got status %d, want 401", w.Code)
	}
}

func TestAuthenticateAllowsValidKeyWithCapability(t *testing.T) {
	repo := newFakeAPIKeyRepository()
	mgr := apikey.New(repo)
	ctx := context.Background()

	raw, _, err := mgr.Issue(ctx, "trigger-bot", []apikey.Capability{apikey.CapJobsExecute, apikey.CapJobsRead})
	if err != nil {
		t.Fatalf("unexpected error issuing key: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/x/run", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	w := httptest.NewRecorder()

	Authenticate(mgr, apikey.CapJobsExecute)(newTestHandler()).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", w.Code)
	}
}
