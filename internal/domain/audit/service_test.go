package audit

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/imssbienestar/medicos/internal/platform/apperr"
	"github.com/imssbienestar/medicos/internal/platform/auth"
)

type mockRepo struct {
	entries map[int64]*Entry
	nextID  int64
	// deleteErr makes Delete fail
	deleteErr error
}

func newMockRepo() *mockRepo {
	return &mockRepo{entries: make(map[int64]*Entry), nextID: 1}
}

func (m *mockRepo) Create(_ context.Context, e *Entry) error {
	e.ID = m.nextID
	e.Timestamp = time.Now()
	m.nextID++
	m.entries[e.ID] = e
	return nil
}

func (m *mockRepo) List(_ context.Context, f Filter, limit, offset int) ([]*Entry, int, error) {
	var out []*Entry
	for _, e := range m.entries {
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		if f.Username != "" && actorOf(e.Username) != f.Username {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	total := len(out)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

func (m *mockRepo) Delete(_ context.Context, ids []int64) (int, error) {
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	n := 0
	for _, id := range ids {
		if _, ok := m.entries[id]; ok {
			delete(m.entries, id)
			n++
		}
	}
	return n, nil
}

type fakeTx struct{ calls int }

func (f *fakeTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.calls++
	return fn(ctx)
}

type fakeGate struct{ secret string }

func (g fakeGate) Check(secret string) error {
	if secret == "" {
		return apperr.Validation("confirmation secret is required")
	}
	if secret != g.secret {
		return apperr.Forbidden("incorrect confirmation secret")
	}
	return nil
}

func newTestService() (*Service, *mockRepo, *fakeTx) {
	repo := newMockRepo()
	tx := &fakeTx{}
	return NewService(repo, tx, fakeGate{secret: "borrar"}), repo, tx
}

func TestService_Log_UsesContextUser(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := auth.WithIdentity(context.Background(), "3", "mgarcia", auth.RoleUser)

	if err := svc.Log(ctx, "UPDATE_DOCTOR", "doctor", "A100", "estatus"); err != nil {
		t.Fatalf("Log: %v", err)
	}
	e := repo.entries[1]
	if actorOf(e.Username) != "mgarcia" {
		t.Errorf("expected actor mgarcia, got %s", actorOf(e.Username))
	}
	if *e.EntityID != "A100" || *e.Details != "estatus" {
		t.Errorf("unexpected entry: %+v", e)
	}
}

func TestService_Log_SystemActor(t *testing.T) {
	svc, repo, _ := newTestService()
	if err := svc.Log(context.Background(), "SEED", "", "", ""); err != nil {
		t.Fatalf("Log: %v", err)
	}
	e := repo.entries[1]
	if e.Username != nil {
		t.Errorf("expected nil username, got %v", *e.Username)
	}
	if actorOf(e.Username) != SystemActor {
		t.Errorf("expected %s, got %s", SystemActor, actorOf(e.Username))
	}
	if e.EntityType != nil || e.EntityID != nil || e.Details != nil {
		t.Error("expected empty fields to be stored as nil")
	}
}

func TestService_List_RejectsInvertedRange(t *testing.T) {
	svc, _, _ := newTestService()
	start := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, -1)
	_, _, err := svc.List(context.Background(), Filter{Start: &start, End: &end}, 10, 0)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestService_BulkDelete(t *testing.T) {
	svc, repo, tx := newTestService()
	ctx := auth.WithIdentity(context.Background(), "1", "admin", auth.RoleAdmin)
	for i := 0; i < 3; i++ {
		_ = svc.Log(ctx, "CREATE_DOCTOR", "doctor", "X", "")
	}

	n, err := svc.BulkDelete(ctx, &BulkDeleteRequest{IDs: []int64{1, 2, 99}, Secret: "borrar"})
	if err != nil {
		t.Fatalf("BulkDelete: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 deleted, got %d", n)
	}
	if tx.calls != 2 {
		t.Errorf("expected delete and log in separate transactions, got %d", tx.calls)
	}

	if _, ok := repo.entries[3]; !ok {
		t.Error("entry 3 should survive")
	}
	var found bool
	for _, e := range repo.entries {
		if e.Action == ActionBulkDeleteAudit {
			found = true
		}
	}
	if !found {
		t.Error("expected a BULK_DELETE_AUDIT entry")
	}
}

func TestService_BulkDelete_SecretErrors(t *testing.T) {
	svc, repo, _ := newTestService()
	_ = svc.Log(context.Background(), "X", "", "", "")

	tests := []struct {
		name   string
		secret string
		kind   apperr.Kind
	}{
		{"missing", "", apperr.KindValidation},
		{"wrong", "nope", apperr.KindForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.BulkDelete(context.Background(), &BulkDeleteRequest{IDs: []int64{1}, Secret: tt.secret})
			if !apperr.Is(err, tt.kind) {
				t.Errorf("expected %s, got %v", tt.kind, err)
			}
		})
	}
	if len(repo.entries) != 1 {
		t.Error("nothing should be deleted when the secret is rejected")
	}
}

func TestService_BulkDelete_NoLogOnFailure(t *testing.T) {
	svc, repo, _ := newTestService()
	repo.deleteErr = errors.New("connection reset")

	_, err := svc.BulkDelete(context.Background(), &BulkDeleteRequest{IDs: []int64{1}, Secret: "borrar"})
	if !apperr.Is(err, apperr.KindInternal) {
		t.Errorf("expected internal error, got %v", err)
	}
	if len(repo.entries) != 0 {
		t.Error("no audit entry expected after a failed delete")
	}
}

func TestService_BulkDelete_EmptyIDs(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.BulkDelete(context.Background(), &BulkDeleteRequest{Secret: "borrar"})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}
