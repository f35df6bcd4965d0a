package service_test

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/carvision/defect-api/internal/domain"
	"github.com/carvision/defect-api/internal/infra/observability"
)

// --- Mocks ---

// fakeRecordStore is an in-memory RecordStore keyed the way the real
// store indexes records. Safe for concurrent use.
type fakeRecordStore struct {
	mu         sync.Mutex
	companies  map[string]*domain.Company // by name
	users      map[string]*domain.User    // by id
	detections map[string]*domain.Detection

	failWith error
}

func newFakeRecordStore() *fakeRecordStore {
	return &fakeRecordStore{
		companies:  make(map[string]*domain.Company),
		users:      make(map[string]*domain.User),
		detections: make(map[string]*domain.Detection),
	}
}

func (f *fakeRecordStore) GetCompanyByName(_ context.Context, name string) (*domain.Company, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	if c, ok := f.companies[name]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeRecordStore) CreateCompany(_ context.Context, company *domain.Company) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	if _, ok := f.companies[company.Name]; ok {
		return &domain.ErrConflict{Message: fmt.Sprintf("company %q exists", company.Name)}
	}
	cp := *company
	f.companies[company.Name] = &cp
	return nil
}

func (f *fakeRecordStore) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeRecordStore) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeRecordStore) CreateUser(_ context.Context, user *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	for _, u := range f.users {
		if u.Email == user.Email || u.Username == user.Username {
			return &domain.ErrConflict{Message: "user exists"}
		}
	}
	cp := *user
	f.users[user.ID] = &cp
	return nil
}

func (f *fakeRecordStore) UpdateUser(_ context.Context, user *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[user.ID]; !ok {
		return &domain.ErrNotFound{Resource: "user", ID: user.ID}
	}
	cp := *user
	f.users[user.ID] = &cp
	return nil
}

func (f *fakeRecordStore) ListCompanyUsers(_ context.Context, companyID string) ([]domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.User
	for _, u := range f.users {
		if u.CompanyID == companyID {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (f *fakeRecordStore) CreateDetection(_ context.Context, d *domain.Detection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	cp := *d
	f.detections[d.ID] = &cp
	return nil
}

func (f *fakeRecordStore) GetDetection(_ context.Context, id string) (*domain.Detection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.detections[id]; ok {
		cp := *d
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeRecordStore) ListUserDetections(_ context.Context, userID string) ([]domain.Detection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Detection
	for _, d := range f.detections {
		if d.UserID == userID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *fakeRecordStore) DeleteDetection(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.detections, id)
	return nil
}

// mockVerifier returns a fixed identity or error.
type mockVerifier struct {
	mu       sync.Mutex
	identity *domain.Identity
	err      error
	calls    int
}

func (m *mockVerifier) Verify(_ context.Context, _ string) (*domain.Identity, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return m.identity, m.err
}

// fakeArtifactStore tracks stored and reclaimed paths without touching disk.
type fakeArtifactStore struct {
	mu        sync.Mutex
	stored    []string
	reclaimed []string
	storeErr  error
	seq       int
}

func (f *fakeArtifactStore) Store(_ context.Context, r io.Reader, _ string) (string, error) {
	if f.storeErr != nil {
		return "", f.storeErr
	}
	io.Copy(io.Discard, r)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	path := fmt.Sprintf("static/uploads/img-%d.jpg", f.seq)
	f.stored = append(f.stored, path)
	return path, nil
}

func (f *fakeArtifactStore) StoreTemp(_ context.Context, r io.Reader, _ string) (string, error) {
	if f.storeErr != nil {
		return "", f.storeErr
	}
	io.Copy(io.Discard, r)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	path := fmt.Sprintf("static/uploads/temp_%d.jpg", f.seq)
	f.stored = append(f.stored, path)
	return path, nil
}

func (f *fakeArtifactStore) Reclaim(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reclaimed = append(f.reclaimed, path)
	return nil
}

// mockDetector returns canned defects or an error.
type mockDetector struct {
	defects []domain.Defect
	err     error
	calls   int

	lastThreshold float64
	lastAnnotate  bool
}

func (m *mockDetector) Detect(_ context.Context, imagePath string, threshold float64, annotate bool) ([]domain.Defect, string, error) {
	m.calls++
	m.lastThreshold = threshold
	m.lastAnnotate = annotate
	if m.err != nil {
		return nil, "", m.err
	}
	return m.defects, imagePath, nil
}

// mockPredictor returns canned raw boxes for the detection service tests.
type mockPredictor struct {
	boxes []domain.RawBox
	err   error
}

func (m *mockPredictor) Predict(_ context.Context, _ string, _ float64) ([]domain.RawBox, error) {
	return m.boxes, m.err
}

func (m *mockPredictor) Healthcheck(_ context.Context) error { return nil }

// externalErrorCount reads the external-error counter for one service from
// the registry.
func externalErrorCount(t *testing.T, m *observability.Metrics, service string) float64 {
	t.Helper()

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "defect_external_errors_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "service" && label.GetValue() == service {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
