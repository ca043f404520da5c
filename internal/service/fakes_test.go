package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/Karinaskol06/webchat-microservices/internal/apperror"
	"github.com/Karinaskol06/webchat-microservices/internal/auth"
	"github.com/Karinaskol06/webchat-microservices/internal/model"
	"github.com/Karinaskol06/webchat-microservices/internal/repository"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeIdentityRepo is an in-memory repository.IdentityRepository.
type fakeIdentityRepo struct {
	mu     sync.Mutex
	users  map[int64]*model.User
	nextID int64
	// set to simulate a storage failure
	createErr error
}

func newFakeIdentityRepo() *fakeIdentityRepo {
	return &fakeIdentityRepo{users: make(map[int64]*model.User), nextID: 1}
}

func (f *fakeIdentityRepo) Create(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, existing := range f.users {
		if existing.Username == u.Username {
			return apperror.Duplicate("username", "Username is already in use")
		}
		if existing.Email == u.Email {
			return apperror.Duplicate("email", "Email is already in use")
		}
	}
	u.ID = f.nextID
	f.nextID++
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	copied := *u
	f.users[u.ID] = &copied
	return nil
}

func (f *fakeIdentityRepo) GetByID(_ context.Context, id int64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", "id")
	}
	copied := *u
	return &copied, nil
}

func (f *fakeIdentityRepo) GetByUsername(_ context.Context, username string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == username {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("user", username)
}

func (f *fakeIdentityRepo) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	_, err := f.GetByUsername(ctx, username)
	return err == nil, nil
}

func (f *fakeIdentityRepo) ExistsByEmail(_ context.Context, email string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeIdentityRepo) Update(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[u.ID]; !ok {
		return apperror.NotFound("user", u.Username)
	}
	copied := *u
	f.users[u.ID] = &copied
	return nil
}

func (f *fakeIdentityRepo) List(_ context.Context, _ repository.ListOptions) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.User, 0, len(f.users))
	for id := int64(1); id < f.nextID; id++ {
		if u, ok := f.users[id]; ok {
			out = append(out, *u)
		}
	}
	return out, nil
}

// fakeTrustRepo is an in-memory repository.TrustRecordRepository.
type fakeTrustRepo struct {
	mu        sync.Mutex
	records   map[string]*model.TrustRecord
	createErr error
	getErr    error
	creates   int
	updates   int
}

func newFakeTrustRepo() *fakeTrustRepo {
	return &fakeTrustRepo{records: make(map[string]*model.TrustRecord)}
}

func (f *fakeTrustRepo) Create(_ context.Context, rec *model.TrustRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.records[rec.Username]; ok {
		return apperror.Duplicate("username", "Username already exists")
	}
	rec.ID = "trust-" + strconv.Itoa(f.creates)
	copied := *rec
	f.records[rec.Username] = &copied
	return nil
}

func (f *fakeTrustRepo) GetByUsername(_ context.Context, username string) (*model.TrustRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	rec, ok := f.records[username]
	if !ok {
		return nil, apperror.NotFound("trust record", username)
	}
	copied := *rec
	return &copied, nil
}

func (f *fakeTrustRepo) GetByOwnerID(_ context.Context, ownerID int64) (*model.TrustRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, rec := range f.records {
		if rec.OwnerServiceID == ownerID {
			copied := *rec
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("trust record", "owner")
}

func (f *fakeTrustRepo) Update(_ context.Context, rec *model.TrustRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	var oldKey string
	for key, existing := range f.records {
		if existing.ID == rec.ID {
			oldKey = key
		}
	}
	if oldKey == "" {
		return apperror.NotFound("trust record", rec.ID)
	}
	if holder, ok := f.records[rec.Username]; ok && holder.ID != rec.ID {
		return apperror.Duplicate("username", "Username already exists")
	}
	delete(f.records, oldKey)
	copied := *rec
	f.records[rec.Username] = &copied
	return nil
}

func (f *fakeTrustRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

// downDirectory fails every call the way an unreachable user-service does.
type downDirectory struct{}

var errDown = apperror.Unavailable("user service unavailable", errors.New("dial tcp: connection refused"))

func (downDirectory) RegisterUser(context.Context, model.RegisterRequest) (*model.IdentityRecord, error) {
	return nil, errDown
}
func (downDirectory) GetUserByID(context.Context, int64) (*model.IdentityRecord, error) {
	return nil, errDown
}
func (downDirectory) GetUserByUsername(context.Context, string) (*model.IdentityRecord, error) {
	return nil, errDown
}
func (downDirectory) ExistsByUsername(context.Context, string) (bool, error) { return false, errDown }
func (downDirectory) ExistsByEmail(context.Context, string) (bool, error)    { return false, errDown }
func (downDirectory) ValidateCredentials(context.Context, string, string) (bool, error) {
	return false, errDown
}
func (downDirectory) ValidateAndGetInfo(context.Context, string, string) (*model.CredentialsResult, error) {
	return nil, errDown
}

const testSecret = "service-test-secret-0123456789"

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestTokens(t *testing.T) *auth.TokenService {
	t.Helper()
	ts, err := auth.NewTokenService(testSecret)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}
