package user

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fakeRepo struct {
	mu    sync.Mutex
	users map[primitive.ObjectID]User
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{users: make(map[primitive.ObjectID]User)}
}

func (f *fakeRepo) Create(_ context.Context, u User) (User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Email == u.Email {
			return User{}, ErrEmailTaken
		}
	}
	u.ID = primitive.NewObjectID()
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeRepo) FindByEmail(_ context.Context, email string) (User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (f *fakeRepo) FindByID(_ context.Context, id primitive.ObjectID) (User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (f *fakeRepo) List(context.Context) ([]User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeRepo) Update(_ context.Context, id primitive.ObjectID, email string, role Role) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return false, nil
	}
	if email != "" {
		u.Email = email
	}
	if role != "" {
		u.Role = role
	}
	f.users[id] = u
	return true, nil
}

func (f *fakeRepo) Delete(_ context.Context, id primitive.ObjectID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[id]; !ok {
		return false, nil
	}
	delete(f.users, id)
	return true, nil
}

func (f *fakeRepo) CountByRole(_ context.Context, role Role) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, u := range f.users {
		if u.Role == role {
			n++
		}
	}
	return n, nil
}

func (f *fakeRepo) Count(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.users)), nil
}

type fakeBlacklist struct {
	mu      sync.Mutex
	revoked map[string]time.Duration
}

func (b *fakeBlacklist) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.revoked == nil {
		b.revoked = make(map[string]time.Duration)
	}
	b.revoked[jti] = ttl
	return nil
}

func (b *fakeBlacklist) IsRevoked(_ context.Context, jti string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.revoked[jti]
	return ok, nil
}

func newTestUserService(t *testing.T) (*Service, *fakeRepo, *fakeBlacklist) {
	t.Helper()
	repo := newFakeRepo()
	bl := &fakeBlacklist{}
	svc, err := NewService(ServiceConfig{
		Repo:      repo,
		Blacklist: bl,
		Secret:    []byte(testSecret),
		TokenTTL:  time.Hour,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, repo, bl
}
