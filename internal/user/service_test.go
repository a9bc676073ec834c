package user

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/calplanner/internal/model"
	"github.com/hitoshi/calplanner/internal/repository"
)

// --- モック ---

// memoryStore はStoreのテスト用インメモリ実装。
type memoryStore struct {
	users     map[int64]*model.User
	nextID    int64
	createErr error
	updateErr error
}

func newMemoryStore(users ...*model.User) *memoryStore {
	m := &memoryStore{users: map[int64]*model.User{}, nextID: 1}
	for _, u := range users {
		m.users[u.ID] = u
		if u.ID >= m.nextID {
			m.nextID = u.ID + 1
		}
	}
	return m
}

func (m *memoryStore) FindByID(_ context.Context, id int64) (*model.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *memoryStore) FindByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memoryStore) Create(_ context.Context, u *model.User) error {
	if m.createErr != nil {
		return m.createErr
	}
	u.ID = m.nextID
	m.nextID++
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memoryStore) Update(_ context.Context, u *model.User) (*model.User, error) {
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	if _, ok := m.users[u.ID]; !ok {
		return nil, nil
	}
	cp := *u
	m.users[u.ID] = &cp
	return u, nil
}

func (m *memoryStore) UpdatePassword(_ context.Context, id int64, hash string) error {
	m.users[id].Password = hash
	return nil
}

func (m *memoryStore) ListAll(_ context.Context) ([]*model.User, error) {
	out := make([]*model.User, 0, len(m.users))
	for id := int64(1); id < m.nextID; id++ {
		if u, ok := m.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

var _ Store = (*memoryStore)(nil)

func newTestService(store *memoryStore) *Service {
	return NewService(store, bcrypt.MinCost, slog.New(slog.NewJSONHandler(io.Discard, nil)))
}

func assertAPIErrorCode(t *testing.T, err error, want string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T (%v)", err, err)
	}
	if apiErr.Code != want {
		t.Errorf("error code = %q, want %q", apiErr.Code, want)
	}
}

func strPtr(s string) *string { return &s }

// --- Signup ---

func TestSignup_HashesPasswordAndNormalizesEmail(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)

	u, err := svc.Signup(context.Background(), SignupInput{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "  Ada@Example.COM ",
		Password:  "correct horse",
	})
	if err != nil {
		t.Fatalf("Signup() error = %v", err)
	}
	if u.ID == 0 {
		t.Error("expected ID to be assigned")
	}
	if u.Email != "ada@example.com" {
		t.Errorf("email = %q, want lower-cased", u.Email)
	}
	if u.Password == "correct horse" {
		t.Fatal("password must not be stored in plain text")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(store.users[u.ID].Password), []byte("correct horse")); err != nil {
		t.Errorf("stored hash does not match password: %v", err)
	}
}

func TestSignup_DuplicateEmail(t *testing.T) {
	store := newMemoryStore(&model.User{ID: 1, Email: "ada@example.com"})
	svc := newTestService(store)

	_, err := svc.Signup(context.Background(), SignupInput{
		FirstName: "Ada", LastName: "L", Email: "ADA@example.com", Password: "pw",
	})
	assertAPIErrorCode(t, err, model.ErrCodeDuplicateEmail)
	if len(store.users) != 1 {
		t.Errorf("no row should be created, got %d users", len(store.users))
	}
}

func TestSignup_DuplicateRaceIsConflict(t *testing.T) {
	store := newMemoryStore()
	store.createErr = repository.ErrDuplicate
	svc := newTestService(store)

	_, err := svc.Signup(context.Background(), SignupInput{
		FirstName: "A", LastName: "B", Email: "a@example.com", Password: "pw",
	})
	assertAPIErrorCode(t, err, model.ErrCodeDuplicateEmail)
}

func TestSignup_Validation(t *testing.T) {
	tests := []struct {
		name string
		in   SignupInput
	}{
		{"missing first name", SignupInput{LastName: "B", Email: "a@example.com", Password: "pw"}},
		{"missing last name", SignupInput{FirstName: "A", Email: "a@example.com", Password: "pw"}},
		{"missing email", SignupInput{FirstName: "A", LastName: "B", Password: "pw"}},
		{"missing password", SignupInput{FirstName: "A", LastName: "B", Email: "a@example.com"}},
		{"invalid email", SignupInput{FirstName: "A", LastName: "B", Email: "not-an-email", Password: "pw"}},
		{"display name email", SignupInput{FirstName: "A", LastName: "B", Email: "Ada <a@example.com>", Password: "pw"}},
		{"password too long", SignupInput{FirstName: "A", LastName: "B", Email: "a@example.com", Password: strings.Repeat("x", 73)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemoryStore()
			_, err := newTestService(store).Signup(context.Background(), tt.in)
			assertAPIErrorCode(t, err, model.ErrCodeValidation)
			if len(store.users) != 0 {
				t.Error("no row should be created")
			}
		})
	}
}

// --- Login ---

func TestLogin(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)
	created, err := svc.Signup(context.Background(), SignupInput{
		FirstName: "Ada", LastName: "L", Email: "ada@example.com", Password: "secret",
	})
	if err != nil {
		t.Fatalf("Signup() error = %v", err)
	}

	u, err := svc.Login(context.Background(), "Ada@Example.com", "secret")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if u.ID != created.ID {
		t.Errorf("user ID = %d, want %d", u.ID, created.ID)
	}

	_, err = svc.Login(context.Background(), "ada@example.com", "wrong")
	assertAPIErrorCode(t, err, model.ErrCodeInvalidCredentials)

	_, err = svc.Login(context.Background(), "nobody@example.com", "secret")
	assertAPIErrorCode(t, err, model.ErrCodeInvalidCredentials)

	_, err = svc.Login(context.Background(), "", "")
	assertAPIErrorCode(t, err, model.ErrCodeValidation)
}

// --- Get / Update ---

func TestGet_NotFound(t *testing.T) {
	_, err := newTestService(newMemoryStore()).Get(context.Background(), 42)
	assertAPIErrorCode(t, err, model.ErrCodeUserNotFound)
}

func TestUpdate_Partial(t *testing.T) {
	store := newMemoryStore(&model.User{ID: 1, FirstName: "Ada", LastName: "L", Email: "ada@example.com", Password: "hash"})
	svc := newTestService(store)

	u, err := svc.Update(context.Background(), 1, UpdateInput{LastName: strPtr("Lovelace")})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if u.FirstName != "Ada" || u.LastName != "Lovelace" || u.Email != "ada@example.com" {
		t.Errorf("user = %+v", u)
	}
	if u.Password != "hash" {
		t.Error("password should be unchanged")
	}
}

func TestUpdate_RehashesPassword(t *testing.T) {
	store := newMemoryStore(&model.User{ID: 1, FirstName: "A", LastName: "B", Email: "a@example.com", Password: "old"})
	svc := newTestService(store)

	if _, err := svc.Update(context.Background(), 1, UpdateInput{Password: strPtr("new-secret")}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(store.users[1].Password), []byte("new-secret")); err != nil {
		t.Errorf("password was not re-hashed: %v", err)
	}
}

func TestUpdate_Errors(t *testing.T) {
	store := newMemoryStore(
		&model.User{ID: 1, FirstName: "A", LastName: "B", Email: "a@example.com"},
		&model.User{ID: 2, FirstName: "C", LastName: "D", Email: "c@example.com"},
	)
	svc := newTestService(store)

	_, err := svc.Update(context.Background(), 9, UpdateInput{FirstName: strPtr("X")})
	assertAPIErrorCode(t, err, model.ErrCodeUserNotFound)

	_, err = svc.Update(context.Background(), 1, UpdateInput{Email: strPtr("C@example.com")})
	assertAPIErrorCode(t, err, model.ErrCodeDuplicateEmail)

	_, err = svc.Update(context.Background(), 1, UpdateInput{FirstName: strPtr("  ")})
	assertAPIErrorCode(t, err, model.ErrCodeValidation)

	_, err = svc.Update(context.Background(), 1, UpdateInput{Email: strPtr("broken")})
	assertAPIErrorCode(t, err, model.ErrCodeValidation)

	// 自分自身のメールアドレスは重複扱いしない
	if _, err := svc.Update(context.Background(), 1, UpdateInput{Email: strPtr("A@example.com")}); err != nil {
		t.Errorf("same email should be accepted, got %v", err)
	}
}

// --- HashLegacyPasswords ---

func TestHashLegacyPasswords(t *testing.T) {
	existing, err := bcrypt.GenerateFromPassword([]byte("already"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	store := newMemoryStore(
		&model.User{ID: 1, Email: "plain@example.com", Password: "plaintext"},
		&model.User{ID: 2, Email: "hashed@example.com", Password: string(existing)},
		&model.User{ID: 3, Email: "empty@example.com", Password: ""},
	)
	svc := newTestService(store)

	n, err := svc.HashLegacyPasswords(context.Background())
	if err != nil {
		t.Fatalf("HashLegacyPasswords() error = %v", err)
	}
	if n != 1 {
		t.Errorf("hashed = %d, want 1", n)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(store.users[1].Password), []byte("plaintext")); err != nil {
		t.Errorf("plain password was not hashed: %v", err)
	}
	if store.users[2].Password != string(existing) {
		t.Error("existing hash must be left untouched")
	}

	// 2回目は何もしない
	n, err = svc.HashLegacyPasswords(context.Background())
	if err != nil || n != 0 {
		t.Errorf("second run = %d, %v; want 0, nil", n, err)
	}
}
