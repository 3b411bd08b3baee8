package accounts

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"account_service/internal/lib/jwt"
	"account_service/internal/lib/passhash"
	"account_service/internal/models"
	"account_service/internal/storage"

	"github.com/stretchr/testify/require"
)

// fakeStore keeps accounts and outstanding codes in memory and mirrors
// the postgres repo contract, including the unique-email guarantee.
type fakeStore struct {
	accounts map[string]models.Account
	byEmail  map[string]string
	codes    map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts: map[string]models.Account{},
		byEmail:  map[string]string{},
		codes:    map[string]string{},
	}
}

func (s *fakeStore) SaveAccount(_ context.Context, acc models.Account, _ string, code string) (models.Account, error) {
	if _, ok := s.byEmail[acc.Email]; ok {
		return models.Account{}, storage.ErrAccountExists
	}

	now := time.Now()
	acc.CreatedAt = now
	acc.UpdatedAt = now

	s.accounts[acc.ID] = acc
	s.byEmail[acc.Email] = acc.ID
	s.codes[acc.ID] = code

	return acc, nil
}

func (s *fakeStore) AccountByEmail(_ context.Context, email string) (models.Account, error) {
	id, ok := s.byEmail[email]
	if !ok {
		return models.Account{}, storage.ErrAccountNotFound
	}

	return s.accounts[id], nil
}

func (s *fakeStore) ExistsByID(_ context.Context, id string) (bool, error) {
	_, ok := s.accounts[id]
	return ok, nil
}

func (s *fakeStore) ExistsByEmail(_ context.Context, email string) (bool, error) {
	_, ok := s.byEmail[email]
	return ok, nil
}

func (s *fakeStore) ConsumeAccessCode(_ context.Context, accountID, code string, _ time.Duration) error {
	stored, ok := s.codes[accountID]
	if !ok || stored != code {
		return storage.ErrCodeNotFound
	}

	delete(s.codes, accountID)

	acc := s.accounts[accountID]
	acc.Verified = true
	acc.UpdatedAt = time.Now()
	s.accounts[accountID] = acc

	return nil
}

type fakePublisher struct {
	messages []models.Message
	fail     bool
}

func (p *fakePublisher) SendMessage(_ context.Context, msg models.Message) error {
	if p.fail {
		return errors.New("broker down")
	}

	p.messages = append(p.messages, msg)

	return nil
}

func newTestService(t *testing.T, kind models.Kind) (*Accounts, *fakeStore, *fakePublisher) {
	t.Helper()

	store := newFakeStore()
	pub := &fakePublisher{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := New(
		log,
		store,
		store,
		store,
		pub,
		passhash.New(4),
		jwt.New("test-secret", time.Hour),
		kind,
		0,
	)

	return svc, store, pub
}

func TestRegister(t *testing.T) {
	svc, store, pub := newTestService(t, models.KindAdmin)
	ctx := context.Background()

	acc, err := svc.Register(ctx, "a@x.com", "a", "pw")
	require.NoError(t, err)
	require.NotEmpty(t, acc.ID)
	require.Equal(t, "a@x.com", acc.Email)
	require.Equal(t, "a", acc.Username)
	require.False(t, acc.Verified)
	require.Equal(t, []string{"Admin"}, acc.Roles)
	require.NotEqual(t, "pw", string(acc.PassHash))

	code := store.codes[acc.ID]
	require.Len(t, code, 6)

	require.Len(t, pub.messages, 1)
	require.Equal(t, "a@x.com", pub.messages[0].Email)
	require.Equal(t, code, pub.messages[0].Code)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc, store, _ := newTestService(t, models.KindAdmin)
	ctx := context.Background()

	first, err := svc.Register(ctx, "a@x.com", "a", "pw")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "a@x.com", "b", "other")
	require.ErrorIs(t, err, storage.ErrAccountExists)

	// the existing record is untouched
	require.Equal(t, first, store.accounts[first.ID])
	require.Len(t, store.accounts, 1)
}

func TestRegister_DuplicateRace(t *testing.T) {
	// the pre-check passes but the store reports the constraint
	// violation: the caller still sees ErrAccountExists
	svc, store, _ := newTestService(t, models.KindAdmin)
	ctx := context.Background()

	acc, err := svc.Register(ctx, "a@x.com", "a", "pw")
	require.NoError(t, err)

	delete(store.byEmail, "a@x.com")
	store.byEmail["a@x.com"] = acc.ID

	_, err = svc.Register(ctx, "a@x.com", "b", "pw")
	require.ErrorIs(t, err, storage.ErrAccountExists)
}

func TestRegister_StaffKindGeneratesCredentials(t *testing.T) {
	svc, store, _ := newTestService(t, models.KindStaff)
	ctx := context.Background()

	acc, err := svc.Register(ctx, "worker@corp.com", "", "")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(acc.Username, "worker-"))
	require.Equal(t, []string{"Staff"}, acc.Roles)
	require.NotEmpty(t, acc.PassHash)
	require.Len(t, store.codes[acc.ID], 6)
}

func TestVerify(t *testing.T) {
	svc, store, _ := newTestService(t, models.KindAdmin)
	ctx := context.Background()

	acc, err := svc.Register(ctx, "a@x.com", "a", "pw")
	require.NoError(t, err)
	code := store.codes[acc.ID]

	ok, err := svc.Verify(ctx, acc.ID, "000000")
	require.NoError(t, err)
	require.False(t, ok)
	require.False(t, store.accounts[acc.ID].Verified)

	ok, err = svc.Verify(ctx, acc.ID, code)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, store.accounts[acc.ID].Verified)

	// consumed: the same code does not redeem twice
	ok, err = svc.Verify(ctx, acc.ID, code)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerify_WrongAccount(t *testing.T) {
	svc, store, _ := newTestService(t, models.KindAdmin)
	ctx := context.Background()

	acc, err := svc.Register(ctx, "a@x.com", "a", "pw")
	require.NoError(t, err)

	ok, err := svc.Verify(ctx, "nosuchid", store.codes[acc.ID])
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLogin(t *testing.T) {
	svc, _, _ := newTestService(t, models.KindAdmin)
	ctx := context.Background()

	acc, err := svc.Register(ctx, "a@x.com", "a", "pw")
	require.NoError(t, err)

	token, err := svc.Login(ctx, "a@x.com", "pw")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	sub, err := jwt.New("test-secret", time.Hour).Validate(token)
	require.NoError(t, err)
	require.Equal(t, acc.ID, sub)
}

func TestLogin_Failures(t *testing.T) {
	svc, _, _ := newTestService(t, models.KindAdmin)
	ctx := context.Background()

	_, err := svc.Register(ctx, "a@x.com", "a", "pw")
	require.NoError(t, err)

	// wrong password and unknown email yield the same error
	_, err = svc.Login(ctx, "a@x.com", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, "nosuch@x.com", "pw")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_UnverifiedAccountAllowed(t *testing.T) {
	svc, store, _ := newTestService(t, models.KindAdmin)
	ctx := context.Background()

	acc, err := svc.Register(ctx, "a@x.com", "a", "pw")
	require.NoError(t, err)
	require.False(t, store.accounts[acc.ID].Verified)

	_, err = svc.Login(ctx, "a@x.com", "pw")
	require.NoError(t, err)
}

func TestExists(t *testing.T) {
	svc, _, _ := newTestService(t, models.KindAdmin)
	ctx := context.Background()

	acc, err := svc.Register(ctx, "a@x.com", "a", "pw")
	require.NoError(t, err)

	tests := []struct {
		name  string
		id    string
		email string
		want  bool
	}{
		{"by id", acc.ID, "", true},
		{"by email", "", "a@x.com", true},
		{"unknown email", "", "nobody@x.com", false},
		{"id takes priority over email", "nosuchid", "a@x.com", false},
		{"neither", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found, err := svc.Exists(ctx, tt.id, tt.email)
			require.NoError(t, err)
			require.Equal(t, tt.want, found)
		})
	}
}

func TestRefresh(t *testing.T) {
	svc, _, _ := newTestService(t, models.KindAdmin)
	ctx := context.Background()

	acc, err := svc.Register(ctx, "a@x.com", "a", "pw")
	require.NoError(t, err)

	token, err := svc.Login(ctx, "a@x.com", "pw")
	require.NoError(t, err)

	fresh, err := svc.Refresh(ctx, token)
	require.NoError(t, err)
	require.NotEmpty(t, fresh)

	sub, err := jwt.New("test-secret", time.Hour).Validate(fresh)
	require.NoError(t, err)
	require.Equal(t, acc.ID, sub)
}

func TestRefresh_Garbage(t *testing.T) {
	svc, _, _ := newTestService(t, models.KindAdmin)

	_, err := svc.Refresh(context.Background(), "garbage")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegister_PublisherFailureIsNotFatal(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{fail: true}

	svc := New(
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		store,
		store,
		store,
		pub,
		passhash.New(4),
		jwt.New("test-secret", time.Hour),
		models.KindAdmin,
		0,
	)

	acc, err := svc.Register(context.Background(), "a@x.com", "a", "pw")
	require.NoError(t, err)
	require.NotEmpty(t, store.codes[acc.ID])
}
