package account

import (
	"context"
	"testing"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/model"
	"storefront/pkg/kv"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newDirectory(t *testing.T, store kv.Store) *Directory {
	t.Helper()
	keys := kv.NewKeys("")
	d := NewDirectory(store, Options{
		UsersKey:   keys.Users(),
		SessionKey: keys.Session(),
		Hasher:     BcryptHasher{Cost: bcrypt.MinCost},
		Clock:      fixedClock{epoch},
	})
	t.Cleanup(d.Close)
	return d
}

func register(t *testing.T, d *Directory, email string) model.Profile {
	t.Helper()
	p, err := d.Register(context.Background(), RegisterInput{Name: "Ann", Email: email, Password: "secret1"})
	require.NoError(t, err)
	return p
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	d := newDirectory(t, kv.NewMemoryStore())

	p, err := d.Register(ctx, RegisterInput{Name: " Ann ", Email: " Ann@Example.COM ", Password: "secret1", Phone: "+998 90 123-45-67"})
	require.NoError(t, err)
	assert.Equal(t, epoch.UnixMilli(), p.ID)
	assert.Equal(t, "Ann", p.Name)
	assert.Equal(t, "ann@example.com", p.Email)
	assert.Equal(t, &p, d.CurrentUser(ctx))

	users := d.Users(ctx)
	require.Len(t, users, 1)
	assert.NotEqual(t, "secret1", users[0].PasswordHash)
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	d := newDirectory(t, kv.NewMemoryStore())
	register(t, d, "taken@example.com")
	_, err := d.Register(ctx, RegisterInput{Name: "B", Email: "b@example.com", Password: "secret1", Phone: "1234567"})
	require.NoError(t, err)

	tests := []struct {
		name  string
		in    RegisterInput
		kind  *apperr.Error
		field string
	}{
		{"missing name", RegisterInput{Email: "x@example.com", Password: "secret1"}, apperr.ErrValidation, "name"},
		{"bad email", RegisterInput{Name: "x", Email: "nope", Password: "secret1"}, apperr.ErrValidation, "email"},
		{"short password", RegisterInput{Name: "x", Email: "x@example.com", Password: "12345"}, apperr.ErrValidation, "password"},
		{"short phone", RegisterInput{Name: "x", Email: "x@example.com", Password: "secret1", Phone: "12-34"}, apperr.ErrValidation, "phone"},
		{"phone taken", RegisterInput{Name: "x", Email: "x@example.com", Password: "secret1", Phone: "123 45 67"}, apperr.ErrValidation, "phone"},
		{"duplicate email", RegisterInput{Name: "x", Email: "TAKEN@example.com", Password: "secret1"}, apperr.ErrDuplicateEmail, "email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Register(ctx, tt.in)
			require.ErrorIs(t, err, tt.kind)
			e, ok := apperr.As(err)
			require.True(t, ok)
			assert.Equal(t, tt.field, e.Field)
		})
	}
	assert.Len(t, d.Users(ctx), 2)
}

func TestRegisterIDCollision(t *testing.T) {
	d := newDirectory(t, kv.NewMemoryStore())
	a := register(t, d, "a@example.com")
	b := register(t, d, "b@example.com")
	assert.Equal(t, a.ID+1, b.ID)
}

func TestLoginLogout(t *testing.T) {
	ctx := context.Background()
	d := newDirectory(t, kv.NewMemoryStore())
	_, err := d.Register(ctx, RegisterInput{Name: "Ann", Email: "ann@example.com", Password: "secret1", Phone: "+1 (555) 010-9999"})
	require.NoError(t, err)
	require.NoError(t, d.Logout(ctx))
	assert.False(t, d.IsLoggedIn(ctx))

	_, err = d.Login(ctx, "ann@example.com", "wrong-pass")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)
	_, err = d.Login(ctx, "nobody@example.com", "secret1")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)
	assert.False(t, d.IsLoggedIn(ctx))

	p, err := d.Login(ctx, "ANN@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", p.Email)
	assert.True(t, d.IsLoggedIn(ctx))

	require.NoError(t, d.Logout(ctx))
	_, err = d.LoginByPhone(ctx, "15550109999", "secret1")
	require.NoError(t, err)
	assert.True(t, d.IsLoggedIn(ctx))
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()
	d := newDirectory(t, kv.NewMemoryStore())
	name := "Ann B"

	_, err := d.UpdateProfile(ctx, ProfileUpdate{Name: &name})
	assert.ErrorIs(t, err, apperr.ErrNotAuthenticated)

	register(t, d, "other@example.com")
	me := register(t, d, "ann@example.com")

	addr := "1 Main St"
	p, err := d.UpdateProfile(ctx, ProfileUpdate{Name: &name, Address: &addr})
	require.NoError(t, err)
	assert.Equal(t, me.ID, p.ID)
	assert.Equal(t, "Ann B", p.Name)
	assert.Equal(t, "1 Main St", d.CurrentUser(ctx).Address)

	taken := "Other@Example.com"
	_, err = d.UpdateProfile(ctx, ProfileUpdate{Email: &taken})
	assert.ErrorIs(t, err, apperr.ErrDuplicateEmail)

	same := "ANN@example.com"
	p, err = d.UpdateProfile(ctx, ProfileUpdate{Email: &same})
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", p.Email)
}

func TestUpdateProfileDanglingSession(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	d := newDirectory(t, store)
	register(t, d, "ann@example.com")
	require.NoError(t, store.Set(ctx, kv.NewKeys("").Users(), []byte(`[]`)))

	name := "x"
	_, err := d.UpdateProfile(ctx, ProfileUpdate{Name: &name})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.True(t, d.IsLoggedIn(ctx))
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	d := newDirectory(t, kv.NewMemoryStore())

	assert.ErrorIs(t, d.ChangePassword(ctx, "secret1", "secret2"), apperr.ErrNotAuthenticated)

	register(t, d, "ann@example.com")
	assert.ErrorIs(t, d.ChangePassword(ctx, "nope", "secret2"), apperr.ErrWrongOldPassword)
	assert.ErrorIs(t, d.ChangePassword(ctx, "secret1", "123"), apperr.ErrValidation)
	require.NoError(t, d.ChangePassword(ctx, "secret1", "secret2"))
	assert.True(t, d.IsLoggedIn(ctx))

	require.NoError(t, d.Logout(ctx))
	_, err := d.Login(ctx, "ann@example.com", "secret1")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)
	_, err = d.Login(ctx, "ann@example.com", "secret2")
	assert.NoError(t, err)
}

func TestSessionChangedEvents(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	d := newDirectory(t, store)

	var seen []*model.Profile
	d.Subscribe(func(p *model.Profile) { seen = append(seen, p) })

	register(t, d, "ann@example.com")
	require.NoError(t, d.Logout(ctx))

	require.Len(t, seen, 2)
	require.NotNil(t, seen[0])
	assert.Equal(t, "ann@example.com", seen[0].Email)
	assert.Nil(t, seen[1])
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "998901234567", NormalizePhone("+998 (90) 123-45-67"))
	assert.Equal(t, "", NormalizePhone(" - "))
}
