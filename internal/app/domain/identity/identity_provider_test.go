package identity

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/FACorreiaa/go-loanhub/internal/app/models"
)

type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Verify(ctx context.Context, idToken string) (*FederatedProfile, error) {
	args := m.Called(ctx, idToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*FederatedProfile), args.Error(1)
}

type recorder struct {
	mu     sync.Mutex
	events []event
}

type event struct {
	client string
	id     *models.Identity
}

func (r *recorder) listen(client string, id *models.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{client, id})
}

func (r *recorder) all() []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event(nil), r.events...)
}

func newTestProvider(verifier TokenVerifier) (*LocalProvider, *recorder) {
	p := NewLocalProvider(NewMemoryRepo(), verifier, zap.NewNop(), WithHashCost(bcrypt.MinCost))
	rec := &recorder{}
	p.Subscribe(rec.listen)
	return p, rec
}

func TestCreateAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes before returning", func(t *testing.T) {
		p, rec := newTestProvider(nil)

		id, err := p.CreateAccount(ctx, "c1", "Ada@Example.com", "Secret1")
		require.NoError(t, err)
		assert.Equal(t, "ada@example.com", id.Email)

		events := rec.all()
		require.Len(t, events, 1)
		assert.Equal(t, "c1", events[0].client)
		assert.Equal(t, id.UID, events[0].id.UID)
		assert.Equal(t, id.UID, p.Current("c1").UID)
	})

	t.Run("rejects weak passwords and bad emails", func(t *testing.T) {
		p, rec := newTestProvider(nil)

		_, err := p.CreateAccount(ctx, "c1", "ada@example.com", "secret")
		assert.ErrorIs(t, err, ErrPasswordNoUpper)

		_, err = p.CreateAccount(ctx, "c1", "not-an-email", "Secret1")
		assert.ErrorIs(t, err, ErrInvalidEmail)

		assert.Empty(t, rec.all())
		assert.Nil(t, p.Current("c1"))
	})

	t.Run("rejects duplicate email", func(t *testing.T) {
		p, _ := newTestProvider(nil)

		_, err := p.CreateAccount(ctx, "c1", "ada@example.com", "Secret1")
		require.NoError(t, err)
		_, err = p.CreateAccount(ctx, "c2", "ada@example.com", "Secret2")
		assert.ErrorIs(t, err, ErrEmailInUse)
	})
}

func TestSignInAndOut(t *testing.T) {
	ctx := context.Background()
	p, rec := newTestProvider(nil)

	_, err := p.CreateAccount(ctx, "setup", "ada@example.com", "Secret1")
	require.NoError(t, err)
	require.NoError(t, p.SignOut(ctx, "setup"))

	_, err = p.SignIn(ctx, "c1", "ada@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = p.SignIn(ctx, "c1", "nobody@example.com", "Secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	id, err := p.SignIn(ctx, "c1", "ada@example.com", "Secret1")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", id.Email)

	require.NoError(t, p.SignOut(ctx, "c1"))
	require.NoError(t, p.SignOut(ctx, "c1"))
	assert.Nil(t, p.Current("c1"))

	var c1 []event
	for _, e := range rec.all() {
		if e.client == "c1" {
			c1 = append(c1, e)
		}
	}
	require.Len(t, c1, 2, "second sign-out must not publish")
	assert.NotNil(t, c1[0].id)
	assert.Nil(t, c1[1].id)
}

func TestSignInFederated(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled without a verifier", func(t *testing.T) {
		p, _ := newTestProvider(nil)
		_, err := p.SignInFederated(ctx, "c1", models.FederatedCredential{IDToken: "x"})
		assert.ErrorIs(t, err, ErrFederationDisabled)
	})

	t.Run("creates the account from the verified token", func(t *testing.T) {
		v := new(MockVerifier)
		v.On("Verify", mock.Anything, "good-token").Return(&FederatedProfile{
			Subject: "google|1", Email: "grace@example.com", Name: "Grace", EmailVerified: true,
		}, nil)
		p, rec := newTestProvider(v)

		id, err := p.SignInFederated(ctx, "c1", models.FederatedCredential{IDToken: "good-token"})
		require.NoError(t, err)
		assert.Equal(t, "grace@example.com", id.Email)
		assert.Equal(t, "Grace", id.DisplayName)
		assert.True(t, id.EmailVerified)
		assert.Len(t, rec.all(), 1)
		v.AssertExpectations(t)
	})

	t.Run("wraps verification failures", func(t *testing.T) {
		v := new(MockVerifier)
		v.On("Verify", mock.Anything, "bad").Return(nil, errors.New("expired"))
		p, rec := newTestProvider(v)

		_, err := p.SignInFederated(ctx, "c1", models.FederatedCredential{IDToken: "bad"})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
		assert.Empty(t, rec.all())
	})
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProvider(nil)

	name := "Ada Lovelace"
	_, err := p.UpdateProfile(ctx, "c1", models.ProfileUpdate{DisplayName: &name})
	assert.ErrorIs(t, err, ErrNotSignedIn)

	_, err = p.CreateAccount(ctx, "c1", "ada@example.com", "Secret1")
	require.NoError(t, err)

	id, err := p.UpdateProfile(ctx, "c1", models.ProfileUpdate{DisplayName: &name})
	require.NoError(t, err)
	assert.Equal(t, name, id.DisplayName)
	assert.Equal(t, name, p.Current("c1").DisplayName)
}

func TestReleaseDoesNotPublish(t *testing.T) {
	ctx := context.Background()
	p, rec := newTestProvider(nil)

	_, err := p.CreateAccount(ctx, "c1", "ada@example.com", "Secret1")
	require.NoError(t, err)
	p.Release("c1")

	assert.Nil(t, p.Current("c1"))
	assert.Len(t, rec.all(), 1)
}

func TestConcurrentSignInAndOutPublishInTableOrder(t *testing.T) {
	ctx := context.Background()
	p, rec := newTestProvider(nil)
	_, err := p.CreateAccount(ctx, "setup", "ada@example.com", "Secret1")
	require.NoError(t, err)
	require.NoError(t, p.SignOut(ctx, "setup"))

	for round := 0; round < 20; round++ {
		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				_, err := p.SignIn(ctx, "c1", "ada@example.com", "Secret1")
				assert.NoError(t, err)
			}()
			go func() {
				defer wg.Done()
				assert.NoError(t, p.SignOut(ctx, "c1"))
			}()
		}
		wg.Wait()

		var last *models.Identity
		for _, e := range rec.all() {
			if e.client == "c1" {
				last = e.id
			}
		}
		assert.Equal(t, p.Current("c1") == nil, last == nil, "round %d: last notification disagrees with Current", round)
	}
}
