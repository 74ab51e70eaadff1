package users

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/deckhand/deckhand/backend/auth-service/internal/models"
	"github.com/deckhand/deckhand/backend/auth-service/internal/oauth"
)

// in-memory repo
type fakeRepo struct {
	users map[string]*models.User
}

func (f *fakeRepo) UpsertBySubject(ctx context.Context, u *models.User) (*models.User, error) {
	if f.users == nil {
		f.users = map[string]*models.User{}
	}
	if existing, ok := f.users[u.UserID]; ok {
		u.CreatedAt = existing.CreatedAt
	} else {
		u.CreatedAt = time.Now().UTC()
	}
	u.UpdatedAt = time.Now().UTC()
	f.users[u.UserID] = u
	return u, nil
}

func (f *fakeRepo) GetBySubject(ctx context.Context, sub string) (*models.User, error) {
	u, ok := f.users[sub]
	if !ok {
		return nil, nil
	}
	return u, nil
}

func TestResolveOrCreate_NewUser(t *testing.T) {
	svc := NewService(&fakeRepo{})
	p := &oauth.Profile{ID: "123", Username: "sailor", GlobalName: "Sailor", Avatar: "abc"}

	u, err := svc.ResolveOrCreate(context.Background(), p, []string{"member"})
	require.NoError(t, err)
	require.Equal(t, "123", u.UserID)
	require.Equal(t, "sailor", u.Username)
	require.Equal(t, []string{"member"}, u.Roles)
	require.False(t, u.IsAdmin)
	require.False(t, u.LastLogin.IsZero())
}

func TestResolveOrCreate_UpdatesExisting(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.ResolveOrCreate(ctx, &oauth.Profile{ID: "123", Username: "old-name"}, nil)
	require.NoError(t, err)

	u, err := svc.ResolveOrCreate(ctx, &oauth.Profile{ID: "123", Username: "new-name", Avatar: "def"}, []string{"admin"})
	require.NoError(t, err)
	require.Equal(t, "new-name", u.Username)
	require.Equal(t, "def", u.AvatarHash)
	require.True(t, u.IsAdmin)

	got, err := svc.GetBySubject(ctx, "123")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "new-name", got.Username)
}

func TestGetBySubject_Absent(t *testing.T) {
	svc := NewService(&fakeRepo{})
	u, err := svc.GetBySubject(context.Background(), "nope")
	require.NoError(t, err)
	require.Nil(t, u)
}
