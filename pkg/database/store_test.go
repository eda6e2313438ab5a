package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"instatrack/pkg/errors"
	"instatrack/pkg/instagram"
	"instatrack/pkg/logger"
	"instatrack/pkg/privacy"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"), logger.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAddUserIdempotent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	added, err := store.AddUser(ctx, "Alice")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = store.AddUser(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, added, "re-adding a tracked user must be a no-op")
}

func TestRemoveUserNotTracked(t *testing.T) {
	store := openTestStore(t)

	err := store.RemoveUser(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestUpsertProfileCreatesAndUpdates(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	remote := &instagram.RemoteProfile{
		UserID:    "123",
		Username:  "alice",
		FullName:  "Alice A",
		Biography: "travel #sunset with @bob",
		Followers: 10,
		IsPrivate: false,
		Hashtags:  []string{"sunset"},
		Mentions:  []string{"bob"},
	}
	require.NoError(t, store.UpsertProfile(ctx, remote))

	stored, err := store.GetProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "123", stored.UserID)
	assert.Equal(t, 10, stored.Followers)
	assert.Equal(t, []string{"sunset"}, stored.Hashtags)
	assert.Equal(t, []string{"bob"}, stored.Mentions)

	remote.Followers = 25
	remote.IsPrivate = true
	remote.Hashtags = []string{"beach"}
	remote.Mentions = nil
	require.NoError(t, store.UpsertProfile(ctx, remote))

	stored, err = store.GetProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 25, stored.Followers)
	assert.True(t, stored.IsPrivate)
	assert.Equal(t, []string{"beach"}, stored.Hashtags, "token associations are replaced, not accumulated")
	assert.Empty(t, stored.Mentions)
}

func TestUpsertProfileSharedTokens(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, username := range []string{"alice", "bob"} {
		require.NoError(t, store.UpsertProfile(ctx, &instagram.RemoteProfile{
			UserID:   username,
			Username: username,
			Hashtags: []string{"shared"},
		}))
	}

	for _, username := range []string{"alice", "bob"} {
		stored, err := store.GetProfile(ctx, username)
		require.NoError(t, err)
		assert.Equal(t, []string{"shared"}, stored.Hashtags)
	}
}

func TestGetProfileNotTracked(t *testing.T) {
	store := openTestStore(t)

	_, err := store.GetProfile(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestListProfilesFiltering(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertProfile(ctx, &instagram.RemoteProfile{UserID: "1", Username: "zoe"}))
	require.NoError(t, store.UpsertProfile(ctx, &instagram.RemoteProfile{UserID: "2", Username: "bob", IsPrivate: true}))
	require.NoError(t, store.UpsertProfile(ctx, &instagram.RemoteProfile{UserID: "3", Username: "alice"}))

	names, err := store.Usernames(ctx, privacy.FilterAll)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob", "zoe"}, names)

	names, err = store.Usernames(ctx, privacy.FilterPrivate)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, names)

	names, err = store.Usernames(ctx, privacy.FilterPublic)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "zoe"}, names)
}

func TestSetPrivacy(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertProfile(ctx, &instagram.RemoteProfile{UserID: "1", Username: "alice"}))
	require.NoError(t, store.SetPrivacy(ctx, "alice", true))

	stored, err := store.GetProfile(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, stored.IsPrivate)

	err = store.SetPrivacy(ctx, "ghost", true)
	assert.True(t, errors.IsNotFound(err))
}

func TestRemoveUserCascades(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertProfile(ctx, &instagram.RemoteProfile{
		UserID:   "1",
		Username: "alice",
		Hashtags: []string{"sunset"},
	}))
	require.NoError(t, store.RemoveUser(ctx, "alice"))

	var count int
	err := store.db.QueryRow("SELECT COUNT(*) FROM profile_hashtags").Scan(&count)
	require.NoError(t, err)
	assert.Zero(t, count, "associations must be removed with the profile")
}

func TestTrackingSets(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertProfile(ctx, &instagram.RemoteProfile{UserID: "1", Username: "alice"}))
	require.NoError(t, store.UpsertProfile(ctx, &instagram.RemoteProfile{UserID: "2", Username: "bob", IsPrivate: true}))

	sets, err := store.TrackingSets(ctx)
	require.NoError(t, err)
	assert.Equal(t, privacy.StatePublic, sets.StateOf("alice"))
	assert.Equal(t, privacy.StatePrivate, sets.StateOf("bob"))
	assert.Equal(t, privacy.StateUnknown, sets.StateOf("ghost"))
}

func TestTrackingSetsNeverSyncedUserIsUnclassified(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.AddUser(ctx, "alice")
	require.NoError(t, err)

	sets, err := store.TrackingSets(ctx)
	require.NoError(t, err)
	require.Equal(t, privacy.StateUnknown, sets.StateOf("alice"),
		"a tracked but never-synced user has no observed privacy state")

	change := sets.Classify("alice", true)
	assert.False(t, change.Transitioned(), "the first observed state must not count as a transition")

	require.NoError(t, store.UpsertProfile(ctx, &instagram.RemoteProfile{
		UserID:    "1",
		Username:  "alice",
		IsPrivate: true,
	}))

	sets, err = store.TrackingSets(ctx)
	require.NoError(t, err)
	assert.Equal(t, privacy.StatePrivate, sets.StateOf("alice"))
}

func TestSetPrivacyClassifiesNeverSyncedUser(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.AddUser(ctx, "bob")
	require.NoError(t, err)
	require.NoError(t, store.SetPrivacy(ctx, "bob", true))

	sets, err := store.TrackingSets(ctx)
	require.NoError(t, err)
	assert.Equal(t, privacy.StatePrivate, sets.StateOf("bob"),
		"a manual override counts as a classification")
}
