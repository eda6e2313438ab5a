package scraper

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"instatrack/pkg/dispatch"
	"instatrack/pkg/errors"
	"instatrack/pkg/instagram"
	"instatrack/pkg/logger"
	"instatrack/pkg/privacy"
	"instatrack/pkg/stamps"
)

type fakeFetcher struct {
	profiles map[string]*instagram.RemoteProfile
	errs     map[string]error
}

func (f *fakeFetcher) FetchProfile(username string) (*instagram.RemoteProfile, error) {
	if err, ok := f.errs[username]; ok {
		return nil, err
	}
	if profile, ok := f.profiles[username]; ok {
		return profile, nil
	}
	return nil, errors.Newf(errors.TypeNotFound, "profile %q not found", username)
}

type fakeDispatcher struct {
	dispatched []string
	errs       map[string]error
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, profile *instagram.RemoteProfile) (*dispatch.Result, error) {
	if err, ok := f.errs[profile.Username]; ok {
		return nil, err
	}
	f.dispatched = append(f.dispatched, profile.Username)
	return &dispatch.Result{Username: profile.Username, Downloaded: 2}, nil
}

type fakeStore struct {
	upserted []string
	sets     *privacy.Sets
}

func (f *fakeStore) UpsertProfile(ctx context.Context, profile *instagram.RemoteProfile) error {
	f.upserted = append(f.upserted, profile.Username)
	return nil
}

func (f *fakeStore) TrackingSets(ctx context.Context) (*privacy.Sets, error) {
	if f.sets == nil {
		f.sets = privacy.NewSets()
	}
	return f.sets, nil
}

func publicProfile(username string) *instagram.RemoteProfile {
	return &instagram.RemoteProfile{UserID: "id-" + username, Username: username}
}

func newTestOrchestrator(t *testing.T, fetcher ProfileFetcher, dispatcher Dispatcher, store ProfileStore) *Orchestrator {
	t.Helper()
	marks, err := stamps.Load(filepath.Join(t.TempDir(), "stamps.json"))
	require.NoError(t, err)
	orchestrator, err := NewOrchestrator(fetcher, dispatcher, store, marks, t.TempDir(), logger.NewNopLogger())
	require.NoError(t, err)
	return orchestrator
}

func TestRunEmptyRosterIsNoOp(t *testing.T) {
	orchestrator := newTestOrchestrator(t, &fakeFetcher{}, &fakeDispatcher{}, &fakeStore{})

	summary, err := orchestrator.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, summary.Total)
	assert.Zero(t, summary.Synced)
}

func TestRunSkipsUnfetchableUsers(t *testing.T) {
	fetcher := &fakeFetcher{
		profiles: map[string]*instagram.RemoteProfile{
			"alice": publicProfile("alice"),
			"carol": publicProfile("carol"),
		},
	}
	dispatcher := &fakeDispatcher{}
	store := &fakeStore{}
	orchestrator := newTestOrchestrator(t, fetcher, dispatcher, store)

	summary, err := orchestrator.Run(context.Background(), []string{"alice", "ghost", "carol"})
	require.NoError(t, err, "an unfetchable user must not abort the run")

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.Synced)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, []string{"ghost"}, summary.FailedUsers)
	assert.Equal(t, []string{"alice", "carol"}, dispatcher.dispatched)
	assert.Equal(t, []string{"alice", "carol"}, store.upserted)
	assert.Equal(t, 4, summary.Downloaded)
}

func TestRunAbortsOnFatalError(t *testing.T) {
	fetcher := &fakeFetcher{
		errs: map[string]error{
			"alice": errors.New(errors.TypeAuth, "session expired"),
		},
		profiles: map[string]*instagram.RemoteProfile{
			"bob": publicProfile("bob"),
		},
	}
	dispatcher := &fakeDispatcher{}
	orchestrator := newTestOrchestrator(t, fetcher, dispatcher, &fakeStore{})

	_, err := orchestrator.Run(context.Background(), []string{"alice", "bob"})
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
	assert.Empty(t, dispatcher.dispatched, "nothing may be dispatched after a fatal error")
}

func TestRunRecordsPrivacyTransitions(t *testing.T) {
	profile := publicProfile("alice")
	profile.IsPrivate = true
	fetcher := &fakeFetcher{profiles: map[string]*instagram.RemoteProfile{"alice": profile}}

	store := &fakeStore{sets: privacy.NewSets()}
	store.sets.Classify("alice", false)

	orchestrator := newTestOrchestrator(t, fetcher, &fakeDispatcher{}, store)

	summary, err := orchestrator.Run(context.Background(), []string{"alice"})
	require.NoError(t, err)

	require.Len(t, summary.Transitions, 1)
	assert.Equal(t, privacy.StatePublic, summary.Transitions[0].From)
	assert.Equal(t, privacy.StatePrivate, summary.Transitions[0].To)
}

func TestRunDispatchFailureCountsUser(t *testing.T) {
	fetcher := &fakeFetcher{
		profiles: map[string]*instagram.RemoteProfile{
			"alice": publicProfile("alice"),
			"bob":   publicProfile("bob"),
		},
	}
	dispatcher := &fakeDispatcher{
		errs: map[string]error{"alice": errors.New(errors.TypeNetwork, "download failed")},
	}
	orchestrator := newTestOrchestrator(t, fetcher, dispatcher, &fakeStore{})

	summary, err := orchestrator.Run(context.Background(), []string{"alice", "bob"})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Synced)
	assert.Equal(t, []string{"alice"}, summary.FailedUsers)
}

func TestRunSavesTrackingSetsOnFinish(t *testing.T) {
	trackingDir := t.TempDir()
	fetcher := &fakeFetcher{
		profiles: map[string]*instagram.RemoteProfile{"alice": publicProfile("alice")},
	}
	marks, err := stamps.Load(filepath.Join(t.TempDir(), "stamps.json"))
	require.NoError(t, err)
	orchestrator, err := NewOrchestrator(fetcher, &fakeDispatcher{}, nil, marks, trackingDir, logger.NewNopLogger())
	require.NoError(t, err)

	_, err = orchestrator.Run(context.Background(), []string{"alice"})
	require.NoError(t, err)

	saved, err := privacy.LoadSets(trackingDir)
	require.NoError(t, err)
	assert.Equal(t, privacy.StatePublic, saved.StateOf("alice"))
}

func TestStaticRoster(t *testing.T) {
	roster := StaticRoster{"alice", "bob"}
	names, err := roster.Usernames(context.Background(), privacy.FilterAll)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, names)
}
