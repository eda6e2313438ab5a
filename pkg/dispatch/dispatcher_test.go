package dispatch

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"instatrack/pkg/instagram"
	"instatrack/pkg/logger"
	"instatrack/pkg/stamps"
	"instatrack/pkg/storage"
)

// fakeFetcher serves canned content and records which sections were hit
type fakeFetcher struct {
	timeline   []instagram.MediaItem
	stories    []instagram.MediaItem
	reels      []instagram.MediaItem
	highlights map[string][]instagram.MediaItem

	timelineErr   error
	highlightsErr error

	timelineCalls int
	downloads     []string
}

func (f *fakeFetcher) FetchTimelineMedia(userID, after string) ([]instagram.MediaItem, instagram.PageInfo, error) {
	f.timelineCalls++
	if f.timelineErr != nil {
		return nil, instagram.PageInfo{}, f.timelineErr
	}
	return f.timeline, instagram.PageInfo{}, nil
}

func (f *fakeFetcher) FetchStories(userID string) ([]instagram.MediaItem, error) {
	return f.stories, nil
}

func (f *fakeFetcher) FetchReels(userID, after string) ([]instagram.MediaItem, instagram.PageInfo, error) {
	return f.reels, instagram.PageInfo{}, nil
}

func (f *fakeFetcher) FetchHighlights(userID string) ([]instagram.Highlight, map[string][]instagram.MediaItem, error) {
	if f.highlightsErr != nil {
		return nil, nil, f.highlightsErr
	}
	var tray []instagram.Highlight
	for id := range f.highlights {
		tray = append(tray, instagram.Highlight{ID: id, Title: id})
	}
	return tray, f.highlights, nil
}

func (f *fakeFetcher) DownloadMedia(url string) ([]byte, error) {
	f.downloads = append(f.downloads, url)
	return []byte("media:" + url), nil
}

func newTestDispatcher(t *testing.T, fetcher ContentFetcher, options Options) (*Dispatcher, *storage.Manager) {
	t.Helper()
	store, err := storage.NewManager(t.TempDir(), logger.NewNopLogger())
	require.NoError(t, err)
	marks, err := stamps.Load(filepath.Join(t.TempDir(), "stamps.json"))
	require.NoError(t, err)
	return NewDispatcher(fetcher, store, marks, options, logger.NewNopLogger()), store
}

func item(id string, offset int) instagram.MediaItem {
	return instagram.MediaItem{
		ID:        id,
		Shortcode: id,
		URL:       fmt.Sprintf("https://cdn.example/%s.jpg", id),
		TakenAt:   time.Date(2026, 1, 1, 0, 0, offset, 0, time.UTC),
	}
}

func TestDispatchPrivateNotFollowedGetsPicOnly(t *testing.T) {
	fetcher := &fakeFetcher{timeline: []instagram.MediaItem{item("p1", 1)}}
	dispatcher, _ := newTestDispatcher(t, fetcher, Options{})

	profile := &instagram.RemoteProfile{
		UserID:           "1",
		Username:         "alice",
		IsPrivate:        true,
		FollowedByViewer: false,
		ProfilePicURL:    "https://cdn.example/alice-pic.jpg",
	}

	result, err := dispatcher.Dispatch(context.Background(), profile)
	require.NoError(t, err)
	assert.True(t, result.PicOnly)
	assert.Equal(t, 1, result.Downloaded)
	assert.Zero(t, fetcher.timelineCalls, "restricted profiles must never hit the timeline")
	assert.Equal(t, []string{"https://cdn.example/alice-pic.jpg"}, fetcher.downloads)
}

func TestDispatchPicSkippedWhenURLUnchanged(t *testing.T) {
	fetcher := &fakeFetcher{}
	dispatcher, _ := newTestDispatcher(t, fetcher, Options{})

	profile := &instagram.RemoteProfile{
		UserID:        "1",
		Username:      "alice",
		IsPrivate:     true,
		ProfilePicURL: "https://cdn.example/alice-pic.jpg",
	}

	result, err := dispatcher.Dispatch(context.Background(), profile)
	require.NoError(t, err)
	require.Equal(t, 1, result.Downloaded)

	result, err = dispatcher.Dispatch(context.Background(), profile)
	require.NoError(t, err)
	assert.Zero(t, result.Downloaded)
	assert.Equal(t, 1, result.Skipped, "an unchanged picture URL must not be re-fetched")
	assert.Len(t, fetcher.downloads, 1)
}

func TestDispatchPublicGetsFullContent(t *testing.T) {
	fetcher := &fakeFetcher{
		timeline: []instagram.MediaItem{item("p1", 1), item("p2", 2)},
		stories:  []instagram.MediaItem{item("s1", 3)},
		reels:    []instagram.MediaItem{item("r1", 4)},
	}
	dispatcher, _ := newTestDispatcher(t, fetcher, Options{Stories: true, Reels: true})

	profile := &instagram.RemoteProfile{UserID: "2", Username: "bob"}

	result, err := dispatcher.Dispatch(context.Background(), profile)
	require.NoError(t, err)
	assert.False(t, result.PicOnly)
	assert.Equal(t, 4, result.Downloaded)
	assert.Zero(t, result.Failed)
}

func TestDispatchFollowedPrivateGetsFullContent(t *testing.T) {
	fetcher := &fakeFetcher{timeline: []instagram.MediaItem{item("p1", 1)}}
	dispatcher, _ := newTestDispatcher(t, fetcher, Options{})

	profile := &instagram.RemoteProfile{
		UserID:           "3",
		Username:         "carol",
		IsPrivate:        true,
		FollowedByViewer: true,
	}

	result, err := dispatcher.Dispatch(context.Background(), profile)
	require.NoError(t, err)
	assert.False(t, result.PicOnly)
	assert.Equal(t, 1, result.Downloaded)
}

func TestDispatchSkipsExistingFiles(t *testing.T) {
	fetcher := &fakeFetcher{timeline: []instagram.MediaItem{item("p1", 1)}}
	dispatcher, _ := newTestDispatcher(t, fetcher, Options{})

	profile := &instagram.RemoteProfile{UserID: "2", Username: "bob"}

	result, err := dispatcher.Dispatch(context.Background(), profile)
	require.NoError(t, err)
	require.Equal(t, 1, result.Downloaded)

	result, err = dispatcher.Dispatch(context.Background(), profile)
	require.NoError(t, err)
	assert.Zero(t, result.Downloaded)
	assert.Equal(t, 1, result.Skipped)
}

func TestDispatchHighlightsFailureIsIsolated(t *testing.T) {
	fetcher := &fakeFetcher{
		timeline:      []instagram.MediaItem{item("p1", 1)},
		highlightsErr: fmt.Errorf("tray unavailable"),
	}
	dispatcher, _ := newTestDispatcher(t, fetcher, Options{Highlights: true})

	profile := &instagram.RemoteProfile{UserID: "2", Username: "bob"}

	result, err := dispatcher.Dispatch(context.Background(), profile)
	require.NoError(t, err, "a broken highlights tray must not fail the user")
	assert.Equal(t, 1, result.Downloaded)
}

func TestDispatchTimelineFailureIsPerUserError(t *testing.T) {
	fetcher := &fakeFetcher{timelineErr: fmt.Errorf("boom")}
	dispatcher, _ := newTestDispatcher(t, fetcher, Options{})

	profile := &instagram.RemoteProfile{UserID: "2", Username: "bob"}

	_, err := dispatcher.Dispatch(context.Background(), profile)
	assert.Error(t, err)
}
