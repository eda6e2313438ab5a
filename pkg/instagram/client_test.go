package instagram

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"instatrack/pkg/config"
	"instatrack/pkg/errors"
	"instatrack/pkg/logger"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *Session) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.DefaultConfig()
	cfg.RateLimit.RequestsPerMinute = 10000
	cfg.Retry.MaxAttempts = 1
	cfg.Retry.InitialDelay = time.Millisecond

	session, err := NewSession(cfg, logger.NewNopLogger())
	require.NoError(t, err)
	session.SetBaseURL(server.URL)
	t.Cleanup(session.Close)

	return NewClient(session, logger.NewNopLogger()), session
}

func TestFetchProfile(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, ProfileEndpoint, r.URL.Path)
		assert.Equal(t, "Alice", r.URL.Query().Get("username"))
		fmt.Fprint(w, `{
			"data": {"user": {
				"id": "42",
				"username": "Alice",
				"full_name": "Alice A",
				"biography": "chasing #Sunsets with @Bob.",
				"edge_followed_by": {"count": 120},
				"edge_follow": {"count": 80},
				"edge_owner_to_timeline_media": {"count": 17},
				"is_private": true,
				"followed_by_viewer": true,
				"profile_pic_url_hd": "https://cdn.example/alice.jpg"
			}},
			"status": "ok"
		}`)
	}))

	profile, err := client.FetchProfile("Alice")
	require.NoError(t, err)

	assert.Equal(t, "42", profile.UserID)
	assert.Equal(t, "alice", profile.Username, "usernames are normalized to lowercase")
	assert.Equal(t, 120, profile.Followers)
	assert.Equal(t, 17, profile.MediaCount)
	assert.True(t, profile.IsPrivate)
	assert.True(t, profile.FollowedByViewer)
	assert.Equal(t, []string{"sunsets"}, profile.Hashtags)
	assert.Equal(t, []string{"bob"}, profile.Mentions)
}

func TestFetchProfileNullUserIsNotFound(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data": {"user": null}, "status": "ok"}`)
	}))

	_, err := client.FetchProfile("ghost")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestFetchProfileHTTPNotFound(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := client.FetchProfile("ghost")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestFetchProfileMalformedPayload(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html>login required</html>`)
	}))

	_, err := client.FetchProfile("alice")
	require.Error(t, err)
	assert.Equal(t, errors.TypeStructural, errors.TypeOf(err))
}

func TestFetchTimelineMedia(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, MediaEndpoint, r.URL.Path)
		assert.Equal(t, MediaQueryHash, r.URL.Query().Get("query_hash"))
		fmt.Fprint(w, `{
			"data": {"user": {"edge_owner_to_timeline_media": {
				"count": 2,
				"page_info": {"has_next_page": true, "end_cursor": "cursor-2"},
				"edges": [
					{"node": {"id": "1", "shortcode": "aaa", "display_url": "https://cdn.example/1.jpg", "is_video": false, "taken_at_timestamp": 1700000000}},
					{"node": {"id": "2", "shortcode": "bbb", "display_url": "https://cdn.example/2.jpg", "video_url": "https://cdn.example/2.mp4", "is_video": true, "taken_at_timestamp": 1700000100}}
				]
			}}},
			"status": "ok"
		}`)
	}))

	items, page, err := client.FetchTimelineMedia("42", "")
	require.NoError(t, err)

	require.Len(t, items, 2)
	assert.Equal(t, "https://cdn.example/1.jpg", items[0].URL)
	assert.Equal(t, "https://cdn.example/2.mp4", items[1].URL, "videos use the video URL")
	assert.True(t, items[1].IsVideo)
	assert.True(t, page.HasNextPage)
	assert.Equal(t, "cursor-2", page.EndCursor)
}

func TestFetchStories(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"reels_media": [{"items": [
				{"id": "s1", "display_url": "https://cdn.example/s1.jpg", "taken_at_timestamp": 1700000000}
			]}],
			"status": "ok"
		}`)
	}))

	items, err := client.FetchStories("42")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "s1", items[0].ID)
}

func TestFetchHighlights(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"tray": [{"id": "h1", "title": "Travel", "items": [
				{"id": "m1", "display_url": "https://cdn.example/m1.jpg", "taken_at_timestamp": 1700000000}
			]}],
			"status": "ok"
		}`)
	}))

	highlights, items, err := client.FetchHighlights("42")
	require.NoError(t, err)
	require.Len(t, highlights, 1)
	assert.Equal(t, "Travel", highlights[0].Title)
	assert.Len(t, items["h1"], 1)
}

func TestTestLoginAuthenticated(t *testing.T) {
	_, session := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, CurrentUserEndpoint, r.URL.Path)
		fmt.Fprint(w, `{"user": {"username": "viewer"}, "status": "ok"}`)
	}))

	identity, err := session.TestLogin()
	require.NoError(t, err)
	assert.Equal(t, "viewer", identity)
	assert.Equal(t, "viewer", session.Username())
}

func TestTestLoginAnonymous(t *testing.T) {
	_, session := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))

	identity, err := session.TestLogin()
	require.NoError(t, err, "an anonymous session is not an error")
	assert.Empty(t, identity)
}

func TestSetCookiesMirrorsCSRFHeader(t *testing.T) {
	var gotHeader, gotCookie string
	_, session := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-CSRFToken")
		if c, err := r.Cookie("csrftoken"); err == nil {
			gotCookie = c.Value
		}
		fmt.Fprint(w, `{"user": {"username": "viewer"}, "status": "ok"}`)
	}))

	require.NoError(t, session.SetCookies(map[string]string{
		"sessionid": "abc",
		"csrftoken": "token-123",
	}))

	_, err := session.TestLogin()
	require.NoError(t, err)
	assert.Equal(t, "token-123", gotHeader)
	assert.Equal(t, "token-123", gotCookie)
}

func TestDownloadMedia(t *testing.T) {
	client, _ := newTestClient(t, http.NotFoundHandler())

	media := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("raw-bytes"))
	}))
	defer media.Close()

	data, err := client.DownloadMedia(media.URL + "/photo.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("raw-bytes"), data)
}
