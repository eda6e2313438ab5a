package instagram

import (
	"instatrack/pkg/errors"
	"instatrack/pkg/logger"
)

// Client fetches profile metadata and content through an authenticated
// session. It is the concrete implementation of the fetch capability the
// orchestrator and the dispatcher consume through interfaces.
type Client struct {
	session *Session
	logger  logger.Logger
}

// NewClient creates a client bound to a session
func NewClient(session *Session, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Client{session: session, logger: log}
}

// FetchProfile fetches the current metadata snapshot for a username.
// A missing or deactivated account yields a not_found error; the caller
// treats that as routine.
func (c *Client) FetchProfile(username string) (*RemoteProfile, error) {
	c.logger.DebugWithFields("fetching user profile", map[string]interface{}{
		"username": username,
	})

	var response profileResponse
	if err := c.session.GetJSON(profilePath(username), &response); err != nil {
		return nil, err
	}

	if response.Data.User == nil {
		return nil, errors.Newf(errors.TypeNotFound, "profile %q not found", username)
	}

	profile := response.Data.User.toRemoteProfile()
	if profile.Username == "" || profile.UserID == "" {
		return nil, errors.Newf(errors.TypeStructural, "profile payload for %q is missing identity fields", username)
	}

	c.logger.DebugWithFields("profile fetched", map[string]interface{}{
		"username":  profile.Username,
		"followers": profile.Followers,
		"posts":     profile.MediaCount,
		"private":   profile.IsPrivate,
	})
	return profile, nil
}

// FetchTimelineMedia fetches one page of a user's timeline posts
func (c *Client) FetchTimelineMedia(userID, after string) ([]MediaItem, PageInfo, error) {
	var response mediaResponse
	if err := c.session.GetJSON(mediaPath(userID, after), &response); err != nil {
		return nil, PageInfo{}, err
	}

	timeline := response.Data.User.EdgeOwnerToTimelineMedia
	items := make([]MediaItem, 0, len(timeline.Edges))
	for _, edge := range timeline.Edges {
		items = append(items, edge.Node.toItem())
	}

	c.logger.DebugWithFields("media batch fetched", map[string]interface{}{
		"user_id":  userID,
		"items":    len(items),
		"has_next": timeline.PageInfo.HasNextPage,
	})
	return items, timeline.PageInfo, nil
}

// FetchStories fetches a user's currently active stories
func (c *Client) FetchStories(userID string) ([]MediaItem, error) {
	var response storiesResponse
	if err := c.session.GetJSON(storiesPath(userID), &response); err != nil {
		return nil, err
	}

	var items []MediaItem
	for _, reel := range response.ReelsMedia {
		for _, node := range reel.Items {
			items = append(items, node.toItem())
		}
	}
	return items, nil
}

// FetchReels fetches one page of a user's reels
func (c *Client) FetchReels(userID, after string) ([]MediaItem, PageInfo, error) {
	var response reelsResponse
	if err := c.session.GetJSON(reelsPath(userID, after), &response); err != nil {
		return nil, PageInfo{}, err
	}

	items := make([]MediaItem, 0, len(response.Items))
	for _, entry := range response.Items {
		items = append(items, entry.Media.toItem())
	}

	page := PageInfo{
		HasNextPage: response.PagingInfo.MoreAvailable,
		EndCursor:   response.PagingInfo.MaxID,
	}
	return items, page, nil
}

// FetchHighlights fetches the highlight reels attached to a profile,
// flattened into their media items.
func (c *Client) FetchHighlights(userID string) ([]Highlight, map[string][]MediaItem, error) {
	var response highlightsResponse
	if err := c.session.GetJSON(highlightsPath(userID), &response); err != nil {
		return nil, nil, err
	}

	highlights := make([]Highlight, 0, len(response.Tray))
	items := make(map[string][]MediaItem, len(response.Tray))
	for _, entry := range response.Tray {
		highlights = append(highlights, Highlight{ID: entry.ID, Title: entry.Title})
		for _, node := range entry.Items {
			items[entry.ID] = append(items[entry.ID], node.toItem())
		}
	}
	return highlights, items, nil
}

// DownloadMedia fetches the raw bytes of one media URL
func (c *Client) DownloadMedia(url string) ([]byte, error) {
	return c.session.Download(url)
}
