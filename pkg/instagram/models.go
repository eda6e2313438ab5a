package instagram

import (
	"regexp"
	"strings"
	"time"
)

// RemoteProfile is the read-only snapshot of a profile fetched during a run.
// It is never persisted directly; it is the source for upserting a profile
// record in the store.
type RemoteProfile struct {
	UserID           string
	Username         string
	FullName         string
	Biography        string
	Followers        int
	Followees        int
	MediaCount       int
	IsPrivate        bool
	FollowedByViewer bool
	FollowsViewer    bool
	BlockedByViewer  bool
	BusinessCategory string
	ExternalURL      string
	ProfilePicURL    string
	Hashtags         []string
	Mentions         []string
}

// MediaItem is one downloadable piece of content from a profile
type MediaItem struct {
	ID        string
	Shortcode string
	URL       string
	IsVideo   bool
	TakenAt   time.Time
}

// PageInfo contains pagination information
type PageInfo struct {
	HasNextPage bool   `json:"has_next_page"`
	EndCursor   string `json:"end_cursor"`
}

// Highlight is one highlight reel attached to a profile
type Highlight struct {
	ID    string
	Title string
}

// profileResponse mirrors the web_profile_info payload
type profileResponse struct {
	Data struct {
		User *profileUser `json:"user"`
	} `json:"data"`
	Status string `json:"status"`
}

type profileUser struct {
	ID                   string    `json:"id"`
	Username             string    `json:"username"`
	FullName             string    `json:"full_name"`
	Biography            string    `json:"biography"`
	EdgeFollowedBy       countNode `json:"edge_followed_by"`
	EdgeFollow           countNode `json:"edge_follow"`
	EdgeTimelineMedia    countNode `json:"edge_owner_to_timeline_media"`
	IsPrivate            bool      `json:"is_private"`
	FollowedByViewer     bool      `json:"followed_by_viewer"`
	FollowsViewer        bool      `json:"follows_viewer"`
	BlockedByViewer      bool      `json:"blocked_by_viewer"`
	BusinessCategoryName string    `json:"business_category_name"`
	ExternalURL          string    `json:"external_url"`
	ProfilePicURLHD      string    `json:"profile_pic_url_hd"`
}

type countNode struct {
	Count int `json:"count"`
}

// currentUserResponse mirrors the current_user payload used for login checks
type currentUserResponse struct {
	User struct {
		Username string `json:"username"`
	} `json:"user"`
	Status string `json:"status"`
}

// mediaResponse mirrors the graphql timeline payload
type mediaResponse struct {
	Data struct {
		User struct {
			EdgeOwnerToTimelineMedia struct {
				Count    int      `json:"count"`
				PageInfo PageInfo `json:"page_info"`
				Edges    []struct {
					Node mediaNode `json:"node"`
				} `json:"edges"`
			} `json:"edge_owner_to_timeline_media"`
		} `json:"user"`
	} `json:"data"`
	Status string `json:"status"`
}

type mediaNode struct {
	ID               string `json:"id"`
	Shortcode        string `json:"shortcode"`
	DisplayURL       string `json:"display_url"`
	VideoURL         string `json:"video_url"`
	IsVideo          bool   `json:"is_video"`
	TakenAtTimestamp int64  `json:"taken_at_timestamp"`
}

func (n *mediaNode) toItem() MediaItem {
	url := n.DisplayURL
	if n.IsVideo && n.VideoURL != "" {
		url = n.VideoURL
	}
	return MediaItem{
		ID:        n.ID,
		Shortcode: n.Shortcode,
		URL:       url,
		IsVideo:   n.IsVideo,
		TakenAt:   time.Unix(n.TakenAtTimestamp, 0).UTC(),
	}
}

// storiesResponse mirrors the reels_media payload
type storiesResponse struct {
	ReelsMedia []struct {
		Items []mediaNode `json:"items"`
	} `json:"reels_media"`
	Status string `json:"status"`
}

// reelsResponse mirrors the clips payload
type reelsResponse struct {
	Items []struct {
		Media mediaNode `json:"media"`
	} `json:"items"`
	PagingInfo struct {
		MaxID         string `json:"max_id"`
		MoreAvailable bool   `json:"more_available"`
	} `json:"paging_info"`
	Status string `json:"status"`
}

// highlightsResponse mirrors the highlights tray payload
type highlightsResponse struct {
	Tray []struct {
		ID    string      `json:"id"`
		Title string      `json:"title"`
		Items []mediaNode `json:"items"`
	} `json:"tray"`
	Status string `json:"status"`
}

var (
	hashtagPattern = regexp.MustCompile(`#([\p{L}\p{N}_]+)`)
	mentionPattern = regexp.MustCompile(`@([a-zA-Z0-9._]+)`)
)

// ExtractHashtags returns the deduplicated lowercase hashtag tokens
// embedded in a biography text, in order of first appearance.
func ExtractHashtags(text string) []string {
	return extractTokens(hashtagPattern, text)
}

// ExtractMentions returns the deduplicated lowercase mention tokens
// embedded in a biography text, in order of first appearance.
func ExtractMentions(text string) []string {
	return extractTokens(mentionPattern, text)
}

func extractTokens(pattern *regexp.Regexp, text string) []string {
	matches := pattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(matches))
	tokens := make([]string, 0, len(matches))
	for _, match := range matches {
		token := strings.ToLower(strings.Trim(match[1], "."))
		if token == "" || seen[token] {
			continue
		}
		seen[token] = true
		tokens = append(tokens, token)
	}
	return tokens
}

// toRemoteProfile converts a wire payload into the run snapshot
func (u *profileUser) toRemoteProfile() *RemoteProfile {
	return &RemoteProfile{
		UserID:           u.ID,
		Username:         strings.ToLower(u.Username),
		FullName:         u.FullName,
		Biography:        u.Biography,
		Followers:        u.EdgeFollowedBy.Count,
		Followees:        u.EdgeFollow.Count,
		MediaCount:       u.EdgeTimelineMedia.Count,
		IsPrivate:        u.IsPrivate,
		FollowedByViewer: u.FollowedByViewer,
		FollowsViewer:    u.FollowsViewer,
		BlockedByViewer:  u.BlockedByViewer,
		BusinessCategory: u.BusinessCategoryName,
		ExternalURL:      u.ExternalURL,
		ProfilePicURL:    u.ProfilePicURLHD,
		Hashtags:         ExtractHashtags(u.Biography),
		Mentions:         ExtractMentions(u.Biography),
	}
}
