package instagram

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	// BaseURL is the base URL for Instagram
	BaseURL = "https://www.instagram.com"

	// ProfileEndpoint is the endpoint pattern for user profiles
	ProfileEndpoint = "/api/v1/users/web_profile_info/"

	// CurrentUserEndpoint reports the identity of the authenticated session
	CurrentUserEndpoint = "/api/v1/accounts/current_user/"

	// MediaEndpoint is the endpoint pattern for user media
	MediaEndpoint = "/graphql/query/"

	// StoriesEndpoint is the endpoint pattern for active stories
	StoriesEndpoint = "/api/v1/feed/reels_media/"

	// ReelsEndpoint is the endpoint pattern for a user's reels
	ReelsEndpoint = "/api/v1/clips/user/"

	// HighlightsEndpoint is the endpoint pattern for highlight reels
	HighlightsEndpoint = "/api/v1/highlights/%s/highlights_tray/"

	// MediaQueryHash is the query hash for fetching user media
	MediaQueryHash = "e769aa130647d2354c40ea6a439bfc08"

	// DefaultMediaLimit is the default number of media items to fetch per request
	DefaultMediaLimit = 50
)

// profilePath builds the relative URL for fetching a user's profile
func profilePath(username string) string {
	params := url.Values{}
	params.Set("username", username)
	return fmt.Sprintf("%s?%s", ProfileEndpoint, params.Encode())
}

// mediaPath builds the relative URL for fetching a page of a user's media
func mediaPath(userID, after string) string {
	params := url.Values{}
	params.Set("query_hash", MediaQueryHash)
	params.Set("variables", fmt.Sprintf(`{"id":%q,"first":%d,"after":%q}`, userID, DefaultMediaLimit, after))
	return fmt.Sprintf("%s?%s", MediaEndpoint, params.Encode())
}

// storiesPath builds the relative URL for fetching a user's active stories
func storiesPath(userID string) string {
	params := url.Values{}
	params.Set("reel_ids", userID)
	return fmt.Sprintf("%s?%s", StoriesEndpoint, params.Encode())
}

// reelsPath builds the relative URL for fetching a page of a user's reels
func reelsPath(userID, after string) string {
	params := url.Values{}
	params.Set("target_user_id", userID)
	if after != "" {
		params.Set("max_id", after)
	}
	return fmt.Sprintf("%s?%s", ReelsEndpoint, params.Encode())
}

// highlightsPath builds the relative URL for a user's highlight tray
func highlightsPath(userID string) string {
	return fmt.Sprintf(HighlightsEndpoint, userID)
}

// IsValidUsername checks if a username is valid according to Instagram rules
func IsValidUsername(username string) bool {
	if username == "" || len(username) > 30 {
		return false
	}

	for _, char := range username {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '.' || char == '_') {
			return false
		}
	}

	return true
}

// SanitizeUsername normalizes user input into a bare lowercase username
func SanitizeUsername(username string) string {
	if username == "" {
		return ""
	}

	if username[0] == '@' {
		username = username[1:]
	}

	for len(username) > 0 && (username[len(username)-1] == '/' || username[len(username)-1] == ' ') {
		username = username[:len(username)-1]
	}

	return strings.ToLower(username)
}
