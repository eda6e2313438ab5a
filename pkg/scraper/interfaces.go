package scraper

import (
	"context"

	"instatrack/pkg/dispatch"
	"instatrack/pkg/instagram"
	"instatrack/pkg/privacy"
)

// ProfileFetcher fetches the current snapshot of one profile
type ProfileFetcher interface {
	FetchProfile(username string) (*instagram.RemoteProfile, error)
}

// Dispatcher downloads the content a synced profile entitles the viewer to
type Dispatcher interface {
	Dispatch(ctx context.Context, profile *instagram.RemoteProfile) (*dispatch.Result, error)
}

// ProfileStore persists profile snapshots between runs
type ProfileStore interface {
	UpsertProfile(ctx context.Context, profile *instagram.RemoteProfile) error
	TrackingSets(ctx context.Context) (*privacy.Sets, error)
}

// RosterSource produces the usernames a run should visit
type RosterSource interface {
	Usernames(ctx context.Context, filter privacy.Filter) ([]string, error)
}

// StaticRoster is a fixed username list satisfying RosterSource
type StaticRoster []string

func (r StaticRoster) Usernames(ctx context.Context, filter privacy.Filter) ([]string, error) {
	return r, nil
}
