// Package dispatch decides what to download for a freshly synced profile and
// drives the downloads. A private profile the viewer does not follow yields
// at most a new profile picture; everything else gets full content. Tagged
// posts are never fetched.
package dispatch

import (
	"context"
	"time"

	"instatrack/pkg/errors"
	"instatrack/pkg/instagram"
	"instatrack/pkg/logger"
	"instatrack/pkg/stamps"
	"instatrack/pkg/storage"
)

// ContentFetcher is the slice of the API client the dispatcher consumes
type ContentFetcher interface {
	FetchTimelineMedia(userID, after string) ([]instagram.MediaItem, instagram.PageInfo, error)
	FetchStories(userID string) ([]instagram.MediaItem, error)
	FetchReels(userID, after string) ([]instagram.MediaItem, instagram.PageInfo, error)
	FetchHighlights(userID string) ([]instagram.Highlight, map[string][]instagram.MediaItem, error)
	DownloadMedia(url string) ([]byte, error)
}

// Options selects the optional content sections. The timeline is always
// fetched for downloadable profiles.
type Options struct {
	Stories    bool
	Reels      bool
	Highlights bool

	// MaxTimelinePages caps timeline pagination; zero means no cap
	MaxTimelinePages int
}

// Result summarizes one dispatch
type Result struct {
	Username   string
	PicOnly    bool
	Downloaded int
	Skipped    int
	Failed     int
}

// Dispatcher downloads content for synced profiles
type Dispatcher struct {
	fetcher ContentFetcher
	store   *storage.Manager
	stamps  *stamps.Store
	options Options
	logger  logger.Logger
}

// NewDispatcher creates a dispatcher
func NewDispatcher(fetcher ContentFetcher, store *storage.Manager, marks *stamps.Store, options Options, log logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Dispatcher{
		fetcher: fetcher,
		store:   store,
		stamps:  marks,
		options: options,
		logger:  log,
	}
}

// Dispatch downloads the content a profile's state entitles the viewer to.
// Individual media failures are counted and skipped; a failure that makes the
// whole timeline unreadable is returned as a per-user error.
func (d *Dispatcher) Dispatch(ctx context.Context, profile *instagram.RemoteProfile) (*Result, error) {
	result := &Result{Username: profile.Username}

	restricted := profile.BlockedByViewer || (profile.IsPrivate && !profile.FollowedByViewer)
	if restricted {
		result.PicOnly = true
		d.logger.WithField("username", profile.Username).Debug("Profile content not visible, checking profile picture only")
		d.downloadProfilePicIfNew(profile, result)
		return result, nil
	}

	d.downloadProfilePicIfNew(profile, result)

	if err := d.downloadTimeline(ctx, profile, result); err != nil {
		return result, err
	}

	// The optional sections fail independently. A profile with a broken
	// highlights tray still gets its stories and reels.
	if d.options.Stories {
		d.downloadStories(ctx, profile, result)
	}
	if d.options.Reels {
		d.downloadReels(ctx, profile, result)
	}
	if d.options.Highlights {
		d.downloadHighlights(ctx, profile, result)
	}

	if removed, err := d.store.RemoveSidecarTexts(profile.Username); err != nil {
		d.logger.WithError(err).WithField("username", profile.Username).Warn("Failed to remove sidecar text files")
	} else if removed > 0 {
		d.logger.WithField("username", profile.Username).WithField("removed", removed).Debug("Removed sidecar text files")
	}

	d.logger.InfoWithFields("content dispatch finished", map[string]interface{}{
		"username":   profile.Username,
		"downloaded": result.Downloaded,
		"skipped":    result.Skipped,
		"failed":     result.Failed,
	})
	return result, nil
}

// downloadProfilePicIfNew fetches the profile picture only when its URL
// differs from the remembered one.
func (d *Dispatcher) downloadProfilePicIfNew(profile *instagram.RemoteProfile, result *Result) {
	if profile.ProfilePicURL == "" {
		return
	}

	marks, _ := d.stamps.Get(profile.Username)
	if marks.ProfilePicURL == profile.ProfilePicURL {
		result.Skipped++
		return
	}

	data, err := d.fetcher.DownloadMedia(profile.ProfilePicURL)
	if err != nil {
		d.logger.WithError(err).WithField("username", profile.Username).Warn("Failed to download profile picture")
		result.Failed++
		return
	}

	ext := storage.ExtForMedia(profile.ProfilePicURL, false)
	if _, created, err := d.store.SaveMedia(profile.Username, time.Now(), ext, data); err != nil {
		d.logger.WithError(err).WithField("username", profile.Username).Warn("Failed to store profile picture")
		result.Failed++
		return
	} else if created {
		result.Downloaded++
	} else {
		result.Skipped++
	}

	marks.ProfilePicURL = profile.ProfilePicURL
	d.stamps.Put(profile.Username, marks)
}

func (d *Dispatcher) downloadTimeline(ctx context.Context, profile *instagram.RemoteProfile, result *Result) error {
	after := ""
	pages := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		items, page, err := d.fetcher.FetchTimelineMedia(profile.UserID, after)
		if err != nil {
			return errors.Wrapf(errors.TypeOf(err), err, "timeline fetch failed for %s", profile.Username)
		}
		d.downloadItems(ctx, profile.Username, items, result)

		pages++
		if !page.HasNextPage || page.EndCursor == "" {
			return nil
		}
		if d.options.MaxTimelinePages > 0 && pages >= d.options.MaxTimelinePages {
			return nil
		}
		after = page.EndCursor
	}
}

func (d *Dispatcher) downloadStories(ctx context.Context, profile *instagram.RemoteProfile, result *Result) {
	items, err := d.fetcher.FetchStories(profile.UserID)
	if err != nil {
		d.logger.WithError(err).WithField("username", profile.Username).Warn("Skipping stories")
		return
	}
	d.downloadItems(ctx, profile.Username, items, result)
}

func (d *Dispatcher) downloadReels(ctx context.Context, profile *instagram.RemoteProfile, result *Result) {
	after := ""
	for {
		if ctx.Err() != nil {
			return
		}

		items, page, err := d.fetcher.FetchReels(profile.UserID, after)
		if err != nil {
			d.logger.WithError(err).WithField("username", profile.Username).Warn("Skipping reels")
			return
		}
		d.downloadItems(ctx, profile.Username, items, result)

		if !page.HasNextPage || page.EndCursor == "" {
			return
		}
		after = page.EndCursor
	}
}

func (d *Dispatcher) downloadHighlights(ctx context.Context, profile *instagram.RemoteProfile, result *Result) {
	highlights, itemsByID, err := d.fetcher.FetchHighlights(profile.UserID)
	if err != nil {
		d.logger.WithError(err).WithField("username", profile.Username).Warn("Skipping highlights")
		return
	}

	for _, highlight := range highlights {
		d.downloadItems(ctx, profile.Username, itemsByID[highlight.ID], result)
	}
}

// downloadItems fetches and stores a batch, isolating per-item failures
func (d *Dispatcher) downloadItems(ctx context.Context, username string, items []instagram.MediaItem, result *Result) {
	for _, item := range items {
		if ctx.Err() != nil {
			return
		}
		if item.URL == "" {
			result.Skipped++
			continue
		}

		ext := storage.ExtForMedia(item.URL, item.IsVideo)
		if d.store.Exists(username, item.TakenAt, ext) {
			result.Skipped++
			continue
		}

		kind := "image"
		if item.IsVideo {
			kind = "video"
		}

		data, err := d.fetcher.DownloadMedia(item.URL)
		if err != nil {
			logger.LogDownload(username, item.ID, kind, false, err)
			result.Failed++
			continue
		}

		if _, created, err := d.store.SaveMedia(username, item.TakenAt, ext, data); err != nil {
			logger.LogDownload(username, item.ID, kind, false, err)
			result.Failed++
		} else if created {
			logger.LogDownload(username, item.ID, kind, true, nil)
			result.Downloaded++
		} else {
			result.Skipped++
		}
	}
}
