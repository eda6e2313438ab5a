// Package scraper drives a synchronization run: it visits a roster of
// tracked usernames sequentially, refreshes each profile's stored snapshot,
// reclassifies its privacy state, and hands downloadable profiles to the
// dispatcher. A user that cannot be fetched is skipped; only authentication
// and configuration failures abort the run.
package scraper

import (
	"context"

	"instatrack/pkg/errors"
	"instatrack/pkg/instagram"
	"instatrack/pkg/logger"
	"instatrack/pkg/privacy"
	"instatrack/pkg/stamps"
)

// Summary is the outcome of one run
type Summary struct {
	Total       int
	Synced      int
	Skipped     int
	Failed      int
	Downloaded  int
	FailedUsers []string
	Transitions []privacy.Change
}

// Orchestrator runs the sync loop
type Orchestrator struct {
	fetcher     ProfileFetcher
	dispatcher  Dispatcher
	store       ProfileStore
	sets        *privacy.Sets
	stamps      *stamps.Store
	trackingDir string
	logger      logger.Logger
}

// NewOrchestrator creates an orchestrator. The tracking sets are derived
// from the store when available and fall back to the flat files in
// trackingDir otherwise.
func NewOrchestrator(fetcher ProfileFetcher, dispatcher Dispatcher, store ProfileStore, marks *stamps.Store, trackingDir string, log logger.Logger) (*Orchestrator, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	var sets *privacy.Sets
	var err error
	if store != nil {
		sets, err = store.TrackingSets(context.Background())
	}
	if store == nil || err != nil {
		if err != nil {
			log.WithError(err).Warn("Falling back to tracking set files")
		}
		sets, err = privacy.LoadSets(trackingDir)
		if err != nil {
			return nil, err
		}
	}

	return &Orchestrator{
		fetcher:     fetcher,
		dispatcher:  dispatcher,
		store:       store,
		sets:        sets,
		stamps:      marks,
		trackingDir: trackingDir,
		logger:      log,
	}, nil
}

// Sets exposes the live tracking sets for inspection
func (o *Orchestrator) Sets() *privacy.Sets {
	return o.sets
}

// Run visits every roster entry once. Per-user failures are recorded in the
// summary and the loop continues; a fatal error aborts immediately with the
// partial summary.
func (o *Orchestrator) Run(ctx context.Context, roster []string) (*Summary, error) {
	summary := &Summary{Total: len(roster)}

	if len(roster) == 0 {
		o.logger.Warn("Roster is empty, nothing to sync")
		return summary, nil
	}

	o.logger.WithField("users", len(roster)).Info("Starting sync run")

	for _, username := range roster {
		if err := ctx.Err(); err != nil {
			o.finalize(summary)
			return summary, err
		}

		if err := o.syncUser(ctx, username, summary); err != nil {
			if errors.IsFatal(err) {
				o.finalize(summary)
				return summary, err
			}
			summary.Failed++
			summary.FailedUsers = append(summary.FailedUsers, username)
			logger.LogProfileSync(username, false, err)
		}
	}

	o.finalize(summary)
	o.logger.InfoWithFields("sync run finished", map[string]interface{}{
		"total":       summary.Total,
		"synced":      summary.Synced,
		"skipped":     summary.Skipped,
		"failed":      summary.Failed,
		"downloaded":  summary.Downloaded,
		"transitions": len(summary.Transitions),
	})
	return summary, nil
}

func (o *Orchestrator) syncUser(ctx context.Context, username string, summary *Summary) error {
	profile, err := o.fetchProfile(username)
	if err != nil {
		if errors.IsFatal(err) {
			return err
		}
		// Deleted, renamed, or temporarily unreachable accounts are
		// routine; the run moves on.
		summary.Skipped++
		summary.FailedUsers = append(summary.FailedUsers, username)
		logger.LogProfileSync(username, false, err)
		return nil
	}

	if o.store != nil {
		if err := o.store.UpsertProfile(ctx, profile); err != nil {
			return err
		}
	}

	change := o.sets.Classify(profile.Username, profile.IsPrivate)
	if change.Transitioned() {
		summary.Transitions = append(summary.Transitions, change)
		logger.LogPrivacyTransition(change.Username, string(change.From), string(change.To))
	}

	result, err := o.dispatcher.Dispatch(ctx, profile)
	if err != nil {
		return err
	}

	summary.Synced++
	summary.Downloaded += result.Downloaded
	logger.LogProfileSync(username, true, nil)
	return nil
}

func (o *Orchestrator) fetchProfile(username string) (*instagram.RemoteProfile, error) {
	profile, err := o.fetcher.FetchProfile(username)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, errors.Newf(errors.TypeStructural, "empty profile payload for %q", username)
	}
	return profile, nil
}

// finalize persists everything that must survive the run: the tracking set
// files and the download stamps. Failures here are logged, not returned; the
// summary is already complete.
func (o *Orchestrator) finalize(summary *Summary) {
	if err := o.sets.Save(o.trackingDir); err != nil {
		o.logger.WithError(err).Error("Failed to save tracking sets")
	}
	if o.stamps != nil {
		if err := o.stamps.Save(); err != nil {
			o.logger.WithError(err).Error("Failed to save download stamps")
		}
	}
}
