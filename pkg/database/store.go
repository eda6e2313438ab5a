// Package database persists profile snapshots and their extracted biography
// tokens in a local SQLite file. It is the durable record behind the tracking
// sets; the flat JSON lists are a fallback derived from it.
package database

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"instatrack/pkg/errors"
	"instatrack/pkg/instagram"
	"instatrack/pkg/logger"
	"instatrack/pkg/privacy"
)

// Profile is a stored profile record. LastSyncedAt stays zero until the
// first successful sync or an explicit privacy override; until then the
// privacy flag is unclassified.
type Profile struct {
	ID               int64
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
	FirstSeenAt      time.Time
	LastSyncedAt     time.Time
}

// Store is the SQLite-backed profile store
type Store struct {
	db     *sql.DB
	logger logger.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS profiles (
	id                 INTEGER PRIMARY KEY,
	user_id            TEXT NOT NULL DEFAULT '',
	username           TEXT NOT NULL UNIQUE,
	full_name          TEXT NOT NULL DEFAULT '',
	biography          TEXT NOT NULL DEFAULT '',
	followers          INTEGER NOT NULL DEFAULT 0,
	followees          INTEGER NOT NULL DEFAULT 0,
	media_count        INTEGER NOT NULL DEFAULT 0,
	is_private         INTEGER NOT NULL DEFAULT 0,
	followed_by_viewer INTEGER NOT NULL DEFAULT 0,
	follows_viewer     INTEGER NOT NULL DEFAULT 0,
	blocked_by_viewer  INTEGER NOT NULL DEFAULT 0,
	business_category  TEXT NOT NULL DEFAULT '',
	external_url       TEXT NOT NULL DEFAULT '',
	profile_pic_url    TEXT NOT NULL DEFAULT '',
	first_seen_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	last_synced_at     TIMESTAMP
);

CREATE TABLE IF NOT EXISTS hashtags (
	id   INTEGER PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS mentions (
	id   INTEGER PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS profile_hashtags (
	profile_id INTEGER NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
	hashtag_id INTEGER NOT NULL REFERENCES hashtags(id) ON DELETE CASCADE,
	PRIMARY KEY (profile_id, hashtag_id)
);

CREATE TABLE IF NOT EXISTS profile_mentions (
	profile_id INTEGER NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
	mention_id INTEGER NOT NULL REFERENCES mentions(id) ON DELETE CASCADE,
	PRIMARY KEY (profile_id, mention_id)
);

CREATE INDEX IF NOT EXISTS idx_profiles_is_private ON profiles(is_private);
`

// Open opens (creating if needed) the profile store at path
func Open(path string, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(errors.TypePersistence, err, "failed to open database")
	}

	// The driver serializes access per connection; a single connection
	// avoids SQLITE_BUSY between the run loop and the CLI subcommands.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrap(errors.TypePersistence, err, "failed to configure database")
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(errors.TypePersistence, err, "failed to migrate schema")
	}

	log.WithField("path", path).Debug("Profile store opened")
	return &Store{db: db, logger: log}, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// AddUser registers a username for tracking. Adding an already tracked user
// is a no-op; the return value reports whether a row was created.
func (s *Store) AddUser(ctx context.Context, username string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		"INSERT INTO profiles (username) VALUES (?) ON CONFLICT(username) DO NOTHING",
		strings.ToLower(username))
	if err != nil {
		return false, errors.Wrap(errors.TypePersistence, err, "failed to add user")
	}
	added, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(errors.TypePersistence, err, "failed to add user")
	}
	return added > 0, nil
}

// RemoveUser deletes a tracked user and all its associations
func (s *Store) RemoveUser(ctx context.Context, username string) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM profiles WHERE username = ?", strings.ToLower(username))
	if err != nil {
		return errors.Wrap(errors.TypePersistence, err, "failed to remove user")
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(errors.TypePersistence, err, "failed to remove user")
	}
	if removed == 0 {
		return errors.Newf(errors.TypeNotFound, "user %q is not tracked", username)
	}
	return nil
}

// SetPrivacy overrides the stored privacy flag for a user. The override
// counts as a classification, so a never-synced user becomes visible to the
// tracking sets.
func (s *Store) SetPrivacy(ctx context.Context, username string, isPrivate bool) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE profiles SET is_private = ?, last_synced_at = CURRENT_TIMESTAMP WHERE username = ?",
		boolToInt(isPrivate), strings.ToLower(username))
	if err != nil {
		return errors.Wrap(errors.TypePersistence, err, "failed to update privacy")
	}
	updated, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(errors.TypePersistence, err, "failed to update privacy")
	}
	if updated == 0 {
		return errors.Newf(errors.TypeNotFound, "user %q is not tracked", username)
	}
	return nil
}

// UpsertProfile stores a fresh snapshot. The row is created or updated by
// username, and the hashtag and mention associations are replaced wholesale
// so removed tokens disappear from the record.
func (s *Store) UpsertProfile(ctx context.Context, remote *instagram.RemoteProfile) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(errors.TypePersistence, err, "failed to begin transaction")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO profiles (
			user_id, username, full_name, biography,
			followers, followees, media_count,
			is_private, followed_by_viewer, follows_viewer, blocked_by_viewer,
			business_category, external_url, profile_pic_url, last_synced_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(username) DO UPDATE SET
			user_id            = excluded.user_id,
			full_name          = excluded.full_name,
			biography          = excluded.biography,
			followers          = excluded.followers,
			followees          = excluded.followees,
			media_count        = excluded.media_count,
			is_private         = excluded.is_private,
			followed_by_viewer = excluded.followed_by_viewer,
			follows_viewer     = excluded.follows_viewer,
			blocked_by_viewer  = excluded.blocked_by_viewer,
			business_category  = excluded.business_category,
			external_url       = excluded.external_url,
			profile_pic_url    = excluded.profile_pic_url,
			last_synced_at     = CURRENT_TIMESTAMP`,
		remote.UserID, remote.Username, remote.FullName, remote.Biography,
		remote.Followers, remote.Followees, remote.MediaCount,
		boolToInt(remote.IsPrivate), boolToInt(remote.FollowedByViewer),
		boolToInt(remote.FollowsViewer), boolToInt(remote.BlockedByViewer),
		remote.BusinessCategory, remote.ExternalURL, remote.ProfilePicURL)
	if err != nil {
		return errors.Wrap(errors.TypePersistence, err, "failed to upsert profile")
	}

	var profileID int64
	err = tx.QueryRowContext(ctx,
		"SELECT id FROM profiles WHERE username = ?", remote.Username).Scan(&profileID)
	if err != nil {
		return errors.Wrap(errors.TypePersistence, err, "failed to resolve profile id")
	}

	if err := replaceTokens(ctx, tx, profileID, "hashtags", "profile_hashtags", "hashtag_id", remote.Hashtags); err != nil {
		return err
	}
	if err := replaceTokens(ctx, tx, profileID, "mentions", "profile_mentions", "mention_id", remote.Mentions); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.TypePersistence, err, "failed to commit profile upsert")
	}
	return nil
}

// replaceTokens rebuilds one association table for a profile. Token rows are
// shared across profiles and inserted idempotently.
func replaceTokens(ctx context.Context, tx *sql.Tx, profileID int64, tokenTable, joinTable, joinColumn string, tokens []string) error {
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM "+joinTable+" WHERE profile_id = ?", profileID); err != nil {
		return errors.Wrapf(errors.TypePersistence, err, "failed to clear %s", joinTable)
	}

	for _, token := range tokens {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO "+tokenTable+" (name) VALUES (?) ON CONFLICT(name) DO NOTHING", token); err != nil {
			return errors.Wrapf(errors.TypePersistence, err, "failed to insert into %s", tokenTable)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO "+joinTable+" (profile_id, "+joinColumn+") "+
				"SELECT ?, id FROM "+tokenTable+" WHERE name = ?", profileID, token); err != nil {
			return errors.Wrapf(errors.TypePersistence, err, "failed to link %s", tokenTable)
		}
	}
	return nil
}

const profileColumns = `
	id, user_id, username, full_name, biography,
	followers, followees, media_count,
	is_private, followed_by_viewer, follows_viewer, blocked_by_viewer,
	business_category, external_url, profile_pic_url,
	first_seen_at, last_synced_at`

// GetProfile loads one profile with its tokens
func (s *Store) GetProfile(ctx context.Context, username string) (*Profile, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT"+profileColumns+" FROM profiles WHERE username = ?",
		strings.ToLower(username))

	profile, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, errors.Newf(errors.TypeNotFound, "user %q is not tracked", username)
	}
	if err != nil {
		return nil, errors.Wrap(errors.TypePersistence, err, "failed to load profile")
	}

	profile.Hashtags, err = s.tokensFor(ctx, profile.ID, "hashtags", "profile_hashtags", "hashtag_id")
	if err != nil {
		return nil, err
	}
	profile.Mentions, err = s.tokensFor(ctx, profile.ID, "mentions", "profile_mentions", "mention_id")
	if err != nil {
		return nil, err
	}
	return profile, nil
}

func (s *Store) tokensFor(ctx context.Context, profileID int64, tokenTable, joinTable, joinColumn string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT t.name FROM "+tokenTable+" t "+
			"JOIN "+joinTable+" j ON j."+joinColumn+" = t.id "+
			"WHERE j.profile_id = ? ORDER BY t.name", profileID)
	if err != nil {
		return nil, errors.Wrapf(errors.TypePersistence, err, "failed to load %s", tokenTable)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrapf(errors.TypePersistence, err, "failed to scan %s", tokenTable)
		}
		tokens = append(tokens, name)
	}
	return tokens, rows.Err()
}

// ListProfiles returns the stored profiles matching a privacy filter,
// ordered by username. Tokens are not loaded.
func (s *Store) ListProfiles(ctx context.Context, filter privacy.Filter) ([]Profile, error) {
	query := "SELECT" + profileColumns + " FROM profiles"
	switch filter {
	case privacy.FilterPublic:
		query += " WHERE is_private = 0"
	case privacy.FilterPrivate:
		query += " WHERE is_private = 1"
	}
	query += " ORDER BY username"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(errors.TypePersistence, err, "failed to list profiles")
	}
	defer rows.Close()

	var profiles []Profile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, errors.Wrap(errors.TypePersistence, err, "failed to scan profile")
		}
		profiles = append(profiles, *profile)
	}
	return profiles, rows.Err()
}

// Usernames returns the tracked usernames matching a privacy filter, sorted
func (s *Store) Usernames(ctx context.Context, filter privacy.Filter) ([]string, error) {
	profiles, err := s.ListProfiles(ctx, filter)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(profiles))
	for _, profile := range profiles {
		names = append(names, profile.Username)
	}
	return names, nil
}

// TrackingSets derives the in-memory tracking sets from the stored rows.
// A user that was added but never synced has no observed privacy state yet
// and belongs to neither set, so the first sync classifies it without
// reporting a transition.
func (s *Store) TrackingSets(ctx context.Context) (*privacy.Sets, error) {
	profiles, err := s.ListProfiles(ctx, privacy.FilterAll)
	if err != nil {
		return nil, err
	}

	sets := privacy.NewSets()
	for _, profile := range profiles {
		if profile.LastSyncedAt.IsZero() {
			continue
		}
		if profile.IsPrivate {
			sets.Private[profile.Username] = true
		} else {
			sets.Public[profile.Username] = true
		}
	}
	return sets, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProfile(row rowScanner) (*Profile, error) {
	var p Profile
	var isPrivate, followedBy, follows, blocked int
	var lastSynced sql.NullTime
	err := row.Scan(
		&p.ID, &p.UserID, &p.Username, &p.FullName, &p.Biography,
		&p.Followers, &p.Followees, &p.MediaCount,
		&isPrivate, &followedBy, &follows, &blocked,
		&p.BusinessCategory, &p.ExternalURL, &p.ProfilePicURL,
		&p.FirstSeenAt, &lastSynced)
	if err != nil {
		return nil, err
	}
	p.IsPrivate = isPrivate != 0
	p.FollowedByViewer = followedBy != 0
	p.FollowsViewer = follows != 0
	p.BlockedByViewer = blocked != 0
	if lastSynced.Valid {
		p.LastSyncedAt = lastSynced.Time
	}
	return &p, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
