// Package cookies imports an authenticated session from a local Firefox
// profile. The browser's cookies.sqlite is opened read-only, the rows scoped
// to the remote domain are loaded into the session's cookie jar, and the
// session is verified with a login round-trip.
package cookies

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	_ "modernc.org/sqlite"

	"instatrack/pkg/errors"
	"instatrack/pkg/instagram"
	"instatrack/pkg/logger"
)

const targetDomain = "instagram.com"

// cookieGlobs holds the per-OS location of the Firefox cookie database,
// relative to the user's home directory.
var cookieGlobs = map[string]string{
	"windows": "AppData/Roaming/Mozilla/Firefox/Profiles/*/cookies.sqlite",
	"darwin":  "Library/Application Support/Firefox/Profiles/*/cookies.sqlite",
	"linux":   ".mozilla/firefox/*/cookies.sqlite",
}

const fallbackGlob = ".mozilla/firefox/*/cookies.sqlite"

// Importer extracts session cookies from a Firefox profile
type Importer struct {
	// path overrides discovery when set
	path   string
	logger logger.Logger
}

// NewImporter creates an importer. An empty path enables platform discovery.
func NewImporter(path string, log logger.Logger) *Importer {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Importer{path: path, logger: log}
}

// FindCookieFile locates the Firefox cookie database for the current OS.
// The first glob match wins; multiple profiles are not disambiguated.
func FindCookieFile() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(errors.TypeConfig, err, "cannot resolve home directory")
	}

	pattern, ok := cookieGlobs[runtime.GOOS]
	if !ok {
		pattern = fallbackGlob
	}

	matches, err := filepath.Glob(filepath.Join(home, filepath.FromSlash(pattern)))
	if err != nil {
		return "", errors.Wrap(errors.TypeConfig, err, "cookie file glob failed")
	}
	if len(matches) == 0 {
		return "", errors.New(errors.TypeConfig, "no Firefox cookies.sqlite file found")
	}
	return matches[0], nil
}

// Import loads the browser's cookies for the remote domain into the session
// and verifies authentication. It returns the authenticated identity. Any
// failure here is fatal for the run: the process cannot proceed without an
// authenticated session.
func (i *Importer) Import(session *instagram.Session) (string, error) {
	cookieFile := i.path
	if cookieFile == "" {
		var err error
		cookieFile, err = FindCookieFile()
		if err != nil {
			return "", err
		}
	}

	i.logger.WithField("cookie_file", cookieFile).Info("Importing Firefox session cookies")

	pairs, err := readDomainCookies(cookieFile)
	if err != nil {
		return "", err
	}
	if len(pairs) == 0 {
		return "", errors.Newf(errors.TypeAuth, "no %s cookies found in %s", targetDomain, cookieFile)
	}

	if err := session.SetCookies(pairs); err != nil {
		return "", errors.Wrap(errors.TypeAuth, err, "failed to load cookies into session")
	}

	identity, err := session.TestLogin()
	if err != nil {
		return "", errors.Wrap(errors.TypeAuth, err, "login verification failed")
	}
	if identity == "" {
		return "", errors.New(errors.TypeAuth, "not logged in; is Firefox logged in to the target service?")
	}

	i.logger.WithField("username", identity).Info("Imported session cookies")
	return identity, nil
}

// readDomainCookies queries the cookie database read-only. Older schema
// versions lack the baseDomain column, so a host suffix match is used as a
// fallback shape.
func readDomainCookies(path string) (map[string]string, error) {
	dsn := fmt.Sprintf("file:%s?immutable=1&mode=ro", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(errors.TypeAuth, err, "failed to open cookie database")
	}
	defer db.Close()

	rows, err := db.Query(
		"SELECT name, value FROM moz_cookies WHERE baseDomain = ?", targetDomain)
	if err != nil {
		rows, err = db.Query(
			"SELECT name, value FROM moz_cookies WHERE host LIKE ?", "%"+targetDomain)
		if err != nil {
			return nil, errors.Wrap(errors.TypeAuth, err, "cookie query failed")
		}
	}
	defer rows.Close()

	pairs := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, errors.Wrap(errors.TypeAuth, err, "cookie row scan failed")
		}
		pairs[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.TypeAuth, err, "cookie rows iteration failed")
	}
	return pairs, nil
}
