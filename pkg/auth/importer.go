package auth

import (
	"instatrack/pkg/errors"
	"instatrack/pkg/instagram"
	"instatrack/pkg/logger"
)

// Importer authenticates a session from saved credentials. It is the
// fallback behind the browser cookie importer and satisfies the same
// contract: load cookies, verify the login, return the identity.
type Importer struct {
	manager  *Manager
	username string
	logger   logger.Logger
}

// NewImporter creates an importer for a saved account. An empty username
// selects the default account.
func NewImporter(manager *Manager, username string, log logger.Logger) *Importer {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Importer{manager: manager, username: username, logger: log}
}

// Import loads the saved session cookies and verifies them
func (i *Importer) Import(session *instagram.Session) (string, error) {
	var account *Account
	var err error
	if i.username == "" {
		account, err = i.manager.RetrieveDefault()
	} else {
		account, err = i.manager.Retrieve(i.username)
	}
	if err != nil {
		return "", errors.Wrap(errors.TypeAuth, err, "no saved credentials")
	}

	if err := session.SetCookies(map[string]string{
		"sessionid": account.SessionID,
		"csrftoken": account.CSRFToken,
	}); err != nil {
		return "", errors.Wrap(errors.TypeAuth, err, "failed to load saved cookies")
	}
	if account.UserAgent != "" {
		session.SetHeader("User-Agent", account.UserAgent)
	}

	identity, err := session.TestLogin()
	if err != nil {
		return "", errors.Wrap(errors.TypeAuth, err, "login verification failed")
	}
	if identity == "" {
		return "", errors.Newf(errors.TypeAuth, "saved session for %q is no longer valid", account.Username)
	}

	i.logger.WithField("username", identity).Info("Authenticated from saved credentials")
	return identity, nil
}
