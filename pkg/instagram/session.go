package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"instatrack/pkg/config"
	"instatrack/pkg/errors"
	"instatrack/pkg/logger"
	"instatrack/pkg/ratelimit"
	"instatrack/pkg/retry"
)

// Session is the single authenticated handle used to issue requests against
// the remote service. It is shared by every component of a run, mutated in
// place by the credential importer, and released at the end of the run.
// It is not safe for concurrent use; the run loop is strictly sequential.
type Session struct {
	httpClient *http.Client
	jar        *cookiejar.Jar
	headers    map[string]string
	baseURL    string
	username   string
	limiter    ratelimit.Limiter
	retryCfg   *retry.Config
	logger     logger.Logger
}

// NewSession creates an unauthenticated session with an empty cookie jar
func NewSession(cfg *config.Config, log logger.Logger) (*Session, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	retryCfg := &retry.Config{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Backoff: &retry.ExponentialBackoff{
			BaseDelay:    cfg.Retry.InitialDelay,
			MaxDelay:     cfg.Retry.MaxDelay,
			Multiplier:   cfg.Retry.Multiplier,
			JitterFactor: 0.1,
		},
		RetryIf: retry.DefaultRetryIf,
		Context: context.Background(),
		Logger:  log,
	}

	return &Session{
		httpClient: &http.Client{
			Timeout: cfg.Instagram.RequestTimeout,
			Jar:     jar,
		},
		jar: jar,
		headers: map[string]string{
			"User-Agent":      cfg.Instagram.UserAgent,
			"Accept":          "*/*",
			"Accept-Language": "en-US,en;q=0.9",
			"X-IG-App-ID":     "936619743392459",
		},
		baseURL:  BaseURL,
		limiter:  ratelimit.NewTokenBucket(cfg.RateLimit.RequestsPerMinute, time.Minute),
		retryCfg: retryCfg,
		logger:   log,
	}, nil
}

// SetBaseURL overrides the remote base URL. Used by tests.
func (s *Session) SetBaseURL(base string) {
	s.baseURL = base
}

// SetHeader sets a custom header sent with every request
func (s *Session) SetHeader(key, value string) {
	s.headers[key] = value
}

// SetCookies loads name/value pairs into the session's cookie jar, scoped to
// the remote base URL. A csrftoken cookie is mirrored into the request
// headers, which the remote service requires.
func (s *Session) SetCookies(pairs map[string]string) error {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}

	cookies := make([]*http.Cookie, 0, len(pairs))
	for name, value := range pairs {
		cookies = append(cookies, &http.Cookie{Name: name, Value: value, Path: "/"})
		if name == "csrftoken" {
			s.headers["X-CSRFToken"] = value
		}
	}
	s.jar.SetCookies(u, cookies)
	return nil
}

// Username returns the authenticated identity, or "" before import
func (s *Session) Username() string {
	return s.username
}

// TestLogin performs a login-verification round-trip and returns the
// authenticated identity. An anonymous session yields an empty string
// without an error; network failures are returned as errors.
func (s *Session) TestLogin() (string, error) {
	var result currentUserResponse
	err := s.GetJSON(CurrentUserEndpoint, &result)
	if err != nil {
		switch errors.TypeOf(err) {
		case errors.TypeAuth, errors.TypeNotFound:
			return "", nil
		}
		return "", err
	}

	s.username = result.User.Username
	return s.username, nil
}

// Close releases the session's network resources. The session must not be
// used afterwards.
func (s *Session) Close() {
	s.httpClient.CloseIdleConnections()
	s.username = ""
}

// GetJSON performs a rate-limited GET against a path relative to the base
// URL and decodes the JSON response into target.
func (s *Session) GetJSON(path string, target interface{}) error {
	body, _, err := s.get(path)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, target); err != nil {
		preview := string(body)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		s.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"path":         path,
			"error":        err.Error(),
			"body_preview": preview,
		})
		return errors.Wrap(errors.TypeStructural, err, "failed to parse JSON response")
	}
	return nil
}

// Download fetches raw bytes from an absolute media URL
func (s *Session) Download(mediaURL string) ([]byte, error) {
	body, _, err := s.getAbsolute(mediaURL)
	return body, err
}

func (s *Session) get(path string) ([]byte, int, error) {
	return s.getAbsolute(s.baseURL + path)
}

func (s *Session) getAbsolute(fullURL string) ([]byte, int, error) {
	var body []byte
	var status int

	op := func() error {
		s.limiter.Wait()

		req, err := http.NewRequest(http.MethodGet, fullURL, nil)
		if err != nil {
			return errors.Wrap(errors.TypeUnknown, err, "failed to create request")
		}
		for key, value := range s.headers {
			req.Header.Set(key, value)
		}

		start := time.Now()
		resp, err := s.httpClient.Do(req)
		duration := time.Since(start)
		if err != nil {
			s.logger.WarnWithFields("HTTP request failed", map[string]interface{}{
				"url":      fullURL,
				"error":    err.Error(),
				"duration": duration,
			})
			return errors.Wrap(errors.TypeNetwork, err, "network error")
		}
		defer resp.Body.Close()

		s.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
			"url":      fullURL,
			"status":   resp.StatusCode,
			"duration": duration,
		})

		status = resp.StatusCode
		if err := checkResponseStatus(resp.StatusCode); err != nil {
			if resp.StatusCode == http.StatusTooManyRequests {
				retryAfter := 0
				fmt.Sscanf(resp.Header.Get("Retry-After"), "%d", &retryAfter)
				logger.LogRateLimit(fullURL, retryAfter)
				s.limiter.Reset()
				time.Sleep(ratelimit.CooldownJitter(time.Duration(retryAfter) * time.Second))
			}
			return err
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return errors.Wrap(errors.TypeNetwork, err, "failed to read response body")
		}
		return nil
	}

	if err := retry.Do(op, s.retryCfg); err != nil {
		return nil, status, err
	}
	return body, status, nil
}

// checkResponseStatus maps an HTTP status to the error taxonomy
func checkResponseStatus(status int) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &errors.Error{Type: errors.TypeAuth, Message: "authentication required", Code: status}
	case status == http.StatusNotFound:
		return &errors.Error{Type: errors.TypeNotFound, Message: "resource not found", Code: status}
	case status == http.StatusTooManyRequests:
		return &errors.Error{Type: errors.TypeRateLimit, Message: "rate limit exceeded", Code: status}
	case status >= 500:
		return &errors.Error{Type: errors.TypeServerError, Message: "server error", Code: status}
	case status >= 400:
		return &errors.Error{Type: errors.TypeUnknown, Message: fmt.Sprintf("unexpected status code: %d", status), Code: status}
	default:
		return nil
	}
}
