package logger

import (
	"context"

	"github.com/rs/zerolog"
)

// LogProfileSync logs the outcome of one roster entry
func LogProfileSync(username string, success bool, err error) {
	fields := map[string]interface{}{
		"username": username,
		"success":  success,
	}

	l := GetLogger().WithFields(fields)

	if err != nil {
		l.WithError(err).Warn("Profile sync skipped")
	} else {
		l.Info("Profile synced")
	}
}

// LogPrivacyTransition logs a public/private state change for a tracked user
func LogPrivacyTransition(username, from, to string) {
	GetLogger().WithFields(map[string]interface{}{
		"username": username,
		"from":     from,
		"to":       to,
	}).Info("Privacy status changed")
}

// LogDownload logs media download operations
func LogDownload(username, mediaID, mediaType string, success bool, err error) {
	fields := map[string]interface{}{
		"username":   username,
		"media_id":   mediaID,
		"media_type": mediaType,
		"success":    success,
	}

	l := GetLogger().WithFields(fields)

	if err != nil {
		l.WithError(err).Error("Download failed")
	} else if success {
		l.Info("Download completed")
	} else {
		l.Warn("Download skipped")
	}
}

// LogRetentionSummary logs the outcome of a retention sweep
func LogRetentionSummary(sweep string, total, removed, failed int) {
	GetLogger().WithFields(map[string]interface{}{
		"sweep":   sweep,
		"total":   total,
		"removed": removed,
		"failed":  failed,
	}).Info("Retention sweep completed")
}

// LogRateLimit logs rate limiting events
func LogRateLimit(endpoint string, retryAfter int) {
	GetLogger().WithFields(map[string]interface{}{
		"endpoint":    endpoint,
		"retry_after": retryAfter,
		"action":      "rate_limited",
	}).Warn("Rate limit reached, backing off")
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

// nopLogger is a logger that does nothing (useful for testing)
type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) Fatal(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) FatalWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger                               { return nil }
