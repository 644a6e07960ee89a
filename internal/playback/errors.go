// Package playback decides how the engine reacts to media playback
// failures: error classification, per-item retry budgets with
// exponential backoff and a circuit breaker that pauses auto-advance
// after an error cascade.
package playback

import "strings"

// ErrorClass groups playback failures by how they should be handled.
type ErrorClass string

const (
	// ClassNetwork covers transient connectivity failures, worth retrying.
	ClassNetwork ErrorClass = "network"
	// ClassMediaNotFound covers missing or removed media, not retryable.
	ClassMediaNotFound ErrorClass = "media_not_found"
	// ClassAuthentication covers access failures needing user action.
	ClassAuthentication ErrorClass = "authentication"
	// ClassSystem covers player-side decode/format failures.
	ClassSystem ErrorClass = "system"
	// ClassUnknown is everything the patterns do not match.
	ClassUnknown ErrorClass = "unknown"
)

// Message patterns per class, checked in order of specificity.
var (
	networkPatterns = []string{
		"network", "connection", "timeout", "dns", "resolve",
		"unreachable", "temporary failure", "socket error",
		"ssl error", "certificate", "handshake failed",
	}
	notFoundPatterns = []string{
		"not found", "404", "file does not exist", "no such file",
		"unavailable", "removed", "deleted", "private video",
		"video unavailable", "this video is not available",
	}
	authPatterns = []string{
		"authentication", "unauthorized", "401", "403", "forbidden",
		"access denied", "login required", "permission denied",
		"members only", "private",
	}
	systemPatterns = []string{
		"format not supported", "codec", "decoder", "demuxer",
		"no video", "no audio", "invalid data", "corrupted",
	}
)

// Classify maps a player error message to an error class. The optional
// online probe is consulted only when nothing matches and the URL is
// remote, so an unplugged cable classifies as a network failure rather
// than unknown.
func Classify(message, url string, online func() bool) ErrorClass {
	lower := strings.ToLower(message)

	for _, p := range networkPatterns {
		if strings.Contains(lower, p) {
			return ClassNetwork
		}
	}
	for _, p := range notFoundPatterns {
		if strings.Contains(lower, p) {
			return ClassMediaNotFound
		}
	}
	for _, p := range authPatterns {
		if strings.Contains(lower, p) {
			return ClassAuthentication
		}
	}
	for _, p := range systemPatterns {
		if strings.Contains(lower, p) {
			return ClassSystem
		}
	}

	remote := strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
	if remote && online != nil && !online() {
		return ClassNetwork
	}
	return ClassUnknown
}
