package fetch

import (
	"fmt"
	"math/rand"
	"net/http"
	"regexp"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
)

// Mirrors under load answer HTML requests with a "temporarily unavailable"
// page guarded by a session token. The token shows up either in a response
// header or in an inline script that sets it as a cookie.
var (
	tokenHeaderNames  = []string{"X-Session-Token", "X-Guest-Token"}
	cookieTokenRegex  = regexp.MustCompile(`document\.cookie\s*=\s*"techaro\.lol-session=([^";]+)`)
	scriptTokenRegex  = regexp.MustCompile(`name="session-token"\s+(?:value|content)="([^"]+)"`)
	challengeStatuses = map[int]bool{
		http.StatusTooManyRequests:    true,
		http.StatusServiceUnavailable: true,
		http.StatusForbidden:          true,
	}
)

const (
	sessionCookieName  = "mirror_session"
	challengeAttempts  = 3
	challengeBaseDelay = 2 * time.Second
)

// isChallenge reports whether a response looks like the anti-bot
// interstitial rather than a real error
func isChallenge(status int) bool {
	return challengeStatuses[status]
}

// tokenFromResponse recovers a session token from a challenge response.
// Header first, then the embedded token-setting patterns in the body, then
// a randomly generated placeholder; some mirrors accept any token as long
// as one is present.
func tokenFromResponse(resp *http.Response, body []byte) string {
	for _, name := range tokenHeaderNames {
		if token := resp.Header.Get(name); token != "" {
			return token
		}
	}

	if m := cookieTokenRegex.FindSubmatch(body); m != nil {
		return string(m[1])
	}
	if m := scriptTokenRegex.FindSubmatch(body); m != nil {
		return string(m[1])
	}

	placeholder := fmt.Sprintf("%016x", rand.Uint64())
	log.WithFields(log.Fields{
		"token": placeholder,
	}).Debug("No session token in challenge response, using placeholder")
	return placeholder
}

// linearBackOff implements backoff.BackOff with linearly growing delays:
// step, 2*step, 3*step. The library only ships constant and exponential
// policies.
type linearBackOff struct {
	step    time.Duration
	attempt int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return time.Duration(b.attempt) * b.step
}

func (b *linearBackOff) Reset() {
	b.attempt = 0
}

// challengeBackOff returns the bounded linear retry policy for challenged
// pages
func challengeBackOff() backoff.BackOff {
	return backoff.WithMaxRetries(&linearBackOff{step: challengeBaseDelay}, challengeAttempts-1)
}
