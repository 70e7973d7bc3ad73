package fetch

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/user/listing-crawler/internal/entity"
)

var challengeMarkers = [][]byte{[]byte("captcha"), []byte("datadome")}

// IsChallenge reports whether resp is a bot challenge rather than real content:
// a status >= 400, an empty body, a known marker in the body or a captcha redirect.
func IsChallenge(resp *entity.FetchResponse) bool {
	if IsChallengeURL(resp) {
		return true
	}
	body := bytes.ToLower(resp.Body)
	for _, marker := range challengeMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	return false
}

// IsChallengeURL is IsChallenge without the body markers, for HTML pages that embed
// captcha widgets on legitimate content.
func IsChallengeURL(resp *entity.FetchResponse) bool {
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return true
	}
	return IsCaptchaRedirect(resp)
}

// IsCaptchaRedirect only looks at the status and the final URL. Endpoints that
// legitimately answer with an empty body use it.
func IsCaptchaRedirect(resp *entity.FetchResponse) bool {
	if resp.StatusCode >= 400 {
		return true
	}
	if resp.FinalURL != "" {
		if u, err := url.Parse(resp.FinalURL); err == nil && strings.Contains(strings.ToLower(u.Path), "captcha") {
			return true
		}
	}
	return false
}
