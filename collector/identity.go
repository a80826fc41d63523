package collector

import (
	"net/url"
	"regexp"
	"strings"
)

var longFormID = regexp.MustCompile(`/video/(\d+)`)
var shortCode = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// ExtractClipID derives the canonical clip identifier from a share URL.
// Two shapes are recognised:
//
//   - short links (host starting "vt."), where the first path segment is
//     the identifier: https://vt.example.com/abc123/ -> "abc123"
//   - long-form links carrying /video/<digits>: .../video/771122334455
//     -> "771122334455"
//
// Anything else returns "", which callers treat as an unprocessable unit.
func ExtractClipID(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	if m := longFormID.FindStringSubmatch(raw); m != nil {
		return m[1]
	}

	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if !strings.HasPrefix(u.Host, "vt.") {
		return ""
	}
	seg := strings.Trim(u.Path, "/")
	if i := strings.IndexByte(seg, '/'); i >= 0 {
		seg = seg[:i]
	}
	if !shortCode.MatchString(seg) {
		return ""
	}
	return seg
}
