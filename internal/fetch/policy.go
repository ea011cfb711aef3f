package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/arkforge/codegen-rag/internal/robots"
)

// RobotsDeniedError marks a fetch refused because robots.txt disallows the
// path for our user agent.
type RobotsDeniedError struct {
	URL    string
	Reason string
}

func (e *RobotsDeniedError) Error() string {
	return fmt.Sprintf("robots disallow: %s (%s)", e.URL, e.Reason)
}

// IsRobotsDenied reports whether err is a robots denial, returning the reason.
func IsRobotsDenied(err error) (string, bool) {
	var rd *RobotsDeniedError
	if errors.As(err, &rd) {
		return rd.Reason, true
	}
	return "", false
}

// ReuseDeniedError marks a fetched document whose publisher opted out of
// AI/TDM reuse via X-Robots-Tag (noai/notrain).
type ReuseDeniedError struct {
	URL    string
	Reason string
}

func (e *ReuseDeniedError) Error() string {
	return fmt.Sprintf("reuse denied: %s (%s)", e.URL, e.Reason)
}

// IsReuseDenied reports whether err is a reuse opt-out denial, returning the
// reason.
func IsReuseDenied(err error) (string, bool) {
	var rd *ReuseDeniedError
	if errors.As(err, &rd) {
		return rd.Reason, true
	}
	return "", false
}

// checkPolicies enforces the pre-request policies: private-host blocking and
// robots.txt disallow rules.
func (c *Client) checkPolicies(ctx context.Context, u *url.URL) error {
	if u == nil {
		return errors.New("fetch: nil url")
	}
	if !c.AllowPrivateHosts && robots.IsPrivateHost(u.Hostname()) {
		return fmt.Errorf("fetch: private host not allowed: %s", u.Hostname())
	}
	if c.Robots != nil {
		robotsURL := u.Scheme + "://" + u.Host + "/robots.txt"
		rules, _, err := c.Robots.Get(ctx, robotsURL)
		if err != nil {
			// An unreachable robots.txt comes back as disallow-all rules, not
			// an error; any error here degrades to allowed.
			return nil
		}
		path := u.EscapedPath()
		if path == "" {
			path = "/"
		}
		ua := c.UserAgent
		if !rules.Allows(ua, path) {
			return &RobotsDeniedError{URL: u.String(), Reason: "disallowed for user agent " + ua}
		}
	}
	return nil
}

// checkReuseHeaders enforces AI/TDM reuse opt-outs advertised by the origin.
func checkReuseHeaders(u *url.URL, header http.Header) error {
	for _, v := range header.Values("X-Robots-Tag") {
		lv := strings.ToLower(v)
		if strings.Contains(lv, "noai") || strings.Contains(lv, "notrain") {
			return &ReuseDeniedError{URL: u.String(), Reason: strings.TrimSpace(v)}
		}
	}
	return nil
}
