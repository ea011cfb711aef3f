package llmtools

import (
	"net/url"
	"strings"
)

// trackingParams are query parameters dropped outright during sanitation.
var trackingParams = map[string]struct{}{
	"gclid":       {},
	"fbclid":      {},
	"msclkid":     {},
	"mc_cid":      {},
	"mc_eid":      {},
	"igshid":      {},
	"ref_src":     {},
	"spm":         {},
	"yclid":       {},
	"_hsenc":      {},
	"_hsmi":       {},
	"vero_id":     {},
	"wickedid":    {},
	"oly_anon_id": {},
	"oly_enc_id":  {},
}

// sanitizeURLString drops the fragment, lowercases the host and removes
// tracking query parameters (utm_* and a known-id list). Invalid URLs are
// returned unchanged.
func sanitizeURLString(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}
	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)

	q := u.Query()
	for key := range q {
		lk := strings.ToLower(key)
		if strings.HasPrefix(lk, "utm_") {
			q.Del(key)
			continue
		}
		if _, tracked := trackingParams[lk]; tracked {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
