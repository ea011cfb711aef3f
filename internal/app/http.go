package app

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

const (
	dialTimeout       = 5 * time.Second
	overallTimeout    = 60 * time.Second
	idleConnPerHost   = 1024
	idleConnTimeout   = 90 * time.Second
	tlsHandshakeLimit = 5 * time.Second
)

// newHighThroughputHTTPClient returns an HTTP client tuned for high
// parallelism without client-side throttling: LLM calls and page fetches
// share this shape. Timeouts stay bounded to avoid hangs.
// With sslVerify false, certificate verification is disabled for self-signed
// local endpoints (stub LLM, analyzer server).
func newHighThroughputHTTPClient(sslVerify bool) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   dialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          0, // no global limit
		MaxIdleConnsPerHost:   idleConnPerHost,
		MaxConnsPerHost:       0, // unlimited
		IdleConnTimeout:       idleConnTimeout,
		TLSHandshakeTimeout:   tlsHandshakeLimit,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if !sslVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &http.Client{
		Transport: transport,
		Timeout:   overallTimeout,
	}
}
