package vai

import (
	"net"
	"net/http"
	"time"
)

// newDefaultHTTPClient bounds connection setup. A process call may walk
// every audio format before answering, so the header timeout is generous
// and the overall lifetime is left to context deadlines.
func newDefaultHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ForceAttemptHTTP2:     true,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: defaultGatewayTimeout,
	}
	return &http.Client{Transport: transport}
}
