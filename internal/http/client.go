package http

import (
	"crypto/tls"
	nethttp "net/http"
	"os"

	"golang.org/x/net/http2"

	"github.com/matflow/matflow-cli/internal/config"
)

// NewTransferClient creates the client used for dataset uploads. It shares
// the proxy configuration of API calls but is never wrapped in retries, so
// a streaming multipart body is sent exactly once.
//
// HTTP/2 is negotiated when talking to the server directly; it is turned off
// behind a proxy or when DISABLE_HTTP2=true.
func NewTransferClient(cfg config.ProxyConfig) (*nethttp.Client, error) {
	baseClient, err := ConfigureHTTPClient(cfg)
	if err != nil {
		return nil, err
	}

	tr, ok := baseClient.Transport.(*nethttp.Transport)
	if !ok {
		// NTLM wraps the transport in a negotiator; use it as-is.
		return baseClient, nil
	}

	tr.ForceAttemptHTTP2 = true
	_ = http2.ConfigureTransport(tr)

	if os.Getenv("DISABLE_HTTP2") == "true" || proxyActive(cfg) {
		tr.ForceAttemptHTTP2 = false
		tr.TLSNextProto = make(map[string]func(string, *tls.Conn) nethttp.RoundTripper)
	}

	baseClient.Transport = tr
	return baseClient, nil
}

// proxyActive reports whether requests will traverse a proxy.
func proxyActive(cfg config.ProxyConfig) bool {
	switch cfg.Mode {
	case config.ProxyModeNone, "":
		return false
	case config.ProxyModeSystem:
		return os.Getenv("HTTP_PROXY") != "" || os.Getenv("HTTPS_PROXY") != "" ||
			os.Getenv("http_proxy") != "" || os.Getenv("https_proxy") != ""
	default:
		return cfg.Host != ""
	}
}
