package resolver

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"time"
)

// PinnedClient returns an *http.Client whose transport dials only the pinned
// numeric address, regardless of what the request URL's hostname resolves to
// at connect time. The request URL keeps the original hostname, so TLS SNI,
// certificate validation, and the Host header all still use the name the
// endpoint registered.
//
// Redirects are not followed: a 3xx is returned to the caller as a normal
// response, since following it would re-resolve an attacker-controlled
// location and reopen the rebinding hole the pin closes.
func PinnedClient(addr netip.Addr, connectTimeout, readTimeout time.Duration) *http.Client {
	dialer := &net.Dialer{Timeout: connectTimeout}

	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, hostport string) (net.Conn, error) {
			_, port, err := net.SplitHostPort(hostport)
			if err != nil {
				return nil, err
			}
			return dialer.DialContext(ctx, network, net.JoinHostPort(addr.String(), port))
		},
		TLSHandshakeTimeout:   connectTimeout,
		ResponseHeaderTimeout: readTimeout,
		DisableKeepAlives:     true,
	}

	return &http.Client{
		Transport: transport,
		// Overall deadline also bounds reading the response body.
		Timeout: connectTimeout + readTimeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
