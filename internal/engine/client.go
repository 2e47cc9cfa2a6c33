package engine

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/proxy"

	"github.com/pagepack/pagepack/internal/engine/types"
	"github.com/pagepack/pagepack/internal/utils"
)

// NewHTTPClient builds the shared client used for metadata and page requests.
// Proxy and TLS handling follow the runtime config; an unusable proxy URL
// falls back to the environment.
func NewHTTPClient(runtime *types.RuntimeConfig) *http.Client {
	dialer := &net.Dialer{
		Timeout:   types.DialTimeout,
		KeepAlive: types.KeepAliveDuration,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          types.DefaultMaxIdleConns,
		MaxIdleConnsPerHost:   runtime.GetConcurrency(),
		IdleConnTimeout:       types.DefaultIdleConnTimeout,
		TLSHandshakeTimeout:   types.DefaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: types.DefaultResponseHeaderTimeout,
		ForceAttemptHTTP2:     true,
	}

	configureProxy(transport, runtime)

	if runtime != nil && runtime.SkipTLSVerification {
		utils.Debug("HTTP client: TLS verification disabled")
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &http.Client{
		Timeout:   runtime.GetRequestTimeout(),
		Transport: transport,
	}
}

func configureProxy(transport *http.Transport, runtime *types.RuntimeConfig) {
	if runtime == nil || runtime.ProxyURL == "" {
		transport.Proxy = http.ProxyFromEnvironment
		return
	}

	parsedURL, err := url.Parse(runtime.ProxyURL)
	if err != nil || parsedURL.Host == "" {
		utils.Debug("HTTP client: Invalid proxy URL %s: %v", runtime.ProxyURL, err)
		transport.Proxy = http.ProxyFromEnvironment
		return
	}

	if !strings.HasPrefix(parsedURL.Scheme, "socks5") {
		transport.Proxy = http.ProxyURL(parsedURL)
		return
	}

	utils.Debug("HTTP client: Using SOCKS5 proxy: %s", runtime.ProxyURL)
	var auth *proxy.Auth
	if parsedURL.User != nil {
		password, _ := parsedURL.User.Password()
		auth = &proxy.Auth{User: parsedURL.User.Username(), Password: password}
	}
	socks, err := proxy.SOCKS5("tcp", parsedURL.Host, auth, proxy.Direct)
	if err != nil {
		utils.Debug("HTTP client: Failed to create SOCKS5 dialer: %v", err)
		transport.Proxy = http.ProxyFromEnvironment
		return
	}

	if ctxDialer, ok := socks.(proxy.ContextDialer); ok {
		transport.DialContext = ctxDialer.DialContext
		return
	}
	transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		return socks.Dial(network, addr)
	}
}
