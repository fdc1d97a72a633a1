package client

import (
	"net/http"
	"time"

	"stream-front/work/config"
)

// HeaderSettingClient wraps http.Client to automatically set the outbound
// headers (User-Agent, Origin, Referer) some stream providers require.
type HeaderSettingClient struct {
	Client *http.Client
	config *config.Config
}

// NewHeaderSettingClient builds a client tuned for long-lived streaming
// responses: no overall timeout, header-only response timeout.
func NewHeaderSettingClient(cfg *config.Config) *HeaderSettingClient {
	client := &http.Client{
		Timeout: 0, // No overall timeout for streaming
		Transport: &http.Transport{
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			DisableKeepAlives:     false,
			ResponseHeaderTimeout: cfg.StreamTimeout,
		},
	}

	return &HeaderSettingClient{
		Client: client,
		config: cfg,
	}
}

func (hsc *HeaderSettingClient) Do(req *http.Request) (*http.Response, error) {
	hsc.setHeaders(req)
	return hsc.Client.Do(req)
}

func (hsc *HeaderSettingClient) setHeaders(req *http.Request) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", hsc.config.UserAgent)
	}
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Accept", "*/*")

	if hsc.config.ReqOrigin != "" {
		req.Header.Set("Origin", hsc.config.ReqOrigin)
	}
	if hsc.config.ReqReferrer != "" {
		req.Header.Set("Referer", hsc.config.ReqReferrer)
	}
}
