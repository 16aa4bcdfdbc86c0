package steam

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/SafeMPC/steamguard/internal/metrics"
	"github.com/SafeMPC/steamguard/internal/steamerr"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const defaultTimeout = 30 * time.Second

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport is a cookie-keeping HTTP client owned by exactly one session generation.
// Connectivity failures are reported as ServerError, never as raw transport errors.
type Transport struct {
	client  *http.Client
	probe   *http.Client // does not follow redirects
	jar     http.CookieJar
	metrics *metrics.Metrics
}

// NewTransport creates a transport with a fresh cookie jar. base may be nil; its Transport
// and Timeout are reused when set.
func NewTransport(base *http.Client, timeout time.Duration, m *metrics.Metrics) *Transport {
	jar, _ := cookiejar.New(nil) // never fails without options

	if timeout <= 0 {
		timeout = defaultTimeout
	}

	var rt http.RoundTripper
	if base != nil {
		rt = base.Transport
		if base.Timeout > 0 {
			timeout = base.Timeout
		}
	}

	return &Transport{
		client: &http.Client{
			Transport: rt,
			Jar:       jar,
			Timeout:   timeout,
		},
		probe: &http.Client{
			Transport: rt,
			Jar:       jar,
			Timeout:   timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		jar:     jar,
		metrics: m,
	}
}

// Do sends a request. GET and HEAD carry params in the query string, other methods as a form body.
func (t *Transport) Do(ctx context.Context, method, rawURL string, params url.Values, header http.Header) (*Response, error) {
	return t.do(ctx, t.client, method, rawURL, params, header)
}

// Head sends a HEAD request without following redirects.
func (t *Transport) Head(ctx context.Context, rawURL string) (*Response, error) {
	return t.do(ctx, t.probe, http.MethodHead, rawURL, nil, nil)
}

func (t *Transport) do(ctx context.Context, client *http.Client, method, rawURL string, params url.Values, header http.Header) (*Response, error) {
	var body io.Reader
	target := rawURL

	if method == http.MethodGet || method == http.MethodHead {
		if len(params) > 0 {
			sep := "?"
			if strings.Contains(target, "?") {
				sep = "&"
			}
			target += sep + params.Encode()
		}
	} else {
		body = strings.NewReader(params.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, steamerr.Wrapf(steamerr.KindServerError, err, "failed to create %s request", method)
	}

	for k, values := range header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	}

	resp, err := client.Do(req)
	if err != nil {
		t.metrics.ObserveRequest(method, 0)
		log.Debug().Err(err).Str("method", method).Str("url", rawURL).Msg("HTTP request failed")
		return nil, steamerr.Wrapf(steamerr.KindServerError, err, "failed to execute %s request", method)
	}
	defer resp.Body.Close()

	t.metrics.ObserveRequest(method, resp.StatusCode)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, steamerr.Wrap(steamerr.KindServerError, err, "failed to read response body")
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

// Cookies returns the cookies the jar would send to rawURL.
func (t *Transport) Cookies(rawURL string) []*http.Cookie {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	return t.jar.Cookies(u)
}

// Cookie returns the value of the named cookie for rawURL.
func (t *Transport) Cookie(rawURL, name string) (string, bool) {
	for _, c := range t.Cookies(rawURL) {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

// SetCookies stores cookies for rawURL.
func (t *Transport) SetCookies(rawURL string, cookies []*http.Cookie) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return errors.Wrapf(err, "invalid cookie url %q", rawURL)
	}
	t.jar.SetCookies(u, cookies)
	return nil
}

// checkStatus maps HTTP status codes to error kinds.
func checkStatus(resp *Response) error {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return steamerr.New(steamerr.KindRateLimited, "steam responded with a 429 http code, too many requests")
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return steamerr.Newf(steamerr.KindServerError, "steam responded with a %d http code", resp.StatusCode)
	default:
		return nil
	}
}
