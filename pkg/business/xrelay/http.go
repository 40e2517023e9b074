package xrelay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/baketa-translate/core/pkg/observability/xmetrics"
)

const maxResponseSize = 1 * 1024 * 1024 // spec: reject bodies larger than 1 MiB

// HTTPClientConfig configures the underlying transport.
type HTTPClientConfig struct {
	BaseURL  string
	Timeout  time.Duration
	Client   *http.Client
	Observer xmetrics.Observer
}

// httpClient is the transport-level wrapper: URL building, body
// marshaling, content-type/size validation, and bearer auth
// injection. Domain operations live in client.go.
type httpClient struct {
	client   *http.Client
	baseURL  string
	observer xmetrics.Observer
}

func newHTTPClient(cfg HTTPClientConfig) *httpClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
			Timeout: cfg.Timeout,
		}
	}
	observer := cfg.Observer
	if observer == nil {
		observer = xmetrics.NoopObserver{}
	}
	return &httpClient{client: client, baseURL: cfg.BaseURL, observer: observer}
}

func (c *httpClient) buildURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.baseURL + path
}

func sanitizeURL(rawURL string) string {
	if path, _, found := strings.Cut(rawURL, "?"); found {
		return path
	}
	return rawURL
}

// rawResponse is a successfully-transported HTTP response: the status
// code and a size/content-type-validated body. It does not say whether
// the call succeeded at the application level — callers interpret
// statusCode and body themselves, since the error-code-to-taxonomy
// mapping differs by operation (translate_image's 403 splits into
// PlanNotSupported vs. QuotaExceeded by body content; others don't).
type rawResponse struct {
	statusCode int
	body       []byte
}

// do performs a bearer-authenticated JSON request and returns the raw,
// validated response. Transport failures are wrapped as
// *TemporaryError so the retry policy in client.go can recognize them.
func (c *httpClient) do(ctx context.Context, method, path, sessionToken string, body any) (rawResponse, error) {
	url := c.buildURL(path)

	ctx, span := xmetrics.Start(ctx, c.observer, xmetrics.SpanOptions{
		Component: "xrelay",
		Operation: method + " " + sanitizeURL(url),
		Kind:      xmetrics.KindClient,
	})
	var err error
	defer func() { span.End(xmetrics.Result{Err: err}) }()

	var bodyReader io.Reader
	if body != nil {
		data, marshalErr := json.Marshal(body)
		if marshalErr != nil {
			err = fmt.Errorf("xrelay: marshal request body: %w", marshalErr)
			return rawResponse{}, err
		}
		bodyReader = bytes.NewReader(data)
	}

	req, reqErr := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if reqErr != nil {
		err = fmt.Errorf("xrelay: build request: %w", reqErr)
		return rawResponse{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if sessionToken != "" {
		req.Header.Set("Authorization", "Bearer "+sessionToken)
	}

	resp, doErr := c.client.Do(req)
	if doErr != nil {
		err = NewTemporaryError(fmt.Errorf("xrelay: request failed: %w", doErr))
		return rawResponse{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, handleErr := c.readValidated(resp)
	if handleErr != nil {
		if errors.Is(handleErr, ErrUnsupportedContentType) || errors.Is(handleErr, ErrResponseTooLarge) {
			// The relay sent something malformed; retrying the same
			// request won't change that.
			err = NewPermanentError(handleErr)
		} else {
			// A body-read failure mid-stream is a transport hiccup.
			err = NewTemporaryError(handleErr)
		}
		return rawResponse{}, err
	}
	return raw, nil
}

func (c *httpClient) readValidated(resp *http.Response) (rawResponse, error) {
	ct := resp.Header.Get("Content-Type")
	mt, _, parseErr := mime.ParseMediaType(ct)
	if parseErr != nil || (mt != "application/json" && mt != "application/problem+json") {
		return rawResponse{}, ErrUnsupportedContentType
	}

	lr := &io.LimitedReader{R: resp.Body, N: maxResponseSize + 1}
	data, err := io.ReadAll(lr)
	if err != nil {
		return rawResponse{}, fmt.Errorf("xrelay: read response body: %w", err)
	}
	if len(data) > maxResponseSize {
		return rawResponse{}, ErrResponseTooLarge
	}

	return rawResponse{statusCode: resp.StatusCode, body: data}, nil
}

// wireError is the common shape of an error body across relay
// endpoints: {"error": {"code": "...", "message": "..."}}.
type wireError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func parseAPIError(statusCode int, body []byte) error {
	var parsed wireError
	_ = json.Unmarshal(body, &parsed)
	return NewAPIError(statusCode, parsed.Error.Code, parsed.Error.Message)
}
