package sdk

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// TokenSource supplies the credential attached to outgoing requests.
// An empty token means the request goes out unauthenticated.
type TokenSource interface {
	Token() string
}

// BasicToken computes the portal credential from a username and password.
// It is computed once at login and carried in the session from then on.
func BasicToken(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
}

// APIError is a non-2xx response from the portal, carrying the HTTP status
// and the server-supplied error message when one was present in the body.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("error: %s", e.Message)
	}
	return fmt.Sprintf("API error (%d)", e.Status)
}

// IsCanceled reports whether err is the result of the caller canceling the
// request, as opposed to a transport failure or an API error.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	log        zerolog.Logger
}

func NewClient(baseURL string, tokens TokenSource, log zerolog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tokens:     tokens,
		log:        log,
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

type requestOptions struct {
	method string
	url    string
	path   map[string]string
	query  map[string]any
	body   any
}

var placeholderRe = regexp.MustCompile(`\{(\w+)\}`)

// resolvePath substitutes {name} placeholders from the path map. Placeholders
// with no matching parameter are left verbatim so a caller bug shows up in the
// request line instead of silently producing a different URL.
func resolvePath(template string, params map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(m string) string {
		name := m[1 : len(m)-1]
		if v, ok := params[name]; ok {
			return url.PathEscape(v)
		}
		return m
	})
}

// encodeQuery flattens a query map into a percent-encoded query string.
// Slices expand into repeated key=value pairs and nested maps into
// key[sub]=value pairs. Keys are emitted in sorted order so the result is
// stable.
func encodeQuery(query map[string]any) string {
	var parts []string

	var walk func(key string, value any)
	walk = func(key string, value any) {
		switch v := value.(type) {
		case nil:
		case []any:
			for _, e := range v {
				walk(key, e)
			}
		case map[string]any:
			subs := make([]string, 0, len(v))
			for sub := range v {
				subs = append(subs, sub)
			}
			sort.Strings(subs)
			for _, sub := range subs {
				walk(key+"["+sub+"]", v[sub])
			}
		default:
			parts = append(parts, url.QueryEscape(key)+"="+url.QueryEscape(fmt.Sprint(v)))
		}
	}

	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		walk(k, query[k])
	}

	if len(parts) == 0 {
		return ""
	}
	return "?" + strings.Join(parts, "&")
}

// do issues a single request and decodes a 2xx JSON response into target when
// target is non-nil. Canceling ctx aborts the request; the returned error then
// satisfies IsCanceled.
func (c *Client) do(ctx context.Context, opts requestOptions, target any) error {
	u := c.baseURL + resolvePath(opts.url, opts.path) + encodeQuery(opts.query)

	var bodyReader io.Reader
	if opts.body != nil {
		data, err := json.Marshal(opts.body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, opts.method, u, bodyReader)
	if err != nil {
		return err
	}
	if opts.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Basic "+token)
	}

	c.log.Debug().Str("method", opts.method).Str("url", u).Msg("portal request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if cause := context.Cause(ctx); cause != nil {
			return fmt.Errorf("%s %s: %w", opts.method, opts.url, cause)
		}
		return fmt.Errorf("%s %s: %w", opts.method, opts.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return apiError(resp)
	}

	if target != nil {
		return json.NewDecoder(resp.Body).Decode(target)
	}
	return nil
}

func apiError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}

	body, _ := io.ReadAll(resp.Body)
	var wire struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &wire); err == nil && wire.Error != "" {
		apiErr.Message = wire.Error
	} else if msg := strings.TrimSpace(string(body)); msg != "" && !strings.HasPrefix(msg, "{") {
		apiErr.Message = msg
	}
	return apiErr
}
