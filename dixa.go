package dixa

import (
	"io"
	"net/http"
)

const (
	defaultBaseURL    = "https://dev.dixa.io/v1"
	defaultExportsURL = "https://exports.dixa.io/v1"

	acceptHeader      = "Accept"
	contentTypeHeader = "Content-Type"
	contentTypeJson   = "application/json"
)

// Client calls the Dixa REST APIs. The v1 host serves conversation search
// and detail lookups; the exports host serves bulk conversation exports.
type Client struct {
	client          *http.Client
	baseEndpoint    string
	exportsEndpoint string

	token     string
	useBearer bool

	debugHttpCall io.Writer
}

type Options func(client *Client)

func HttpClient(client *http.Client) Options {
	return func(c *Client) {
		c.client = client
	}
}

// BaseURL overrides the v1 api endpoint.
func BaseURL(url string) Options {
	return func(c *Client) {
		c.baseEndpoint = url
	}
}

// ExportsBaseURL overrides the exports api endpoint.
func ExportsBaseURL(url string) Options {
	return func(c *Client) {
		c.exportsEndpoint = url
	}
}

// UseBearer sends "Bearer <token>" on the v1 host instead of the raw token.
// The exports host always uses the bearer scheme.
func UseBearer() Options {
	return func(c *Client) {
		c.useBearer = true
	}
}

// DebugHttpCalls dumps every request and response to w.
func DebugHttpCalls(w io.Writer) Options {
	return func(c *Client) {
		c.debugHttpCall = w
	}
}

// NewClient create a new dixa client
func NewClient(token string, options ...Options) *Client {
	c := &Client{
		client:          http.DefaultClient,
		baseEndpoint:    defaultBaseURL,
		exportsEndpoint: defaultExportsURL,
		token:           token,
	}

	for _, o := range options {
		o(c)
	}

	return c
}
