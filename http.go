package dixa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
)

var ErrUnexpectedStatus = errors.New("unexpected status code")

// HttpError is returned when the api answers with a non-2xx status.
type HttpError struct {
	Status int
	Body   string
}

func (e HttpError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.Status, e.Body)
}

func (e HttpError) Unwrap() error {
	return ErrUnexpectedStatus
}

func newHttpError(status int, body io.Reader) error {
	payload, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("failed to read error response body: %w", err)
	}
	return HttpError{
		Status: status,
		Body:   string(payload),
	}
}

type authScheme int

const (
	// tokenAuth sends the raw api token, or "Bearer <token>" when the
	// client was built with UseBearer. Used on the v1 host.
	tokenAuth authScheme = iota
	// bearerAuth always sends "Bearer <token>". Used on the exports host.
	bearerAuth
)

func (c *Client) authorization(auth authScheme) string {
	if auth == bearerAuth || c.useBearer {
		return "Bearer " + c.token
	}
	return c.token
}

func (c *Client) doRequest(
	ctx context.Context,
	method string,
	requestUrl string,
	body any,
	auth authScheme,
	query url.Values,
) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestUrl, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}

	if query != nil {
		req.URL.RawQuery = query.Encode()
	}

	req.Header.Set(acceptHeader, contentTypeJson)
	if body != nil {
		req.Header.Set(contentTypeHeader, contentTypeJson)
	}
	req.Header.Set("Authorization", c.authorization(auth))

	c.debugRequest(req)

	httpResponse, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", req.URL.Path, err)
	}

	c.debugResponse(httpResponse)

	return httpResponse, nil
}

func (c *Client) debugRequest(req *http.Request) {
	if c.debugHttpCall == nil {
		return
	}
	dump, err := httputil.DumpRequestOut(req, true)
	if err != nil {
		return
	}
	fmt.Fprintf(c.debugHttpCall, "request: %s\n", dump)
}

func (c *Client) debugResponse(response *http.Response) {
	if c.debugHttpCall == nil {
		return
	}
	dump, err := httputil.DumpResponse(response, false)
	if err != nil {
		return
	}
	fmt.Fprintf(c.debugHttpCall, "response: %s\n", dump)
}
