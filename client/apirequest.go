package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

type APIRequest struct {
	// HTTP method as a string (eg "GET") (required)
	Method string

	// Endpoint path, relative to the client base endpoint (eg "product" or "relation/abc/deliveryaddress") (required)
	Endpoint string

	// Optional request body (may be nil). If this is provided, then 'Content-Type' header should be specified
	Body io.Reader

	// Optional function to return new reader for request body; used for retries. Strongly recommended if Body is defined. Body still needs to be defined, even if this function is provided.
	GetBody func() (io.ReadCloser, error)

	// Optional query parameters (may be nil). Encoded in order.
	QueryParams Query

	// Optional HTTP headers (field may be nil). Only the first value will be included for each header key ("Set" behavior).
	Headers http.Header
}

// Initializes a new request struct. Initializes Headers so they can be manipulated immediately.
//
// If body is provided (it can be nil), will try to turn it in to the most retry-able form (and wrap as [io.ReadCloser]).
func NewAPIRequest(method string, endpoint string, body io.Reader) *APIRequest {
	req := APIRequest{
		Method:   method,
		Endpoint: endpoint,
		Headers:  map[string][]string{},
	}

	if body != nil {
		// http.NewRequestWithContext sets GetBody and ContentLength for these types, but only if it sees the concrete type. Wrapping them would send the body chunked.
		switch v := body.(type) {
		case *bytes.Reader, *bytes.Buffer, *strings.Reader:
			req.Body = body
		case io.Seeker:
			req.Body = io.NopCloser(body)
			req.GetBody = func() (io.ReadCloser, error) {
				if _, err := v.Seek(0, io.SeekStart); err != nil {
					return nil, err
				}
				return io.NopCloser(body), nil
			}
		default:
			req.Body = body
		}
	}
	return &req
}

// Resolves an endpoint path against the base URL. The base path is expected to end in '/'; a leading '/' on the endpoint is ignored, so endpoints always stay under the base path.
func resolveEndpoint(base *url.URL, endpoint string) (*url.URL, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("empty request endpoint")
	}
	ref, err := url.Parse(strings.TrimLeft(endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid request endpoint %q: %w", endpoint, err)
	}
	if ref.IsAbs() || ref.Host != "" {
		return nil, fmt.Errorf("request endpoint must be a relative path: %q", endpoint)
	}
	return base.ResolveReference(ref), nil
}

// Creates an [http.Request] for this API request.
//
// `base` is the service base endpoint: scheme, hostname, port and path prefix (required)
//
// `clientHeaders`, if provided, is treated as client-level defaults. Only a single value is allowed per key ("Set" behavior), and will be clobbered by any request-level header values. (optional; may be nil)
func (r *APIRequest) HTTPRequest(ctx context.Context, base *url.URL, clientHeaders http.Header) (*http.Request, error) {
	if base == nil || base.Host == "" {
		return nil, fmt.Errorf("empty hostname in base URL")
	}
	u, err := resolveEndpoint(base, r.Endpoint)
	if err != nil {
		return nil, err
	}

	qs, err := r.QueryParams.Encode()
	if err != nil {
		return nil, err
	}
	if qs != "" {
		if u.RawQuery != "" {
			u.RawQuery = u.RawQuery + "&" + qs
		} else {
			u.RawQuery = qs
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, r.Method, u.String(), r.Body)
	if err != nil {
		return nil, err
	}

	if r.GetBody != nil {
		httpReq.GetBody = r.GetBody
	}

	// first set default headers...
	for k := range clientHeaders {
		httpReq.Header.Set(k, clientHeaders.Get(k))
	}

	// ... then request-specific take priority (overwrite)
	for k := range r.Headers {
		httpReq.Header.Set(k, r.Headers.Get(k))
	}

	return httpReq, nil
}
