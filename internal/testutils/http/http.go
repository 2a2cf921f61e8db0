// Package http builds echo contexts for handler tests.
//
// The context and the recorder share the request, so a handler can be called
// directly with the context and its response is read from the recorder.
package http

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/labstack/echo/v4"
)

// RequestOption modifies requests before they are passed to handlers.
type RequestOption func(*http.Request)

func WithHeader(key string, values ...string) RequestOption {
	return func(req *http.Request) {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
}

func ContentType(ctyp string) RequestOption {
	return WithHeader(echo.HeaderContentType, ctyp)
}

// Request creates an echo context for a request.
func Request(
	e *echo.Echo, method string, target string, body io.Reader, opts ...RequestOption,
) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, body)
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func Get(e *echo.Echo, target string, opts ...RequestOption) (echo.Context, *httptest.ResponseRecorder) {
	return Request(e, http.MethodGet, target, nil, opts...)
}

func Post(e *echo.Echo, target string, body io.Reader, opts ...RequestOption) (echo.Context, *httptest.ResponseRecorder) {
	return Request(e, http.MethodPost, target, body, opts...)
}

// JSON is a shorthand of Request with a JSON body.
func JSON(e *echo.Echo, method string, target string, body string) (echo.Context, *httptest.ResponseRecorder) {
	return Request(e, method, target, strings.NewReader(body), ContentType(echo.MIMEApplicationJSON))
}
