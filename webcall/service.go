package webcall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"OffloadEngine/errs"
	"OffloadEngine/executor"

	"github.com/valyala/fasthttp"
)

const ServiceName = "http"

const defaultTimeout = 10 * time.Second

var methods = map[string]string{
	"get":    fasthttp.MethodGet,
	"post":   fasthttp.MethodPost,
	"put":    fasthttp.MethodPut,
	"patch":  fasthttp.MethodPatch,
	"delete": fasthttp.MethodDelete,
	"head":   fasthttp.MethodHead,
}

// HTTPError is returned for non-2xx responses.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPError) Code() string {
	return fmt.Sprintf("%d", e.StatusCode)
}

type ConstructorOption func(*constructorOptions)

type constructorOptions struct {
	dial fasthttp.DialFunc
}

// WithDial routes every connection through dial, e.g. an in-memory listener.
func WithDial(dial fasthttp.DialFunc) ConstructorOption {
	return func(o *constructorOptions) {
		o.dial = dial
	}
}

// NewConstructor returns an executor.Constructor for plain HTTP APIs. Recognized options are
// baseURL and timeout.
func NewConstructor(opts ...ConstructorOption) executor.Constructor {
	o := constructorOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	client := &fasthttp.Client{
		Name: "OffloadEngine",
		Dial: o.dial,
	}

	return func(ctx context.Context, options map[string]any, headers map[string]string) (executor.Client, error) {
		baseURL, err := executor.RequiredString(options, "baseURL")
		if err != nil {
			return nil, err
		}
		if _, err := url.ParseRequestURI(baseURL); err != nil {
			return nil, errs.New(errs.ErrInvalidOptions, fmt.Sprintf("baseURL: %v", err))
		}
		timeout, err := executor.Duration(options, "timeout", defaultTimeout)
		if err != nil {
			return nil, err
		}

		return &Service{
			client:  client,
			baseURL: strings.TrimRight(baseURL, "/"),
			headers: headers,
			timeout: timeout,
		}, nil
	}
}

// Service calls an HTTP API. The operation is the lower-case HTTP method.
type Service struct {
	client  *fasthttp.Client
	baseURL string
	headers map[string]string
	timeout time.Duration
}

func (s *Service) Invoke(ctx context.Context, operation string, input map[string]any) (any, error) {
	method, ok := methods[strings.ToLower(operation)]
	if !ok {
		return nil, errs.New(errs.ErrUnknownOperation, ServiceName+"."+operation)
	}

	path, err := executor.String(input, "path")
	if err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(s.baseURL + "/" + strings.TrimLeft(path, "/"))
	req.Header.SetMethod(method)
	for key, value := range s.headers {
		req.Header.Set(key, value)
	}

	if query, ok := input["query"].(map[string]any); ok {
		args := req.URI().QueryArgs()
		for key, value := range query {
			args.Add(key, fmt.Sprint(value))
		}
	}

	if body, ok := input["body"]; ok && body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, errs.New(errs.ErrInvalidInput, fmt.Sprintf("body: %v", err))
		}
		req.Header.SetContentType("application/json")
		req.SetBody(data)
	}

	timeout := s.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if err := s.client.DoTimeout(req, resp, timeout); err != nil {
		if errors.Is(err, fasthttp.ErrTimeout) {
			return nil, fmt.Errorf("%s %s: %w", method, path, context.DeadlineExceeded)
		}
		return nil, err
	}

	statusCode := resp.StatusCode()
	if statusCode < 200 || statusCode >= 300 {
		return nil, &HTTPError{StatusCode: statusCode, Body: string(resp.Body())}
	}

	return map[string]any{
		"statusCode": statusCode,
		"headers":    responseHeaders(resp),
		"body":       decodeBody(resp),
	}, nil
}

func (s *Service) Close() error {
	return nil
}

func responseHeaders(resp *fasthttp.Response) map[string]string {
	headers := make(map[string]string)
	resp.Header.VisitAll(func(key, value []byte) {
		headers[string(key)] = string(value)
	})
	return headers
}

func decodeBody(resp *fasthttp.Response) any {
	body := resp.Body()
	if len(body) == 0 {
		return nil
	}
	if strings.HasPrefix(string(resp.Header.ContentType()), "application/json") {
		var decoded any
		if err := json.Unmarshal(body, &decoded); err == nil {
			return decoded
		}
	}
	return string(body)
}
