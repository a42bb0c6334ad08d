package webcall

import (
	"context"
	"net"
	"testing"

	"OffloadEngine/errs"
	"OffloadEngine/executor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

func newInMemoryService(t *testing.T, handler fasthttp.RequestHandler, headers map[string]string) executor.Client {
	t.Helper()

	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: handler}

	done := make(chan struct{})
	go func() {
		_ = srv.Serve(ln)
		close(done)
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		_ = srv.Shutdown()
		<-done
	})

	constructor := NewConstructor(WithDial(func(addr string) (net.Conn, error) {
		return ln.Dial()
	}))
	client, err := constructor(context.Background(), map[string]any{"baseURL": "http://api.example.com/v1/"}, headers)
	require.NoError(t, err)
	return client
}

func TestService_GetJSON(t *testing.T) {
	client := newInMemoryService(t, func(ctx *fasthttp.RequestCtx) {
		assert.Equal(t, "/v1/users/42", string(ctx.Path()))
		assert.Equal(t, "true", string(ctx.QueryArgs().Peek("verbose")))
		ctx.Response.Header.Set("X-Echo", string(ctx.Request.Header.Peek("X-Dummy-Header")))
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"id":42,"name":"Alice"}`)
	}, map[string]string{"X-Dummy-Header": "DUMMY HEADER"})

	result, err := client.Invoke(context.Background(), "get", map[string]any{
		"path":  "/users/42",
		"query": map[string]any{"verbose": true},
	})
	require.NoError(t, err)

	response := result.(map[string]any)
	assert.Equal(t, 200, response["statusCode"])
	assert.Equal(t, map[string]any{"id": 42.0, "name": "Alice"}, response["body"])
	assert.Equal(t, "DUMMY HEADER", response["headers"].(map[string]string)["X-Echo"])
}

func TestService_PostBody(t *testing.T) {
	client := newInMemoryService(t, func(ctx *fasthttp.RequestCtx) {
		assert.Equal(t, fasthttp.MethodPost, string(ctx.Method()))
		assert.Equal(t, "application/json", string(ctx.Request.Header.ContentType()))
		ctx.SetStatusCode(fasthttp.StatusCreated)
		ctx.SetBody(ctx.PostBody())
	}, nil)

	result, err := client.Invoke(context.Background(), "POST", map[string]any{
		"path": "items",
		"body": map[string]any{"name": "widget"},
	})
	require.NoError(t, err)

	response := result.(map[string]any)
	assert.Equal(t, fasthttp.StatusCreated, response["statusCode"])
	assert.Equal(t, `{"name":"widget"}`, response["body"])
}

func TestService_HTTPError(t *testing.T) {
	client := newInMemoryService(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusForbidden)
		ctx.SetBodyString("access denied")
	}, nil)

	_, err := client.Invoke(context.Background(), "delete", map[string]any{"path": "items/1"})
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, fasthttp.StatusForbidden, httpErr.StatusCode)

	taskErr := errs.Normalize(err)
	assert.Equal(t, "HTTPError", taskErr.Kind)
	assert.Equal(t, "403", taskErr.Code)
}

func TestService_InvalidCalls(t *testing.T) {
	client := newInMemoryService(t, func(ctx *fasthttp.RequestCtx) {}, nil)

	_, err := client.Invoke(context.Background(), "connect", nil)
	assert.ErrorIs(t, err, errs.ErrUnknownOperation)

	constructor := NewConstructor()
	_, err = constructor(context.Background(), map[string]any{}, nil)
	assert.ErrorIs(t, err, errs.ErrInvalidInput)

	_, err = constructor(context.Background(), map[string]any{"baseURL": "not a url"}, nil)
	assert.ErrorIs(t, err, errs.ErrInvalidOptions)
}
