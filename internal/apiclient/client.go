// apiclient — HTTP-клиент REST API Cheffrey с упорядоченными цепочками
// request/response-трансформов.
//
// Каждый вызов возвращает *Response и никогда не паникует: транспортные
// ошибки, таймауты и отмена нормализуются в Response.Problem.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultTimeout — таймаут одного вызова, если в Options он не задан.
	DefaultTimeout = 10 * time.Second

	// maxBodyBytes — верхняя граница читаемого тела ответа.
	maxBodyBytes = 8 << 20
)

// RequestTransform выполняется перед отправкой запроса и может менять его.
// Ошибка прерывает вызов: он завершается неуспешным Response.
type RequestTransform func(ctx context.Context, req *Request) error

// ResponseTransform выполняется после получения ответа.
// Возврат не-nil заменяет ответ для следующих трансформов и вызывающего.
type ResponseTransform func(ctx context.Context, resp *Response) *Response

// Request — описание исходящего вызова.
//
// Path задаётся относительно базового адреса ("/login"). Body сериализуется
// в JSON, []byte уходит как есть. Retried выставляется, когда запрос уже
// повторялся после обновления токена.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Header  http.Header
	Body    any
	Retried bool
}

// Options — параметры клиента.
// Timeout: 0 — DefaultTimeout, отрицательный — без таймаута.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client — HTTP-клиент с цепочками трансформов. Безопасен для конкурентного использования.
type Client struct {
	base    *url.URL
	timeout time.Duration
	hc      *http.Client

	mu        sync.RWMutex
	reqT      []RequestTransform
	respT     []ResponseTransform
	installed map[string]struct{}
}

// New создаёт клиент для базового адреса opts.BaseURL.
func New(opts Options) (*Client, error) {
	const op = "apiclient.New"

	u, err := url.Parse(strings.TrimSpace(opts.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("%s: base url %q must be absolute http(s)", op, opts.BaseURL)
	}
	u.Path = strings.TrimRight(u.Path, "/")

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}

	return &Client{
		base:      u,
		timeout:   timeout,
		hc:        hc,
		installed: make(map[string]struct{}),
	}, nil
}

// BaseURL возвращает базовый адрес клиента.
func (c *Client) BaseURL() string { return c.base.String() }

// AddAsyncRequestTransform добавляет request-трансформ в конец цепочки.
// Дубликаты не отсекаются.
func (c *Client) AddAsyncRequestTransform(fn RequestTransform) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reqT = append(c.reqT, fn)
}

// AddAsyncResponseTransform добавляет response-трансформ в конец цепочки.
// Дубликаты не отсекаются.
func (c *Client) AddAsyncResponseTransform(fn ResponseTransform) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.respT = append(c.respT, fn)
}

// Install атомарно регистрирует пару трансформов под ключом key ровно один раз
// за время жизни клиента. Возвращает false, если ключ уже занят.
// Любой из трансформов может быть nil.
func (c *Client) Install(key string, req RequestTransform, resp ResponseTransform) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.installed[key]; ok {
		return false
	}
	c.installed[key] = struct{}{}

	if req != nil {
		c.reqT = append(c.reqT, req)
	}
	if resp != nil {
		c.respT = append(c.respT, resp)
	}

	return true
}

// Transforms возвращает число зарегистрированных request- и response-трансформов.
func (c *Client) Transforms() (requests, responses int) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.reqT), len(c.respT)
}

// Get выполняет GET path?query.
func (c *Client) Get(ctx context.Context, path string, query url.Values) *Response {
	return c.Do(ctx, &Request{Method: http.MethodGet, Path: path, Query: query})
}

// Post выполняет POST path с JSON-телом.
func (c *Client) Post(ctx context.Context, path string, body any) *Response {
	return c.Do(ctx, &Request{Method: http.MethodPost, Path: path, Body: body})
}

// Put выполняет PUT path с JSON-телом.
func (c *Client) Put(ctx context.Context, path string, body any) *Response {
	return c.Do(ctx, &Request{Method: http.MethodPut, Path: path, Body: body})
}

// Patch выполняет PATCH path с JSON-телом.
func (c *Client) Patch(ctx context.Context, path string, body any) *Response {
	return c.Do(ctx, &Request{Method: http.MethodPatch, Path: path, Body: body})
}

// Delete выполняет DELETE path.
func (c *Client) Delete(ctx context.Context, path string) *Response {
	return c.Do(ctx, &Request{Method: http.MethodDelete, Path: path})
}

// Do выполняет запрос: request-трансформы по порядку, отправка с таймаутом,
// response-трансформы по порядку. Используется и для повторов: тот же *Request
// проходит всю цепочку заново.
func (c *Client) Do(ctx context.Context, req *Request) *Response {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	if req.Header == nil {
		req.Header = make(http.Header)
	}

	c.mu.RLock()
	reqT := slices.Clone(c.reqT)
	respT := slices.Clone(c.respT)
	c.mu.RUnlock()

	start := time.Now()

	var resp *Response
	for _, t := range reqT {
		if err := t(ctx, req); err != nil {
			resp = &Response{Problem: classify(ctx, err), Err: err, Request: req}
			break
		}
	}

	if resp == nil {
		resp = c.dispatch(ctx, req)
	}
	resp.Duration = time.Since(start)

	for _, t := range respT {
		if next := t(ctx, resp); next != nil {
			resp = next
		}
	}

	return resp
}

// dispatch отправляет запрос и читает тело. Действует более ранний из
// дедлайнов: таймаут клиента или дедлайн ctx.
func (c *Client) dispatch(ctx context.Context, req *Request) *Response {
	const op = "apiclient.dispatch"

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	hreq, err := c.build(ctx, req)
	if err != nil {
		return &Response{Problem: ProblemUnknown, Err: fmt.Errorf("%s: %w", op, err), Request: req}
	}

	hresp, err := c.hc.Do(hreq)
	if err != nil {
		return &Response{Problem: classify(ctx, err), Err: fmt.Errorf("%s: %w", op, err), Request: req}
	}
	defer hresp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(hresp.Body, maxBodyBytes))
	if err != nil {
		return &Response{
			Status:  hresp.StatusCode,
			Header:  hresp.Header,
			Problem: classify(ctx, err),
			Err:     fmt.Errorf("%s: read body: %w", op, err),
			Request: req,
		}
	}

	return &Response{
		Status:  hresp.StatusCode,
		Header:  hresp.Header,
		Data:    data,
		Problem: problemForStatus(hresp.StatusCode),
		Request: req,
	}
}

// build собирает *http.Request из Request.
func (c *Client) build(ctx context.Context, req *Request) (*http.Request, error) {
	u := *c.base
	u.Path = c.base.Path + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}

	var body io.Reader
	switch b := req.Body.(type) {
	case nil:
	case []byte:
		body = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	hreq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), body)
	if err != nil {
		return nil, err
	}

	hreq.Header = req.Header.Clone()
	if hreq.Header.Get("Accept") == "" {
		hreq.Header.Set("Accept", "application/json")
	}
	if body != nil && hreq.Header.Get("Content-Type") == "" {
		hreq.Header.Set("Content-Type", "application/json")
	}

	return hreq, nil
}

// classify сопоставляет транспортную ошибку с Problem.
func classify(ctx context.Context, err error) Problem {
	var (
		netErr net.Error
		opErr  *net.OpError
		dnsErr *net.DNSError
	)

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ProblemTimeout
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		return ProblemCancel
	case errors.As(err, &netErr) && netErr.Timeout():
		return ProblemTimeout
	case errors.As(err, &dnsErr):
		return ProblemConnection
	case errors.As(err, &opErr) && opErr.Op == "dial":
		return ProblemConnection
	case errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF):
		return ProblemNetwork
	case errors.As(err, &opErr):
		return ProblemNetwork
	default:
		return ProblemUnknown
	}
}
