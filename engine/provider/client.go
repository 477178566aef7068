package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/veicheck/veicheck/engine/domain"
	"github.com/veicheck/veicheck/pkg/fn"
)

const maxBodyBytes = 1 << 20

var variantPaths = map[domain.Variant]string{
	domain.VariantState:    "/v1/consulta/estadual",
	domain.VariantNational: "/v1/consulta/bin",
}

var kindParams = map[domain.Kind]string{
	domain.KindChassis: "chassi",
	domain.KindPlate:   "placa",
	domain.KindRenavam: "renavam",
}

// Config controls the provider client.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	// RPS is the sustained request rate; zero disables limiting.
	RPS   float64
	Burst int
}

// Client fetches raw vehicle data from the provider over HTTP. It performs
// exactly one request per Fetch and never retries.
type Client struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
}

// NewClient creates a Client with the given config.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}

	return &Client{
		cfg: cfg,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter: limiter,
	}
}

// Fetch performs one provider lookup. On a provider-side failure it returns
// both the decoded response (when a body was received) and a *LookupError.
func (c *Client) Fetch(ctx context.Context, req Request) (*Response, error) {
	endpoint, err := c.endpoint(req)
	if err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("provider: rate limit wait: %w", err)
	}

	resp, err := c.doGet(ctx, endpoint).Unwrap()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &LookupError{Category: CategoryUnavailable, Message: err.Error()}
	}
	return decode(resp)
}

func (c *Client) endpoint(req Request) (string, error) {
	path, ok := variantPaths[req.Variant]
	if !ok {
		return "", fmt.Errorf("provider: unknown variant %q", req.Variant)
	}
	param, ok := kindParams[req.Kind]
	if !ok {
		return "", fmt.Errorf("provider: unknown kind %q", req.Kind)
	}
	q := url.Values{}
	q.Set(param, req.Value)
	if req.UF != "" {
		q.Set("uf", req.UF)
	}
	return c.cfg.BaseURL + path + "?" + q.Encode(), nil
}

type rawResponse struct {
	status int
	body   []byte
}

func (c *Client) doGet(ctx context.Context, endpoint string) fn.Result[rawResponse] {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fn.Err[rawResponse](err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "veicheck/1.0")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fn.Err[rawResponse](err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fn.Err[rawResponse](fmt.Errorf("read body: %w", err))
	}
	return fn.Ok(rawResponse{status: resp.StatusCode, body: body})
}

// decode interprets a raw HTTP exchange as a provider response.
func decode(raw rawResponse) (*Response, error) {
	out := &Response{HTTPStatus: raw.status, Raw: raw.body}

	var env envelope
	if err := json.Unmarshal(raw.body, &env); err != nil {
		out.Code = raw.status
		if raw.status == http.StatusTooManyRequests || raw.status >= 500 {
			return out, &LookupError{Code: raw.status, Category: CategoryUnavailable, Message: fmt.Sprintf("http %d", raw.status)}
		}
		return out, &LookupError{Code: raw.status, Category: CategoryParse, Message: fmt.Sprintf("decode: %v", err)}
	}

	out.Code = env.Code
	if out.Code == 0 {
		out.Code = raw.status
	}
	out.Message = env.Message
	out.Errors = env.Errors

	if out.Code != CodeOK {
		return out, NewLookupError(out.Code, env.Message, env.Errors)
	}

	data, err := payload(env.Data)
	if err != nil {
		return out, &LookupError{Code: out.Code, Category: CategoryParse, Message: err.Error()}
	}
	out.Data = data
	return out, nil
}

var errEmptyPayload = errors.New("empty payload")

// payload accepts either an object or a non-empty array of objects.
func payload(b json.RawMessage) (map[string]any, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil, errEmptyPayload
	}
	if b[0] == '[' {
		var list []map[string]any
		if err := json.Unmarshal(b, &list); err != nil {
			return nil, fmt.Errorf("decode data: %w", err)
		}
		if len(list) == 0 || len(list[0]) == 0 {
			return nil, errEmptyPayload
		}
		return list[0], nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode data: %w", err)
	}
	if len(m) == 0 {
		return nil, errEmptyPayload
	}
	return m, nil
}
