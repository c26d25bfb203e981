// Package reseller talks to the Gloesim reseller API: service-level login,
// eSIM package purchase and the package catalog.
package reseller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// ErrUnauthorized signals an expired or rejected bearer token.
var ErrUnauthorized = errors.New("reseller: unauthorized")

// RequestError describes a failed reseller call.
type RequestError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Err != nil && e.StatusCode > 0:
		return fmt.Sprintf("%s: status=%d: %v", e.Op, e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: status=%d", e.Op, e.StatusCode)
	}
}

func (e *RequestError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Client is a thin HTTP client over the reseller API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient validates baseURL and returns a client with the given timeout
// (30s when timeout <= 0).
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	trimmed := strings.TrimSpace(baseURL)
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, &RequestError{Op: "parse reseller url", Err: err}
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, &RequestError{Op: "validate reseller url", Err: fmt.Errorf("invalid reseller url: %q", trimmed)}
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(trimmed, "/") + "/",
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Login exchanges service credentials for a bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	body, err := json.Marshal(loginRequest{Email: email, Password: password})
	if err != nil {
		return "", &RequestError{Op: "reseller login", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"developer/reseller/login", bytes.NewReader(body))
	if err != nil {
		return "", &RequestError{Op: "reseller login", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	var out loginResponse
	if err := c.do(req, "reseller login", &out); err != nil {
		return "", err
	}
	if !out.Status || out.AccessToken == "" {
		msg := out.Message
		if msg == "" {
			msg = "invalid login response"
		}
		return "", &RequestError{Op: "reseller login", Err: errors.New(msg)}
	}
	return out.AccessToken, nil
}

// PurchasePackage buys one unit of packageTypeID. iccid is optional and tops up
// an existing profile when set.
func (c *Client) PurchasePackage(ctx context.Context, token, packageTypeID, iccid string) (*ESIM, error) {
	const op = "reseller purchase"

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("package_type_id", packageTypeID); err != nil {
		return nil, &RequestError{Op: op, Err: err}
	}
	if iccid != "" {
		if err := mw.WriteField("iccid", iccid); err != nil {
			return nil, &RequestError{Op: op, Err: err}
		}
	}
	if err := mw.Close(); err != nil {
		return nil, &RequestError{Op: op, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"developer/reseller/package/purchase", &buf)
	if err != nil {
		return nil, &RequestError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	var env envelope
	if err := c.do(req, op, &env); err != nil {
		return nil, err
	}
	if !env.Status {
		return nil, &RequestError{Op: op, Err: errors.New(env.errorMessage())}
	}
	esim, err := parseESIM(env.Data)
	if err != nil {
		return nil, &RequestError{Op: op, Err: err}
	}
	return esim, nil
}

// Countries lists the countries packages are sold for.
func (c *Client) Countries(ctx context.Context, token string) (json.RawMessage, error) {
	return c.getData(ctx, token, "reseller countries", "developer/reseller/packages/country")
}

// PackagesByCountry lists the packages sold for one country.
func (c *Client) PackagesByCountry(ctx context.Context, token, countryID string) (json.RawMessage, error) {
	return c.getData(ctx, token, "reseller country packages", "developer/reseller/packages/country/"+url.PathEscape(countryID))
}

func (c *Client) getData(ctx context.Context, token, op, path string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, &RequestError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	var env envelope
	if err := c.do(req, op, &env); err != nil {
		return nil, err
	}
	if !env.Status {
		return nil, &RequestError{Op: op, Err: errors.New(env.errorMessage())}
	}
	return env.Data, nil
}

func (c *Client) do(req *http.Request, op string, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &RequestError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &RequestError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return &RequestError{Op: op, StatusCode: resp.StatusCode, Err: ErrUnauthorized}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &RequestError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status: %s", strings.TrimSpace(string(payload)))}
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return &RequestError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
