package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/krobus00/rebate-sync/internal/entity"
	"golang.org/x/time/rate"
)

const maxResponseBodyBytes = 8 << 20

// Signer authenticates a prepared request in place.
type Signer interface {
	Sign(req *http.Request, now time.Time) error
}

type signedClient struct {
	exchange   entity.ExchangeName
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	signer     Signer
	now        func() time.Time
}

func newSignedClient(exchange entity.ExchangeName, baseURL string, httpClient *http.Client, requestsPerSecond float64, signer Signer) *signedClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	burst := int(requestsPerSecond)
	if burst < 1 {
		burst = 1
	}

	return &signedClient{
		exchange:   exchange,
		baseURL:    baseURL,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		signer:     signer,
		now:        time.Now,
	}
}

// get performs a rate limited GET and returns the raw body together with the
// HTTP status. Public endpoints pass signed=false.
func (c *signedClient) get(ctx context.Context, path string, query url.Values, signed bool) ([]byte, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, err
	}

	endpoint := c.baseURL + path
	if encoded := query.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")

	if signed && c.signer != nil {
		if err := c.signer.Sign(req, c.now()); err != nil {
			return nil, 0, fmt.Errorf("%s sign request: %w", c.exchange, err)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%s request %s: %w", c.exchange, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%s read %s: %w", c.exchange, path, err)
	}

	return body, resp.StatusCode, nil
}

// binanceSigner appends timestamp, recvWindow and a hex HMAC of the query.
type binanceSigner struct {
	apiKey     string
	apiSecret  string
	recvWindow int64
}

func (s binanceSigner) Sign(req *http.Request, now time.Time) error {
	query := req.URL.RawQuery
	if query != "" {
		query += "&"
	}
	query += "timestamp=" + strconv.FormatInt(now.UnixMilli(), 10) +
		"&recvWindow=" + strconv.FormatInt(s.recvWindow, 10)

	req.URL.RawQuery = query + "&signature=" + hmacSHA256Hex(s.apiSecret, query)
	req.Header.Set("X-MBX-APIKEY", s.apiKey)

	return nil
}

// okxSigner signs timestamp + method + requestPath with an ISO timestamp.
type okxSigner struct {
	apiKey     string
	apiSecret  string
	passphrase string
}

func (s okxSigner) Sign(req *http.Request, now time.Time) error {
	timestamp := now.UTC().Format("2006-01-02T15:04:05.000Z")
	prehash := timestamp + req.Method + requestPath(req)

	req.Header.Set("OK-ACCESS-KEY", s.apiKey)
	req.Header.Set("OK-ACCESS-SIGN", hmacSHA256Base64(s.apiSecret, prehash))
	req.Header.Set("OK-ACCESS-TIMESTAMP", timestamp)
	req.Header.Set("OK-ACCESS-PASSPHRASE", s.passphrase)

	return nil
}

// bitgetSigner signs timestamp(ms) + method + requestPath.
type bitgetSigner struct {
	apiKey     string
	apiSecret  string
	passphrase string
}

func (s bitgetSigner) Sign(req *http.Request, now time.Time) error {
	timestamp := strconv.FormatInt(now.UnixMilli(), 10)
	prehash := timestamp + req.Method + requestPath(req)

	req.Header.Set("ACCESS-KEY", s.apiKey)
	req.Header.Set("ACCESS-SIGN", hmacSHA256Base64(s.apiSecret, prehash))
	req.Header.Set("ACCESS-TIMESTAMP", timestamp)
	req.Header.Set("ACCESS-PASSPHRASE", s.passphrase)
	req.Header.Set("locale", "en-US")

	return nil
}

func requestPath(req *http.Request) string {
	if req.URL.RawQuery == "" {
		return req.URL.Path
	}
	return req.URL.Path + "?" + req.URL.RawQuery
}

func hmacSHA256Hex(secret, payload string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

func hmacSHA256Base64(secret, payload string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
