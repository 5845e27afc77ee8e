// Package marketplace предоставляет клиент Retailer API маркетплейса bol.com.
package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/mmeshcher/bol-fulfillment/internal/config"
	"github.com/mmeshcher/bol-fulfillment/internal/model"
	"github.com/mmeshcher/bol-fulfillment/internal/remote"
)

const (
	serviceName = "marketplace"

	contentTypeJSON = "application/vnd.retailer.v10+json"
	contentTypeCSV  = "application/vnd.retailer.v10+csv"

	// Токен живёт около пяти минут; обновляем его за минуту до истечения.
	tokenRefreshMargin = time.Minute
)

// Client инкапсулирует HTTP-взаимодействие с Retailer API.
type Client struct {
	cfg     config.Marketplace
	baseURL string
	// Чтения повторяются при 429, 5xx и сетевых ошибках, записи только при 429.
	readClient  *http.Client
	writeClient *http.Client
	limiter     *rate.Limiter
	transporter string

	pollInitial  time.Duration
	pollMax      time.Duration
	pollAttempts int
}

// Option настраивает Client.
type Option func(c *Client)

// WithPolling задаёт параметры ожидания асинхронных процессов.
func WithPolling(initial, maxInterval time.Duration, attempts int) Option {
	return func(c *Client) {
		c.pollInitial = initial
		c.pollMax = maxInterval
		c.pollAttempts = attempts
	}
}

// NewClient создаёт клиент маркетплейса. Запросы авторизуются токеном
// client credentials, который переиспользуется до истечения.
func NewClient(cfg config.Marketplace, logger *zap.Logger, opts ...Option) *Client {
	reads := remote.NewHTTPClient(remote.Options{
		Timeout:           cfg.Timeout,
		RetryServerErrors: true,
		Logger:            logger,
	})
	writes := remote.NewHTTPClient(remote.Options{
		Timeout: cfg.Timeout,
		Logger:  logger,
	})

	oauthCfg := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: cfg.Timeout})
	tokens := oauth2.ReuseTokenSourceWithExpiry(nil, oauthCfg.TokenSource(tokenCtx), tokenRefreshMargin)

	interval := cfg.RateInterval
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}

	transporter := cfg.Transporter
	if transporter == "" {
		transporter = "TNT"
	}

	c := &Client{
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		readClient: &http.Client{
			Transport: &oauth2.Transport{Source: tokens, Base: reads.Transport},
		},
		writeClient: &http.Client{
			Transport: &oauth2.Transport{Source: tokens, Base: writes.Transport},
		},
		limiter:      rate.NewLimiter(limit, 1),
		transporter:  transporter,
		pollInitial:  2 * time.Second,
		pollMax:      15 * time.Second,
		pollAttempts: 40,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Missing возвращает имена незаполненных параметров маркетплейса.
func (c *Client) Missing() []string {
	return c.cfg.Missing()
}

// doJSON выполняет запрос с JSON-телом и декодирует JSON-ответ в out, если он не nil.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	resp, err := c.do(ctx, method, path, body, contentTypeJSON)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &model.RemoteAPIError{
			Service: serviceName,
			Kind:    model.RemoteMalformed,
			Message: fmt.Sprintf("decode %s %s: %v", method, path, err),
			Err:     err,
		}
	}
	return nil
}

// do ждёт разрешения ограничителя частоты и выполняет запрос. Неуспешные
// статусы превращаются в RemoteAPIError.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, accept string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, remote.TransportError(serviceName, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", accept)
	if body != nil {
		req.Header.Set("Content-Type", contentTypeJSON)
	}

	client := c.writeClient
	if method == http.MethodGet || method == http.MethodHead {
		client = c.readClient
	}

	resp, err := client.Do(req)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			status := http.StatusUnauthorized
			if retrieveErr.Response != nil {
				status = retrieveErr.Response.StatusCode
			}
			return nil, &model.RemoteAPIError{
				Service:    serviceName,
				Kind:       model.RemoteAuth,
				StatusCode: status,
				Message:    remote.ErrorMessage(retrieveErr.Body, status),
				Err:        err,
			}
		}
		return nil, remote.TransportError(serviceName, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, remote.StatusError(serviceName, resp)
	}

	return resp, nil
}
