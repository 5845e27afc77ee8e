// Package remote содержит общие средства HTTP-взаимодействия с внешними API:
// клиент с повторами при 429, журналирование повторов и классификацию ошибок.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/mmeshcher/bol-fulfillment/internal/model"
)

// MaxRetries ограничивает число повторов запроса, получившего 429.
const MaxRetries = 3

// Options задаёт параметры HTTP-клиента внешнего API.
type Options struct {
	Timeout      time.Duration
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	// RetryServerErrors включает повторы при сетевых ошибках и 5xx. Для
	// неидемпотентных вызовов повторяется только 429.
	RetryServerErrors bool
	Logger            *zap.Logger
}

// NewHTTPClient создаёт *http.Client, который повторяет запросы при 429 с учётом
// Retry-After и экспоненциальной задержкой, не более MaxRetries раз.
func NewHTTPClient(opts Options) *http.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = MaxRetries
	c.RetryWaitMin = opts.RetryWaitMin
	c.RetryWaitMax = opts.RetryWaitMax
	if c.RetryWaitMin <= 0 {
		c.RetryWaitMin = 500 * time.Millisecond
	}
	if c.RetryWaitMax <= 0 {
		c.RetryWaitMax = 10 * time.Second
	}
	if opts.Timeout > 0 {
		c.HTTPClient.Timeout = opts.Timeout
	}

	if opts.Logger != nil {
		c.Logger = leveledLogger{opts.Logger.Sugar()}
	} else {
		c.Logger = nil
	}

	if opts.RetryServerErrors {
		c.CheckRetry = retryablehttp.DefaultRetryPolicy
	} else {
		c.CheckRetry = RetryOnTooManyRequests
	}
	c.Backoff = retryablehttp.DefaultBackoff
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return c.StandardClient()
}

// RetryOnTooManyRequests повторяет только ответы 429.
func RetryOnTooManyRequests(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return false, nil
	}
	return resp.StatusCode == http.StatusTooManyRequests, nil
}

type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }

// TransportError оборачивает ошибку выполнения запроса в RemoteAPIError.
func TransportError(service string, err error) *model.RemoteAPIError {
	kind := model.RemoteUnreachable

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = model.RemoteTimeout
	}

	return &model.RemoteAPIError{
		Service: service,
		Kind:    kind,
		Message: err.Error(),
		Err:     err,
	}
}

// StatusError читает тело неуспешного ответа и возвращает RemoteAPIError с сообщением сервиса.
func StatusError(service string, resp *http.Response) *model.RemoteAPIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	return &model.RemoteAPIError{
		Service:    service,
		Kind:       model.RemoteKindForStatus(resp.StatusCode),
		StatusCode: resp.StatusCode,
		Message:    ErrorMessage(body, resp.StatusCode),
	}
}

// ErrorMessage извлекает текст ошибки из тела ответа. Поддерживаются форматы
// problem+json маркетплейса и список Errors перевозчика; иначе тело возвращается как есть.
func ErrorMessage(body []byte, status int) string {
	var payload struct {
		Title      string `json:"title"`
		Detail     string `json:"detail"`
		Violations []struct {
			Name   string `json:"name"`
			Reason string `json:"reason"`
		} `json:"violations"`
		Errors []struct {
			Code        string `json:"Code"`
			Description string `json:"Description"`
			Error       string `json:"Error"`
		} `json:"Errors"`
		Fault struct {
			FaultString string `json:"faultstring"`
		} `json:"fault"`
		Message string `json:"message"`
	}

	if err := json.Unmarshal(body, &payload); err == nil {
		var parts []string
		if payload.Detail != "" {
			parts = append(parts, payload.Detail)
		} else if payload.Title != "" {
			parts = append(parts, payload.Title)
		}
		for _, v := range payload.Violations {
			parts = append(parts, v.Name+": "+v.Reason)
		}
		for _, e := range payload.Errors {
			switch {
			case e.Description != "":
				parts = append(parts, e.Description)
			case e.Error != "":
				parts = append(parts, e.Error)
			}
		}
		if payload.Fault.FaultString != "" {
			parts = append(parts, payload.Fault.FaultString)
		}
		if payload.Message != "" {
			parts = append(parts, payload.Message)
		}
		if len(parts) > 0 {
			return strings.Join(parts, "; ")
		}
	}

	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return http.StatusText(status)
}
