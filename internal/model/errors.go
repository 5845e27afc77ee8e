package model

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrRunInProgress возвращается при попытке запустить второй прогон обновления цен.
var ErrRunInProgress = errors.New("price update already running")

// ConfigurationError возвращается, если настройки внешнего сервиса не заданы или являются заглушками.
type ConfigurationError struct {
	Service string
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s is not configured: missing %s", e.Service, strings.Join(e.Missing, ", "))
}

// NotFoundError возвращается, если заказ или позиция не найдены.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// PreconditionError возвращается, если состояние заказа не допускает операцию.
type PreconditionError struct {
	Reason string
	Count  int
}

func (e *PreconditionError) Error() string {
	if e.Count > 0 {
		return fmt.Sprintf("%s (%d)", e.Reason, e.Count)
	}
	return e.Reason
}

// RemoteErrorKind классифицирует ошибки внешних API.
type RemoteErrorKind string

const (
	RemoteAuth        RemoteErrorKind = "auth"
	RemoteBadRequest  RemoteErrorKind = "bad_request"
	RemoteRateLimited RemoteErrorKind = "rate_limited"
	RemoteTimeout     RemoteErrorKind = "timeout"
	RemoteUnreachable RemoteErrorKind = "unreachable"
	RemoteServer      RemoteErrorKind = "server"
	RemoteMalformed   RemoteErrorKind = "malformed"
)

// RemoteAPIError описывает неуспешный вызов перевозчика или маркетплейса.
type RemoteAPIError struct {
	Service    string
	Kind       RemoteErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *RemoteAPIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s error (status %d): %s", e.Service, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s error: %s", e.Service, e.Kind, e.Message)
}

func (e *RemoteAPIError) Unwrap() error {
	return e.Err
}

// RemoteKindForStatus сопоставляет HTTP-статус ответа виду ошибки.
func RemoteKindForStatus(code int) RemoteErrorKind {
	switch {
	case code == 401 || code == 403:
		return RemoteAuth
	case code == 429:
		return RemoteRateLimited
	case code == 408 || code == 504:
		return RemoteTimeout
	case code >= 500:
		return RemoteServer
	default:
		return RemoteBadRequest
	}
}

// PartialFailureError возвращается, если часть элементов пакета обработана с ошибкой.
type PartialFailureError struct {
	Succeeded int
	Failed    map[string]error
}

func (e *PartialFailureError) Error() string {
	ids := make([]string, 0, len(e.Failed))
	for id := range e.Failed {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return fmt.Sprintf("%d succeeded, %d failed: %s", e.Succeeded, len(e.Failed), strings.Join(ids, ", "))
}
