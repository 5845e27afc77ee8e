package marketplace

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/cenkalti/backoff/v4"

	"github.com/mmeshcher/bol-fulfillment/internal/model"
)

// ErrProcessPending возвращается, если процесс не завершился за отведённое число попыток.
var ErrProcessPending = errors.New("process still pending")

// Статусы асинхронного процесса маркетплейса.
const (
	ProcessPending = "PENDING"
	ProcessSuccess = "SUCCESS"
	ProcessFailure = "FAILURE"
	ProcessTimeout = "TIMEOUT"
)

// ProcessStatus описывает состояние асинхронной операции маркетплейса.
type ProcessStatus struct {
	ProcessStatusID string `json:"processStatusId"`
	EntityID        string `json:"entityId"`
	EventType       string `json:"eventType"`
	Description     string `json:"description"`
	Status          string `json:"status"`
	ErrorMessage    string `json:"errorMessage"`
}

// Done сообщает, что процесс завершён (успешно или нет).
func (p ProcessStatus) Done() bool {
	return p.Status != ProcessPending && p.Status != ""
}

// ProcessStatus запрашивает текущее состояние процесса.
func (c *Client) ProcessStatus(ctx context.Context, id string) (*ProcessStatus, error) {
	var st ProcessStatus
	if err := c.doJSON(ctx, http.MethodGet, "/shared/process-status/"+id, nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// WaitForProcess опрашивает процесс с экспоненциальной задержкой, пока он не
// завершится, не кончатся попытки или не будет отменён контекст.
// Завершение со статусом, отличным от SUCCESS, возвращается как RemoteAPIError.
func (c *Client) WaitForProcess(ctx context.Context, id string) (*ProcessStatus, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.pollInitial
	b.MaxInterval = c.pollMax
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.pollAttempts)), ctx)

	st, err := backoff.RetryWithData(func() (*ProcessStatus, error) {
		st, err := c.ProcessStatus(ctx, id)
		if err != nil {
			var remoteErr *model.RemoteAPIError
			if errors.As(err, &remoteErr) && remoteErr.Kind != model.RemoteRateLimited &&
				remoteErr.Kind != model.RemoteServer && remoteErr.Kind != model.RemoteUnreachable {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		if !st.Done() {
			return st, ErrProcessPending
		}
		return st, nil
	}, policy)

	if err != nil {
		if errors.Is(err, ErrProcessPending) {
			return nil, &model.RemoteAPIError{
				Service: serviceName,
				Kind:    model.RemoteTimeout,
				Message: fmt.Sprintf("process %s still pending after %d attempts", id, c.pollAttempts+1),
				Err:     err,
			}
		}
		return nil, err
	}

	if st.Status != ProcessSuccess {
		msg := st.ErrorMessage
		if msg == "" {
			msg = fmt.Sprintf("process %s finished with status %s", id, st.Status)
		}
		return st, &model.RemoteAPIError{
			Service: serviceName,
			Kind:    model.RemoteBadRequest,
			Message: msg,
		}
	}

	return st, nil
}
