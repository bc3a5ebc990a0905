package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Hafees-J/rk-onlineshopping-fe/internal/errs"
)

// CallError carries the HTTP status and server-reported detail for callers
// that must branch on the outcome (409 conflict messages in particular).
// Unwrap yields the matching sentinel from internal/errs.
type CallError struct {
	Status int
	Detail string
	err    error
}

func (e *CallError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("api: %d: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("api: %d", e.Status)
}

func (e *CallError) Unwrap() error { return e.err }

// NewCallError builds the error a call returning the given HTTP status
// produces. Used by test doubles standing in for the remote API.
func NewCallError(status int, detail string) *CallError {
	return &CallError{Status: status, Detail: detail, err: sentinelFor(status)}
}

// Detail extracts the server-reported reason from err, if any.
func Detail(err error) string {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Detail
	}
	return ""
}

func isUnauthorized(err error) bool {
	return errors.Is(err, errs.ErrUnauthorized)
}

// retry budget travels as an explicit context value rather than a mutable
// flag on a shared request object.
type ctxKey string

const retryBudgetKey ctxKey = "session.retryBudget"

func withRetryBudget(ctx context.Context, n int) context.Context {
	return context.WithValue(ctx, retryBudgetKey, n)
}

func spendRetry(ctx context.Context) context.Context {
	return withRetryBudget(ctx, retryBudget(ctx)-1)
}

func retryBudget(ctx context.Context) int {
	if v, ok := ctx.Value(retryBudgetKey).(int); ok {
		return v
	}
	return 0
}

// call performs one JSON round trip. It never retries; renewal lives in
// doAuthorized. Transport failures and timeouts map to ErrUnavailable and
// never enter the renewal path.
func (m *Manager) call(ctx context.Context, method, path string, header http.Header, body, out any, authorized bool) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		rd = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, m.cfg.BaseURL+"/"+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if authorized {
		m.Authorize(req)
	}

	resp, err := m.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %v", method, path, errs.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s %s: %w: %v", method, path, errs.ErrUnavailable, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || len(payload) == 0 {
			return nil
		}
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("decode %s %s: %w", method, path, err)
		}
		return nil
	}
	return &CallError{
		Status: resp.StatusCode,
		Detail: errorDetail(payload),
		err:    sentinelFor(resp.StatusCode),
	}
}

func sentinelFor(status int) error {
	switch {
	case status == http.StatusUnauthorized:
		return errs.ErrUnauthorized
	case status == http.StatusConflict:
		return errs.ErrConflict
	case status == http.StatusNotFound:
		return errs.ErrNotFound
	case status == http.StatusTooManyRequests:
		return errs.ErrRateLimited
	case status >= 500:
		return errs.ErrUnavailable
	default:
		return errs.ErrValidation
	}
}

// errorDetail reads the server's error body: {"detail": ...} with
// {"message": ...} as a fallback.
func errorDetail(payload []byte) string {
	var body struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	if body.Detail != "" {
		return body.Detail
	}
	return body.Message
}
