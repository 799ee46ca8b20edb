package chain

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
)

// RemoteClient talks to an external signing/broadcast service over JSON.
// It serves as Executor (POST /transfers) and Verifier (POST /verifications).
type RemoteClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewRemoteClient(baseURL, token string, timeout time.Duration) *RemoteClient {
	return &RemoteClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

type remoteError struct {
	status int
	body   string
}

func (e *remoteError) Error() string {
	return fmt.Sprintf("remote service returned %d: %s", e.status, e.body)
}

func (r *RemoteClient) post(ctx context.Context, path, idempotencyKey string, in, out interface{}) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &remoteError{status: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (r *RemoteClient) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	var res SendResult
	err := r.post(ctx, "/transfers", req.WithdrawalID, req, &res)
	var re *remoteError
	if errors.As(err, &re) && re.status < 500 && re.status != http.StatusTooManyRequests {
		// the service understood and refused the transfer
		return SendResult{Error: re.Error()}, nil
	}
	if err != nil {
		return SendResult{}, fmt.Errorf("remote executor: %w", err)
	}
	return res, nil
}

func (r *RemoteClient) Verify(ctx context.Context, req VerifyRequest) (VerifyResult, error) {
	var res VerifyResult
	if err := r.post(ctx, "/verifications", "", req, &res); err != nil {
		return VerifyResult{}, fmt.Errorf("remote verifier: %w", err)
	}
	return res, nil
}
