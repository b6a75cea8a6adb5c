package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	maxCallAttempts = 3
	baseBackoff     = 200 * time.Millisecond
)

type httpStatusError struct {
	Status int
	Body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Status, e.Body)
}

// doJSON sends payload as JSON and decodes the response into out. Network
// failures and 5xx answers are retried with exponential backoff; anything
// left over is returned as a ProviderError.
func doJSON(ctx context.Context, client *http.Client, provider, method, url string, headers map[string]string, payload, out interface{}) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return validationError(provider, "marshal", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt < maxCallAttempts; attempt++ {
		if attempt > 0 {
			wait := baseBackoff << (attempt - 1)
			select {
			case <-ctx.Done():
				return transientError(provider, ctx.Err())
			case <-time.After(wait):
			}
		}

		lastErr = send(ctx, client, method, url, headers, body, out)
		if lastErr == nil {
			return nil
		}

		var statusErr *httpStatusError
		if errors.As(lastErr, &statusErr) && statusErr.Status < 500 {
			return validationError(provider, fmt.Sprint(statusErr.Status), lastErr)
		}
		log.Warn().Err(lastErr).Str("provider", provider).Int("attempt", attempt+1).Msg("provider call failed")
	}
	return transientError(provider, lastErr)
}

func send(ctx context.Context, client *http.Client, method, url string, headers map[string]string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &httpStatusError{Status: resp.StatusCode, Body: string(respBody)}
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	return json.Unmarshal(respBody, out)
}
