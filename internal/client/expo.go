package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// expoBatchLimit is the downstream gateway's maximum messages per call.
const expoBatchLimit = 100

type PushMessage struct {
	To       string         `json:"to"`
	Title    string         `json:"title,omitempty"`
	Body     string         `json:"body,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	Sound    string         `json:"sound,omitempty"`
	Priority string         `json:"priority,omitempty"`
	TTL      int            `json:"ttl,omitempty"`
}

type ExpoClient interface {
	// Send delivers messages in batches of at most 100. A failed batch is
	// reported through the returned error list but never aborts the
	// remaining batches. The int is the number of messages handed to the
	// gateway.
	Send(ctx context.Context, messages []PushMessage) (int, []error)
}

type expoClientImpl struct {
	httpClient *http.Client
	pushURL    string
}

func NewExpoClient(pushURL string, timeout time.Duration) ExpoClient {
	return &expoClientImpl{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		pushURL: pushURL,
	}
}

// IsExpoToken reports whether a stored token looks like an Expo push
// token; anything else is dropped before batching.
func IsExpoToken(token string) bool {
	return strings.HasPrefix(token, "ExponentPushToken[") && strings.HasSuffix(token, "]")
}

func (c *expoClientImpl) Send(ctx context.Context, messages []PushMessage) (int, []error) {
	sent := 0
	var errs []error
	for start := 0; start < len(messages); start += expoBatchLimit {
		end := start + expoBatchLimit
		if end > len(messages) {
			end = len(messages)
		}
		if err := c.sendBatch(ctx, messages[start:end]); err != nil {
			errs = append(errs, err)
			continue
		}
		sent += end - start
	}
	return sent, errs
}

func (c *expoClientImpl) sendBatch(ctx context.Context, batch []PushMessage) error {
	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshal push batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.pushURL, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("expo push error %d: %s", resp.StatusCode, string(b))
	}
	// drain so the connection can be reused; receipts are not processed
	io.Copy(io.Discard, resp.Body)
	return nil
}
