package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spectreweave/orchestrator/models"
)

// DoJSON sends a JSON payload and returns the response body. Non-2xx vendor
// responses and client-side timeouts come back as typed *ServiceError values
// so the retry layer can classify them.
func DoJSON(ctx context.Context, client *http.Client, provider models.Provider, req *http.Request, payload any) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}

	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, NewServiceError(CodeInvalidRequest, provider, fmt.Sprintf("marshal request: %v", err), false, err)
		}
		req.Body = io.NopCloser(bytes.NewReader(b))
		req.ContentLength = int64(len(b))
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		if isTimeout(err) {
			return nil, NewTimeoutError(provider, err)
		}
		return nil, NewServiceError(CodeProviderError, provider, "http request failed", true, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return nil, NewTimeoutError(provider, err)
		}
		return nil, NewServiceError(CodeProviderError, provider, "read response", false, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, NewHTTPError(provider, resp.StatusCode, truncateBody(body))
	}
	return body, nil
}

// OpenStream issues the request and hands the raw body back for streaming
// consumption. Status classification matches DoJSON.
func OpenStream(ctx context.Context, client *http.Client, provider models.Provider, req *http.Request, payload any) (io.ReadCloser, error) {
	if client == nil {
		client = http.DefaultClient
	}

	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, NewServiceError(CodeInvalidRequest, provider, fmt.Sprintf("marshal request: %v", err), false, err)
		}
		req.Body = io.NopCloser(bytes.NewReader(b))
		req.ContentLength = int64(len(b))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		if isTimeout(err) {
			return nil, NewTimeoutError(provider, err)
		}
		return nil, NewServiceError(CodeProviderError, provider, "http request failed", true, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, NewHTTPError(provider, resp.StatusCode, truncateBody(body))
	}
	return resp.Body, nil
}

// ChunkExtractor pulls the text delta out of one server-sent event payload.
// The boolean result marks end-of-stream.
type ChunkExtractor func(data []byte) (text string, done bool)

// SSETextStream adapts a server-sent-event body into a plain text stream.
// Each "data:" event is run through the extractor and the resulting text is
// yielded to the reader. Closing the returned reader closes the body.
func SSETextStream(body io.ReadCloser, extract ChunkExtractor) io.ReadCloser {
	pr, pw := io.Pipe()

	go func() {
		defer body.Close()
		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "" {
				continue
			}
			text, done := extract([]byte(data))
			if text != "" {
				if _, err := pw.Write([]byte(text)); err != nil {
					return
				}
			}
			if done {
				pw.Close()
				return
			}
		}
		if err := scanner.Err(); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.Close()
	}()

	return pr
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

func truncateBody(body []byte) string {
	const max = 512
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
