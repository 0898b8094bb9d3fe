package llm

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxLineBytes bounds a single SSE or NDJSON line.
const maxLineBytes = 1 << 20

// lineScanner reads newline-delimited frames from a streaming body.
type lineScanner struct {
	scanner *bufio.Scanner
}

func newLineScanner(r io.Reader) *lineScanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &lineScanner{scanner: s}
}

// Scan reads the next line of data.
func (s *lineScanner) Scan() bool { return s.scanner.Scan() }

// Text returns the last scanned line.
func (s *lineScanner) Text() string { return s.scanner.Text() }

// Err returns the first non-EOF read error.
func (s *lineScanner) Err() error { return s.scanner.Err() }

// sseData returns the payload of a "data:" line and whether the line was one.
func sseData(line string) (string, bool) {
	if !strings.HasPrefix(line, "data:") {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(line, "data:")), true
}

// checkStatus converts a non-200 response into a ProviderError, consuming
// and closing the body.
func checkStatus(provider string, resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &ProviderError{Provider: provider, Code: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}

// send emits ev unless ctx is done. It reports whether the event was sent.
func send(ctx context.Context, ch chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func requestError(provider string, err error) error {
	return fmt.Errorf("%s request failed: %w", provider, err)
}
