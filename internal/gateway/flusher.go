package gateway

import (
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// flusherConfig controls when buffered chat deltas are pushed to a client.
type flusherConfig struct {
	// MaxBufferBytes forces a flush once the buffer reaches this size.
	// Default: 256 bytes.
	MaxBufferBytes int

	// IdleTimeout flushes whatever is buffered when no delta arrives for
	// this long. Default: 150ms.
	IdleTimeout time.Duration
}

// deltaFlusher coalesces streamed tokens into fewer chat.delta frames,
// cutting at paragraph and sentence boundaries. The chunks it emits
// concatenate to exactly the text it was given.
type deltaFlusher struct {
	cfg  flusherConfig
	emit func(string)

	mu     sync.Mutex
	buf    strings.Builder
	timer  *time.Timer
	closed bool
}

func newDeltaFlusher(cfg flusherConfig, emit func(string)) *deltaFlusher {
	if cfg.MaxBufferBytes <= 0 {
		cfg.MaxBufferBytes = 256
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 150 * time.Millisecond
	}
	return &deltaFlusher{cfg: cfg, emit: emit}
}

// Write buffers a delta and flushes up to the last boundary, if any.
func (f *deltaFlusher) Write(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || text == "" {
		return
	}
	f.buf.WriteString(text)

	if f.timer != nil {
		f.timer.Stop()
	}
	f.timer = time.AfterFunc(f.cfg.IdleTimeout, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.flushLocked()
	})

	content := f.buf.String()
	switch {
	case len(content) >= f.cfg.MaxBufferBytes:
		f.flushLocked()
	case strings.LastIndex(content, "\n\n") >= 0:
		f.flushAtLocked(strings.LastIndex(content, "\n\n") + 2)
	default:
		if pos := lastSentenceEnd(content); pos > 0 {
			f.flushAtLocked(pos)
		}
	}
}

// Close flushes the remainder and stops the idle timer. Later writes are
// dropped.
func (f *deltaFlusher) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.timer != nil {
		f.timer.Stop()
	}
	f.flushLocked()
	f.closed = true
}

func (f *deltaFlusher) flushAtLocked(pos int) {
	content := f.buf.String()
	if pos > len(content) {
		pos = len(content)
	}
	if pos == 0 {
		return
	}
	f.emit(content[:pos])
	f.buf.Reset()
	f.buf.WriteString(content[pos:])
}

func (f *deltaFlusher) flushLocked() {
	if f.closed || f.buf.Len() == 0 {
		return
	}
	f.emit(f.buf.String())
	f.buf.Reset()
}

// lastSentenceEnd returns the byte offset just past the last sentence end:
// a CJK full stop, question or exclamation mark, or an ASCII one followed by
// whitespace. Boundaries in the first 24 bytes are ignored so tiny chunks
// are not sent on their own. Returns -1 when there is none.
func lastSentenceEnd(s string) int {
	best := -1
	for i, r := range s {
		switch r {
		case '。', '！', '？', '；':
			best = i + utf8.RuneLen(r)
		case '.', '!', '?':
			if i+1 < len(s) && (s[i+1] == ' ' || s[i+1] == '\n') {
				best = i + 1
			}
		}
	}
	if best > 24 {
		return best
	}
	return -1
}
