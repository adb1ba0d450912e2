package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/DINGDANGMAOUP/mihomo-rs/internal/mherr"
)

// Item is one element pulled from a Sequence: either a decoded raw line
// or a decode error. A decode failure never terminates the sequence
// (spec.md §4.3 streaming contract) — it is delivered as an Item with
// Err set, and the next Pull call continues reading.
type Item struct {
	Data []byte
	Err  error
}

// Sequence is the lazy-sequence abstraction from spec.md's glossary: a
// consumer-driven, cancelable stream terminated by EOF. Pulling blocks
// the caller until the producer has a value. Close must be called by
// the consumer to release the underlying socket promptly, per spec.md
// §4.3's cancellation contract ("cancellation is by dropping the
// consumer; the producer must release the underlying socket promptly").
type Sequence struct {
	items  chan Item
	closed chan struct{}
	closer io.Closer
}

// Pull returns the next item, or ok=false once the sequence has ended
// (EOF or Close was called).
func (s *Sequence) Pull() (Item, bool) {
	item, ok := <-s.items
	return item, ok
}

// Close ends the sequence and releases the underlying connection.
func (s *Sequence) Close() error {
	select {
	case <-s.closed:
		return nil
	default:
		close(s.closed)
	}
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

func newSequence(closer io.Closer) *Sequence {
	return &Sequence{
		items:  make(chan Item),
		closed: make(chan struct{}),
		closer: closer,
	}
}

func (s *Sequence) push(item Item) bool {
	select {
	case s.items <- item:
		return true
	case <-s.closed:
		return false
	}
}

// StreamLines opens a chunked-transfer GET and returns a Sequence of
// newline-delimited JSON records (spec.md §4.3: "streamLines(path)
// returning a lazy sequence of newline-delimited records"). Used for
// /traffic, /memory, and /logs when the transport cannot upgrade to
// WebSocket.
func (t *Transport) StreamLines(ctx context.Context, path string) (*Sequence, error) {
	target, err := t.buildURL(path, nil)
	if err != nil {
		return nil, mherr.InvalidParameter("transport.StreamLines", fmt.Sprintf("invalid path %q: %v", path, err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, mherr.InvalidParameter("transport.StreamLines", err.Error())
	}
	if t.secret != "" {
		req.Header.Set("Authorization", "Bearer "+t.secret)
	}

	streamClient := *t.client
	streamClient.Timeout = 0
	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, mherr.Network("transport.StreamLines", fmt.Sprintf("GET %s failed", path), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		return nil, mherr.FromStatus("transport.StreamLines", resp.StatusCode, string(data))
	}

	seq := newSequence(resp.Body)
	go func() {
		defer close(seq.items)
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			// Validate it decodes as JSON; the consumer does the real
			// typed decode, this just enforces the "bad sample does not
			// kill monitoring" contract at the earliest point possible.
			if !json.Valid(line) {
				if !seq.push(Item{Err: mherr.DataProcessing("transport.StreamLines", "invalid JSON frame", nil)}) {
					return
				}
				continue
			}
			cp := make([]byte, len(line))
			copy(cp, line)
			if !seq.push(Item{Data: cp}) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			seq.push(Item{Err: mherr.Network("transport.StreamLines", "reading stream", err)})
		}
	}()
	return seq, nil
}
