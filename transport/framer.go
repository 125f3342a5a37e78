package transport

import (
	"bytes"
	"errors"
	"io"
	"os"
	"time"
)

// framer tracks the query replies a transport owes its caller.
//
// A *STB? sent while replies are still unread is answered after them, so the status reply
// is the line that follows the outstanding ones. Lines read ahead of the caller and bytes
// after the status reply wait in pending and are served by the next reads.
//
// A framer is not safe for concurrent use; the session serializes transport calls.
type framer struct {
	term        []byte
	pending     []byte
	outstanding int

	// unterminated tail of the written data
	partial []byte
	// termination bytes matched at the end of the last read
	matched int
}

func newFramer(term []byte) *framer {
	if len(term) == 0 {
		term = []byte{'\n'}
	}

	return &framer{term: append([]byte(nil), term...)}
}

func (f *framer) termination() []byte {
	return f.term
}

func (f *framer) setTermination(term []byte) {
	f.term = append([]byte(nil), term...)
	f.partial = nil
	f.matched = 0
}

// reset forgets pending input and outstanding replies.
func (f *framer) reset() {
	f.pending = nil
	f.outstanding = 0
	f.partial = nil
	f.matched = 0
}

// write sends p with raw and counts the queries in it.
func (f *framer) write(p []byte, raw func([]byte) (int, error)) (int, error) {
	n, err := raw(p)
	f.wrote(p[:n])

	return n, err
}

// read serves pending bytes first, then reads with raw.
func (f *framer) read(p []byte, raw func([]byte) (int, error)) (int, error) {
	if len(f.pending) > 0 {
		n := copy(p, f.pending)
		f.pending = f.pending[n:]
		if len(f.pending) == 0 {
			f.pending = nil
		}
		f.delivered(p[:n])

		return n, nil
	}

	n, err := raw(p)
	f.delivered(p[:n])
	if n == 0 && errors.Is(err, os.ErrDeadlineExceeded) {
		// a silent device owes nothing
		f.outstanding = 0
	}

	return n, err
}

func (f *framer) wrote(p []byte) {
	if len(p) == 0 {
		return
	}

	buf := append(f.partial, p...)
	for {
		idx := bytes.Index(buf, f.term)
		if idx < 0 {
			break
		}
		if isQuery(buf[:idx]) {
			f.outstanding++
		}
		buf = buf[idx+len(f.term):]
	}

	if len(buf) == 0 {
		f.partial = nil
	} else {
		f.partial = append([]byte(nil), buf...)
	}
}

func (f *framer) delivered(p []byte) {
	for _, b := range p {
		switch {
		case b == f.term[f.matched]:
			f.matched++
			if f.matched == len(f.term) {
				f.matched = 0
				if f.outstanding > 0 {
					f.outstanding--
				}
			}
		case b == f.term[0]:
			f.matched = 1
		default:
			f.matched = 0
		}
	}
}

// statusReply returns the reply to a *STB? already written to r.
func (f *framer) statusReply(r io.Reader, deadline time.Time) (string, error) {
	buf := f.pending
	f.pending = nil
	chunk := make([]byte, 64)

	var err error
	for {
		if start, end, ok := nthLine(buf, f.term, f.outstanding); ok {
			reply := string(buf[start:end])
			rest := append(buf[:start:start], buf[end+len(f.term):]...)
			if len(rest) > 0 {
				f.pending = rest
			}

			return reply, nil
		}

		if err == nil && !time.Now().Before(deadline) {
			err = os.ErrDeadlineExceeded
		}
		if err != nil {
			if len(buf) > 0 {
				f.pending = buf
			}

			return "", err
		}

		var n int
		n, err = r.Read(chunk)
		buf = append(buf, chunk[:n]...)
	}
}

// nthLine locates the n-th (zero based) line of buf terminated by term.
func nthLine(buf, term []byte, n int) (start, end int, ok bool) {
	for i := 0; ; i++ {
		idx := bytes.Index(buf[start:], term)
		if idx < 0 {
			return 0, 0, false
		}
		if i == n {
			return start, start + idx, true
		}
		start += idx + len(term)
	}
}

// isQuery reports whether a program message holds a query header, as in "MEAS?" or
// "*CLS;:READ?". A message with queries is answered by one response line.
func isQuery(msg []byte) bool {
	for _, unit := range bytes.Split(msg, []byte{';'}) {
		header := bytes.TrimSpace(unit)
		if i := bytes.IndexAny(header, " \t"); i >= 0 {
			header = header[:i]
		}
		if bytes.HasSuffix(header, []byte{'?'}) {
			return true
		}
	}

	return false
}

// rawLink adapts the unframed reads and writes of a transport to io.ReadWriter.
type rawLink struct {
	read  func([]byte) (int, error)
	write func([]byte) (int, error)
}

func (l rawLink) Read(p []byte) (int, error)  { return l.read(p) }
func (l rawLink) Write(p []byte) (int, error) { return l.write(p) }
