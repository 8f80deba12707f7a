package builder

import (
	"bytes"
	"sync"
)

// lineWriter turns a byte stream into complete lines.
type lineWriter struct {
	mu     sync.Mutex
	stream string
	emit   func(stream, text string)
	buf    bytes.Buffer
}

func newLineWriter(stream string, emit func(stream, text string)) *lineWriter {
	return &lineWriter{stream: stream, emit: emit}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadBytes('\n')
		if err != nil {
			// incomplete line; keep it for the next write
			rest := append([]byte(nil), line...)
			w.buf.Reset()
			w.buf.Write(rest)
			return len(p), nil
		}
		w.emit(w.stream, string(bytes.TrimRight(line, "\r\n")))
	}
}

// Flush emits a trailing line without newline.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.emit(w.stream, w.buf.String())
		w.buf.Reset()
	}
}
