package telegraph

import (
	"io"
	"log/slog"
	"os"

	"github.com/KarpelesLab/ringbuf"
)

// LogBuffer keeps the most recent log output in memory so it can be dumped
// later, for example from a debug HTTP endpoint.
type LogBuffer struct {
	buf *ringbuf.Writer
}

// NewLogBuffer allocates a buffer retaining the last size bytes of log.
func NewLogBuffer(size int64) (*LogBuffer, error) {
	buf, err := ringbuf.New(size)
	if err != nil {
		return nil, err
	}
	return &LogBuffer{buf: buf}, nil
}

// Writer returns the sink to write log output to.
func (l *LogBuffer) Writer() io.Writer {
	return l.buf
}

// Logger returns a text logger writing to both stderr and the buffer.
func (l *LogBuffer) Logger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(io.MultiWriter(os.Stderr, l.buf), &slog.HandlerOptions{Level: level}))
}

// Dmesg copies the buffered log to w.
func (l *LogBuffer) Dmesg(w io.Writer) (int64, error) {
	r := l.buf.Reader()
	defer r.Close()
	return io.Copy(w, r)
}

func (l *LogBuffer) Close() {
	l.buf.Close()
}
