package transport

import "io"

type loopback struct {
	r *io.PipeReader
	w *io.PipeWriter
}

// Loopback returns an in-process stream whose writes are read back by the
// same end. A single Framer with both a source and a sink then exercises
// the full protocol without network I/O.
func Loopback() io.ReadWriteCloser {
	r, w := io.Pipe()
	return &loopback{r: r, w: w}
}

func (l *loopback) Read(p []byte) (int, error)  { return l.r.Read(p) }
func (l *loopback) Write(p []byte) (int, error) { return l.w.Write(p) }

func (l *loopback) Close() error {
	werr := l.w.Close()
	rerr := l.r.Close()
	if werr != nil {
		return werr
	}
	return rerr
}
