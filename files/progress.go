package files

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/neyho/eywa-go/shared/metrics"
	"golang.org/x/time/rate"
)

var errTransferStopped = errors.New("transfer stopped")

// progressReader reads at most chunk bytes at a time from r, applies the
// bandwidth limit and reports every chunk. For uploads the HTTP transport
// may still read the body after the response arrived, so session counters
// are only touched under mu and stop ends reporting.
type progressReader struct {
	ctx       context.Context
	r         io.Reader
	chunk     int
	limiter   *rate.Limiter
	session   *Session
	progress  ProgressFunc
	metrics   *metrics.Metrics
	direction Direction
	// exact makes an early EOF a validation error: the body must carry
	// TotalBytes bytes.
	exact bool

	mu       sync.Mutex
	short    error
	stopped  bool
	reported int64
	started  bool
}

func (p *progressReader) Read(b []byte) (int, error) {
	if len(b) > p.chunk {
		b = b[:p.chunk]
	}
	n, err := p.r.Read(b)
	if n > 0 && p.limiter != nil {
		if werr := p.limiter.WaitN(p.ctx, n); werr != nil {
			return 0, werr
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if n > 0 {
		if p.stopped {
			return 0, errTransferStopped
		}
		p.session.BytesTransferred += int64(n)
		p.metrics.TransferBytes(string(p.direction), n)
		p.report(p.session.BytesTransferred, p.total())
	}
	if p.exact && errors.Is(err, io.EOF) && p.session.BytesTransferred < p.session.TotalBytes {
		p.short = validationError("content ended after %d of %d declared bytes", p.session.BytesTransferred, p.session.TotalBytes)
		return n, p.short
	}
	return n, err
}

// shortErr returns the validation error recorded when the body ended before
// its declared size.
func (p *progressReader) shortErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.short
}

func (p *progressReader) total() int64 {
	if p.session.TotalBytes > 0 {
		return p.session.TotalBytes
	}
	return p.session.BytesTransferred
}

func (p *progressReader) report(transferred, total int64) {
	p.started = true
	p.reported = transferred
	if p.progress != nil {
		p.progress(transferred, total)
	}
}

// stop ends reporting; later reads fail.
func (p *progressReader) stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
}

// finish stops reporting and emits the closing (total, total) call unless
// the last chunk already did.
func (p *progressReader) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	total := p.total()
	if p.started && p.reported == total {
		return
	}
	p.session.BytesTransferred = total
	p.report(total, total)
}
