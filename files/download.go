package files

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const requestDownloadURLQuery = `query RequestDownload($file: FileInput!) {
  requestDownloadURL(file: $file)
}`

// Download writes the content of the file euuid to w.
func (e *Engine) Download(ctx context.Context, euuid string, w io.Writer, options ...TransferOption) (*Session, error) {
	opts := applyTransferOptions(options)
	s, resp, err := e.open(ctx, euuid)
	if err != nil {
		return s, err
	}
	defer resp.Body.Close()
	defer e.finished(s)

	start := time.Now()
	pr := e.reader(ctx, s, resp.Body, opts.progress)
	buf := make([]byte, e.chunkSize)
	if _, err := io.CopyBuffer(w, pr, buf); err != nil {
		pr.stop()
		return s, s.fail(&DownloadError{Type: TypeTransport, Err: err})
	}
	pr.finish()
	if err := s.advance(StateDone); err != nil {
		return s, s.fail(&DownloadError{Type: TypeTransport, Err: err})
	}
	e.logger.Info("Download finished",
		zap.String("euuid", euuid),
		zap.String("size", humanize.IBytes(uint64(s.BytesTransferred))),
		zap.Duration("duration", time.Since(start)))
	return s, nil
}

// DownloadBytes returns the whole content of the file euuid.
func (e *Engine) DownloadBytes(ctx context.Context, euuid string, options ...TransferOption) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := e.Download(ctx, euuid, &buf, options...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DownloadFile saves the file euuid at path. A partially written file is
// removed when the transfer fails.
func (e *Engine) DownloadFile(ctx context.Context, euuid, path string, options ...TransferOption) (*Session, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, &DownloadError{Type: TypeValidation, Err: fmt.Errorf("%w: %v", ErrValidation, err)}
	}
	s, err := e.Download(ctx, euuid, f, options...)
	closeErr := f.Close()
	if err == nil && closeErr != nil {
		err = &DownloadError{Type: TypeTransport, Err: closeErr}
		s.State, s.Err = StateFailed, err
	}
	if err != nil {
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			e.logger.Warn("Failed to remove partial download", zap.String("path", path), zap.Error(rmErr))
		}
		return s, err
	}
	return s, nil
}

// Stream is the body of a download being read by the caller. Closing it ends
// the transfer; Session reports DONE only when the body was read to the end.
type Stream struct {
	Session *Session
	// ContentLength is -1 when the object store did not announce it.
	ContentLength int64

	body   io.ReadCloser
	pr     *progressReader
	engine *Engine
	eof    bool
}

func (st *Stream) Read(p []byte) (int, error) {
	n, err := st.pr.Read(p)
	if errors.Is(err, io.EOF) {
		st.eof = true
	}
	return n, err
}

func (st *Stream) Close() error {
	err := st.body.Close()
	if st.Session.State.Terminal() {
		return err
	}
	if st.eof {
		st.pr.finish()
		_ = st.Session.advance(StateDone)
	} else {
		st.pr.stop()
		st.Session.fail(&DownloadError{Type: TypeTransport, Err: errors.New("stream closed before end of content")})
	}
	st.engine.finished(st.Session)
	return err
}

// DownloadStream opens the file euuid for reading. The caller must close the
// returned Stream.
func (e *Engine) DownloadStream(ctx context.Context, euuid string, options ...TransferOption) (*Stream, error) {
	opts := applyTransferOptions(options)
	s, resp, err := e.open(ctx, euuid)
	if err != nil {
		return nil, err
	}
	return &Stream{
		Session:       s,
		ContentLength: resp.ContentLength,
		body:          resp.Body,
		pr:            e.reader(ctx, s, resp.Body, opts.progress),
		engine:        e,
	}, nil
}

// open negotiates the download URL and starts the GET. On success the
// session is TRANSFERRING and the response status is 2xx.
func (e *Engine) open(ctx context.Context, euuid string) (*Session, *http.Response, error) {
	s := newSession(DirectionDownload, FileInput{EUUID: euuid})
	if _, err := uuid.Parse(euuid); err != nil {
		derr := &DownloadError{Type: TypeValidation, Err: validationError("file euuid %q: %v", euuid, err)}
		s.fail(derr)
		e.finished(s)
		return s, nil, derr
	}

	fail := func(err *DownloadError) (*Session, *http.Response, error) {
		s.fail(err)
		e.finished(s)
		return s, nil, err
	}

	if err := s.advance(StateURLRequested); err != nil {
		return fail(&DownloadError{Type: TypeURLRequest, Err: err})
	}
	var url string
	found, err := e.gql.Field(ctx, requestDownloadURLQuery, map[string]interface{}{"file": map[string]string{"euuid": euuid}}, "requestDownloadURL", &url)
	if err != nil {
		return fail(&DownloadError{Type: TypeURLRequest, Err: fmt.Errorf("failed to get download URL: %w", err)})
	}
	if !found || url == "" {
		return fail(&DownloadError{Type: TypeURLRequest, Err: errors.New("no download URL in response")})
	}
	s.URL = url

	if err := s.advance(StateTransferring); err != nil {
		return fail(&DownloadError{Type: TypeTransport, Err: err})
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fail(&DownloadError{Type: TypeTransport, Err: err})
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fail(&DownloadError{Type: TypeTransport, Err: err})
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		e.logger.Warn("Download failed", zap.String("euuid", euuid), zap.Int("status", resp.StatusCode))
		return fail(&DownloadError{
			Type:       TypeHTTP,
			StatusCode: resp.StatusCode,
			Body:       string(data),
			Err:        fmt.Errorf("object store answered %s", resp.Status),
		})
	}
	if resp.ContentLength > 0 {
		s.TotalBytes = resp.ContentLength
	}
	return s, resp, nil
}

func (e *Engine) reader(ctx context.Context, s *Session, body io.Reader, progress ProgressFunc) *progressReader {
	return &progressReader{
		ctx:       ctx,
		r:         body,
		chunk:     e.chunkSize,
		limiter:   e.limiter,
		session:   s,
		progress:  progress,
		metrics:   e.metrics,
		direction: DirectionDownload,
	}
}
