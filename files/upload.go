package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

const (
	requestUploadURLMutation = `mutation RequestUpload($file: FileInput!) {
  requestUploadURL(file: $file)
}`
	confirmUploadMutation = `mutation ConfirmUpload($url: String!) {
  confirmFileUpload(url: $url)
}`
)

// Upload stores the content of src as the file described by in. The returned
// Session is never nil once validation passed; on failure it is FAILED and
// carries the same *UploadError that is returned. Uploads are never retried.
func (e *Engine) Upload(ctx context.Context, src Source, in FileInput, options ...TransferOption) (*Session, error) {
	opts := applyTransferOptions(options)

	in, body, err := resolve(src, in)
	if err != nil {
		s := newSession(DirectionUpload, in)
		uerr := &UploadError{Type: TypeValidation, Err: err}
		s.fail(uerr)
		e.finished(s)
		return s, uerr
	}
	defer body.Close()

	s := newSession(DirectionUpload, in)
	s.TotalBytes = in.Size
	logger := e.logger.With(zap.String("name", in.Name), zap.String("euuid", in.EUUID))
	defer e.finished(s)

	if err := s.advance(StateURLRequested); err != nil {
		return s, s.fail(&UploadError{Type: TypeURLRequest, Err: err})
	}
	var url string
	found, err := e.gql.Field(ctx, requestUploadURLMutation, map[string]interface{}{"file": in}, "requestUploadURL", &url)
	if err != nil {
		return s, s.fail(&UploadError{Type: TypeURLRequest, Err: fmt.Errorf("failed to get upload URL: %w", err)})
	}
	if !found || url == "" {
		return s, s.fail(&UploadError{Type: TypeURLRequest, Err: errors.New("no upload URL in response")})
	}
	s.URL = url

	if err := s.advance(StateTransferring); err != nil {
		return s, s.fail(&UploadError{Type: TypeTransport, Err: err})
	}
	start := time.Now()
	if uerr := e.put(ctx, s, body, opts.progress); uerr != nil {
		logger.Warn("Upload failed", zap.String("type", string(uerr.Type)), zap.Int("status", uerr.StatusCode), zap.Error(uerr.Err))
		return s, s.fail(uerr)
	}

	if err := s.advance(StateConfirming); err != nil {
		return s, s.fail(&UploadError{Type: TypeConfirm, Err: err})
	}
	var confirmed bool
	if _, err := e.gql.Field(ctx, confirmUploadMutation, map[string]interface{}{"url": url}, "confirmFileUpload", &confirmed); err != nil {
		return s, s.fail(&UploadError{Type: TypeConfirm, Err: fmt.Errorf("upload confirmation failed: %w", err)})
	}
	if !confirmed {
		return s, s.fail(&UploadError{Type: TypeConfirm, Err: errors.New("upload confirmation returned false")})
	}

	if err := s.advance(StateDone); err != nil {
		return s, s.fail(&UploadError{Type: TypeConfirm, Err: err})
	}
	logger.Info("Upload finished",
		zap.String("size", humanize.IBytes(uint64(in.Size))),
		zap.String("content_type", in.ContentType),
		zap.Duration("duration", time.Since(start)))
	return s, nil
}

// put streams body to the presigned URL with the declared length and type.
func (e *Engine) put(ctx context.Context, s *Session, body io.Reader, progress ProgressFunc) *UploadError {
	pr := &progressReader{
		ctx:       ctx,
		r:         io.LimitReader(body, s.TotalBytes),
		chunk:     e.chunkSize,
		limiter:   e.limiter,
		session:   s,
		progress:  progress,
		metrics:   e.metrics,
		direction: DirectionUpload,
		exact:     true,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.URL, pr)
	if err != nil {
		pr.stop()
		return &UploadError{Type: TypeTransport, Err: err}
	}
	req.ContentLength = s.TotalBytes
	if s.TotalBytes == 0 {
		req.Body = http.NoBody
	}
	req.Header.Set("Content-Type", s.Input.ContentType)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		pr.stop()
		if short := pr.shortErr(); short != nil {
			return &UploadError{Type: TypeValidation, Err: short}
		}
		return &UploadError{Type: TypeTransport, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		pr.stop()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &UploadError{
			Type:       TypeHTTP,
			StatusCode: resp.StatusCode,
			Body:       string(data),
			Err:        fmt.Errorf("object store answered %s", resp.Status),
		}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	pr.finish()
	return nil
}
