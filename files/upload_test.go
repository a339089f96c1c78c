package files_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/neyho/eywa-go/files"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadSmallFile(t *testing.T) {
	engine, orch, store := newEngine(t)
	content := strings.Repeat("x", 42)
	euuid := uuid.NewString()
	progress := &progressLog{}

	s, err := engine.Upload(context.Background(), files.FromString(content),
		files.FileInput{Name: "result.txt", EUUID: euuid, Folder: files.RootFolder()},
		files.WithProgress(progress.record))
	require.NoError(t, err)

	assert.Equal(t, files.StateDone, s.State)
	assert.Equal(t, int64(42), s.BytesTransferred)
	assert.Equal(t, [][2]int64{{42, 42}}, progress.get())
	assert.Equal(t, store.url(euuid), s.URL)
	assert.False(t, s.FinishedAt.IsZero())

	data, ok := store.object(euuid)
	require.True(t, ok)
	assert.Equal(t, content, string(data))
	assert.Equal(t, "text/plain", store.typeOf(euuid))

	requests := orch.documents("requestUploadURL")
	require.Len(t, requests, 1)
	file := requests[0].Variables["file"].(map[string]interface{})
	assert.Equal(t, "result.txt", file["name"])
	assert.Equal(t, float64(42), file["size"])
	assert.Equal(t, "text/plain", file["content_type"])
	assert.Equal(t, files.RootFolderUUID, file["folder"].(map[string]interface{})["euuid"])

	confirms := orch.documents("confirmFileUpload")
	require.Len(t, confirms, 1)
	assert.Equal(t, store.url(euuid), confirms[0].Variables["url"])
}

func TestUploadHTTPFailure(t *testing.T) {
	engine, orch, store := newEngine(t)
	store.fail(500, "storage offline")

	s, err := engine.Upload(context.Background(), files.FromBytes([]byte("payload")),
		files.FileInput{Name: "blob.bin", EUUID: uuid.NewString()})

	var uerr *files.UploadError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, files.TypeHTTP, uerr.Type)
	assert.Equal(t, 500, uerr.StatusCode)
	assert.Contains(t, uerr.Body, "storage offline")
	assert.Equal(t, files.StateFailed, s.State)
	assert.Same(t, uerr, s.Err)
	assert.Empty(t, orch.documents("confirmFileUpload"), "a failed transfer is never confirmed")
	assert.Equal(t, 1, store.putCount(), "uploads are not retried")
}

func TestUploadShortStreamIsValidationError(t *testing.T) {
	engine, orch, _ := newEngine(t)

	s, err := engine.Upload(context.Background(), files.FromReader(strings.NewReader("0123456789"), 42),
		files.FileInput{Name: "short.bin", EUUID: uuid.NewString()})

	require.ErrorIs(t, err, files.ErrValidation)
	var uerr *files.UploadError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, files.TypeValidation, uerr.Type)
	assert.Contains(t, uerr.Error(), "10 of 42")
	assert.Equal(t, files.StateFailed, s.State)
	assert.Empty(t, orch.documents("confirmFileUpload"))
}

func TestUploadConfirmRejected(t *testing.T) {
	engine, orch, _ := newEngine(t)
	orch.confirm = false

	s, err := engine.Upload(context.Background(), files.FromString("hello"),
		files.FileInput{Name: "hello.txt", EUUID: uuid.NewString()})

	var uerr *files.UploadError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, files.TypeConfirm, uerr.Type)
	assert.Equal(t, files.StateFailed, s.State)
}

func TestUploadURLRequestFailure(t *testing.T) {
	engine, orch, store := newEngine(t)
	orch.gqlError = "not allowed to upload"

	s, err := engine.Upload(context.Background(), files.FromString("hello"),
		files.FileInput{Name: "hello.txt", EUUID: uuid.NewString()})

	var uerr *files.UploadError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, files.TypeURLRequest, uerr.Type)
	assert.Contains(t, err.Error(), "not allowed to upload")
	assert.Equal(t, files.StateFailed, s.State)
	assert.Zero(t, store.putCount())
}

func TestUploadValidation(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		src  files.Source
		in   files.FileInput
	}{
		{name: "missing path", src: files.FromPath(filepath.Join(dir, "nope.txt"))},
		{name: "directory", src: files.FromPath(dir)},
		{name: "no name", src: files.FromBytes([]byte("abc"))},
		{name: "size mismatch", src: files.FromString("abc"), in: files.FileInput{Name: "a.txt", Size: 10}},
		{name: "stream without size", src: files.FromReader(strings.NewReader("abc"), 0), in: files.FileInput{Name: "a.txt"}},
		{name: "nil reader", src: files.FromReader(nil, 3), in: files.FileInput{Name: "a.txt"}},
		{name: "bad content type", src: files.FromString("abc"), in: files.FileInput{Name: "a.txt", ContentType: "not a type"}},
		{name: "no source", src: nil, in: files.FileInput{Name: "a.txt"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, orch, _ := newEngine(t)
			s, err := engine.Upload(context.Background(), tt.src, tt.in)

			require.ErrorIs(t, err, files.ErrValidation)
			var uerr *files.UploadError
			require.ErrorAs(t, err, &uerr)
			assert.Equal(t, files.TypeValidation, uerr.Type)
			assert.Equal(t, files.StateFailed, s.State)
			assert.Zero(t, orch.callCount(), "validation happens before any network call")
		})
	}
}

func TestUploadFromPathDetectsNameAndType(t *testing.T) {
	engine, orch, store := newEngine(t)
	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"ok":true}`), 0o600))
	euuid := uuid.NewString()

	s, err := engine.Upload(context.Background(), files.FromPath(path), files.FileInput{EUUID: euuid})
	require.NoError(t, err)
	assert.Equal(t, "report.json", s.Input.Name)
	assert.Equal(t, "application/json", s.Input.ContentType)
	assert.Equal(t, int64(11), s.Input.Size)

	file := orch.documents("requestUploadURL")[0].Variables["file"].(map[string]interface{})
	assert.Equal(t, "report.json", file["name"])
	data, _ := store.object(euuid)
	assert.Equal(t, `{"ok":true}`, string(data))
}

func TestUploadProgressIsMonotonic(t *testing.T) {
	engine, _, _ := newEngine(t, files.WithChunkSize(10))
	progress := &progressLog{}
	content := bytes.Repeat([]byte("0123456789"), 9)
	content = append(content, "abcde"...)

	_, err := engine.Upload(context.Background(), files.FromReader(bytes.NewReader(content), int64(len(content))),
		files.FileInput{Name: "numbers.txt", EUUID: uuid.NewString()}, files.WithProgress(progress.record))
	require.NoError(t, err)

	calls := progress.get()
	require.GreaterOrEqual(t, len(calls), 10)
	var last int64
	for _, c := range calls {
		assert.GreaterOrEqual(t, c[0], last)
		assert.LessOrEqual(t, c[0]-last, int64(10), "progress is reported per chunk")
		assert.Equal(t, int64(95), c[1])
		last = c[0]
	}
	assert.Equal(t, [2]int64{95, 95}, calls[len(calls)-1])
}

func TestUploadSameEUUIDReplacesContent(t *testing.T) {
	engine, _, store := newEngine(t)
	euuid := uuid.NewString()
	in := files.FileInput{Name: "state.txt", EUUID: euuid}

	_, err := engine.Upload(context.Background(), files.FromString("first"), in)
	require.NoError(t, err)
	_, err = engine.Upload(context.Background(), files.FromString("second"), in)
	require.NoError(t, err)

	data, _ := store.object(euuid)
	assert.Equal(t, "second", string(data))
}

func TestUploadExtraAttributesDoNotOverride(t *testing.T) {
	engine, orch, _ := newEngine(t)
	in := files.FileInput{
		Name:  "a.txt",
		EUUID: uuid.NewString(),
		Extra: map[string]interface{}{"name": "other.txt", "tag": "nightly"},
	}
	_, err := engine.Upload(context.Background(), files.FromString("a"), in)
	require.NoError(t, err)

	file := orch.documents("requestUploadURL")[0].Variables["file"].(map[string]interface{})
	assert.Equal(t, "a.txt", file["name"])
	assert.Equal(t, "nightly", file["tag"])
}

func TestUploadRateLimit(t *testing.T) {
	engine, _, _ := newEngine(t, files.WithChunkSize(500), files.WithRateLimit(1000))
	content := bytes.Repeat([]byte{'z'}, 1500)

	start := time.Now()
	_, err := engine.Upload(context.Background(), files.FromBytes(content),
		files.FileInput{Name: "z.bin", EUUID: uuid.NewString()})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 400*time.Millisecond)
}

func TestUploadCanceled(t *testing.T) {
	engine, _, _ := newEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s, err := engine.Upload(ctx, files.FromString("late"), files.FileInput{Name: "late.txt", EUUID: uuid.NewString()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, files.StateFailed, s.State)
}
