package files_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/neyho/eywa-go/files"
	"github.com/neyho/eywa-go/graphql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func upload(t *testing.T, engine *files.Engine, content string) string {
	t.Helper()
	euuid := uuid.NewString()
	_, err := engine.Upload(context.Background(), files.FromString(content), files.FileInput{Name: "data.txt", EUUID: euuid})
	require.NoError(t, err)
	return euuid
}

func TestDownloadRoundTrip(t *testing.T) {
	engine, orch, _ := newEngine(t, files.WithChunkSize(8))
	content := strings.Repeat("eywa ", 20)
	euuid := upload(t, engine, content)
	progress := &progressLog{}

	data, err := engine.DownloadBytes(context.Background(), euuid, files.WithProgress(progress.record))
	require.NoError(t, err)
	assert.Equal(t, content, string(data))

	calls := progress.get()
	require.NotEmpty(t, calls)
	assert.Equal(t, [2]int64{100, 100}, calls[len(calls)-1])

	requests := orch.documents("requestDownloadURL")
	require.Len(t, requests, 1)
	assert.Equal(t, euuid, requests[0].Variables["file"].(map[string]interface{})["euuid"])
}

func TestDownloadSession(t *testing.T) {
	engine, _, store := newEngine(t)
	euuid := upload(t, engine, "twelve bytes")

	var sb strings.Builder
	s, err := engine.Download(context.Background(), euuid, &sb)
	require.NoError(t, err)
	assert.Equal(t, files.StateDone, s.State)
	assert.Equal(t, files.DirectionDownload, s.Direction)
	assert.Equal(t, int64(12), s.TotalBytes)
	assert.Equal(t, int64(12), s.BytesTransferred)
	assert.Equal(t, store.url(euuid), s.URL)
}

func TestDownloadHTTPError(t *testing.T) {
	engine, _, _ := newEngine(t)

	s, err := engine.Download(context.Background(), uuid.NewString(), io.Discard)
	var derr *files.DownloadError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, files.TypeHTTP, derr.Type)
	assert.Equal(t, http.StatusNotFound, derr.StatusCode)
	assert.Equal(t, files.StateFailed, s.State)
}

func TestDownloadInvalidEUUID(t *testing.T) {
	engine, orch, _ := newEngine(t)

	_, err := engine.DownloadBytes(context.Background(), "not-a-uuid")
	require.ErrorIs(t, err, files.ErrValidation)
	var derr *files.DownloadError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, files.TypeValidation, derr.Type)
	assert.Zero(t, orch.callCount())
}

func TestDownloadFile(t *testing.T) {
	engine, _, _ := newEngine(t)
	euuid := upload(t, engine, "saved to disk")
	path := filepath.Join(t.TempDir(), "out.txt")

	s, err := engine.DownloadFile(context.Background(), euuid, path)
	require.NoError(t, err)
	assert.Equal(t, files.StateDone, s.State)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "saved to disk", string(data))
}

func TestDownloadFileRemovesPartialContent(t *testing.T) {
	// announces more content than it sends
	short := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("only a little"))
	}))
	defer short.Close()

	orch := &orchestrator{answer: map[string]interface{}{"requestDownloadURL": short.URL + "/file"}}
	logger := zaptest.NewLogger(t)
	engine, err := files.NewEngine(graphql.NewClient(orch, logger), files.WithLogger(logger))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "partial.bin")
	s, err := engine.DownloadFile(context.Background(), uuid.NewString(), path)
	var derr *files.DownloadError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, files.TypeTransport, derr.Type)
	assert.Equal(t, files.StateFailed, s.State)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "partial file is removed")
}

func TestDownloadStream(t *testing.T) {
	engine, _, _ := newEngine(t)
	euuid := upload(t, engine, "streamed content")

	stream, err := engine.DownloadStream(context.Background(), euuid)
	require.NoError(t, err)
	assert.Equal(t, int64(16), stream.ContentLength)
	assert.Equal(t, files.StateTransferring, stream.Session.State)

	data, err := io.ReadAll(stream)
	require.NoError(t, err)
	require.NoError(t, stream.Close())
	assert.Equal(t, "streamed content", string(data))
	assert.Equal(t, files.StateDone, stream.Session.State)
	require.NoError(t, stream.Close(), "closing twice is harmless")
}

func TestDownloadStreamClosedEarly(t *testing.T) {
	engine, _, _ := newEngine(t, files.WithChunkSize(4))
	euuid := upload(t, engine, "more than four bytes")

	stream, err := engine.DownloadStream(context.Background(), euuid)
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = stream.Read(buf)
	require.NoError(t, err)
	require.NoError(t, stream.Close())
	assert.Equal(t, files.StateFailed, stream.Session.State)
	assert.Equal(t, int64(4), stream.Session.BytesTransferred)
}

func TestQuickUploadAndDownload(t *testing.T) {
	engine, orch, _ := newEngine(t)
	src := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(src, []byte("quick round trip"), 0o600))

	euuid, err := engine.QuickUpload(context.Background(), src)
	require.NoError(t, err)
	_, err = uuid.Parse(euuid)
	require.NoError(t, err)
	file := orch.documents("requestUploadURL")[0].Variables["file"].(map[string]interface{})
	assert.Equal(t, "notes.txt", file["name"])
	assert.Equal(t, map[string]interface{}{"euuid": files.RootFolderUUID}, file["folder"])

	dir := t.TempDir()
	orch.mu.Lock()
	orch.answer = map[string]interface{}{"getFile": map[string]interface{}{"euuid": euuid, "name": "notes.txt"}}
	orch.mu.Unlock()
	path, err := engine.QuickDownload(context.Background(), euuid, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "notes.txt"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "quick round trip", string(data))

	orch.mu.Lock()
	orch.answer = map[string]interface{}{"getFile": nil}
	orch.mu.Unlock()
	path, err = engine.QuickDownload(context.Background(), euuid, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "download_"+euuid[:8]), path)
}
