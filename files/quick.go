package files

import (
	"context"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// QuickUpload uploads the file at path into the root folder under a fresh
// euuid and returns that euuid.
func (e *Engine) QuickUpload(ctx context.Context, path string, options ...TransferOption) (string, error) {
	euuid := uuid.NewString()
	_, err := e.Upload(ctx, FromPath(path), FileInput{EUUID: euuid, Folder: RootFolder()}, options...)
	if err != nil {
		return "", err
	}
	return euuid, nil
}

// QuickDownload saves the file euuid into dir under its stored name and
// returns the path written. An empty dir means the working directory. When
// the name is unknown the file is saved as download_<first 8 chars of euuid>.
func (e *Engine) QuickDownload(ctx context.Context, euuid, dir string, options ...TransferOption) (string, error) {
	name := ""
	info, err := e.FileInfo(ctx, euuid)
	if err != nil {
		e.logger.Warn("Failed to look up file name", zap.String("euuid", euuid), zap.Error(err))
	} else if info != nil {
		name = filepath.Base(info.Name)
	}
	if name == "" || name == "." || name == string(filepath.Separator) {
		short := euuid
		if len(short) > 8 {
			short = short[:8]
		}
		name = "download_" + short
	}

	path := filepath.Join(dir, name)
	if _, err := e.DownloadFile(ctx, euuid, path, options...); err != nil {
		return "", err
	}
	return path, nil
}
