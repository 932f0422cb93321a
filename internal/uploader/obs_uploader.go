package uploader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/huaweicloud/huaweicloud-sdk-go-obs/obs"

	"attachget/internal/config"
)

// ObsUploader зеркалирует сохранённые файлы в бакет OBS.
type ObsUploader struct {
	client *obs.ObsClient
	bucket string
	prefix string
}

func NewObsUploader(cfg config.OBS) (*ObsUploader, error) {
	client, err := obs.New(cfg.AK, cfg.SK, cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("create OBS client failed: %w", err)
	}

	return &ObsUploader{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// objectKey: "<prefix><channelID>/<имя файла>".
func objectKey(prefix, channelID, filePath string) string {
	return strings.TrimPrefix(prefix+path.Join(channelID, filepath.Base(filePath)), "/")
}

// Mirror выгружает локальный файл. SDK не принимает контекст, поэтому
// отмена проверяется только перед началом выгрузки.
func (u *ObsUploader) Mirror(ctx context.Context, channelID, filePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	input := &obs.PutFileInput{}
	input.Bucket = u.bucket
	input.Key = objectKey(u.prefix, channelID, filePath)
	input.SourceFile = filePath

	output, err := u.client.PutFile(input)
	if err != nil {
		var obsErr obs.ObsError
		if errors.As(err, &obsErr) {
			return fmt.Errorf("upload %s failed, OBS code %s: %s", input.Key, obsErr.Code, obsErr.Message)
		}
		return fmt.Errorf("upload %s failed: %w", input.Key, err)
	}

	slog.Debug("file mirrored", "op", "mirror", "bucket", u.bucket, "key", input.Key, "etag", output.ETag)
	return nil
}

func (u *ObsUploader) Close() {
	if u.client != nil {
		u.client.Close()
	}
}
