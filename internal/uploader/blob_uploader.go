package uploader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
)

// BlobUploader зеркалирует сохранённые файлы в хранилище gocloud по URL
// бакета: s3://bucket?region=..., file:///path, mem://.
type BlobUploader struct {
	bucket *blob.Bucket
	prefix string
}

func NewBlobUploader(ctx context.Context, bucketURL, prefix string) (*BlobUploader, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket failed: %w", err)
	}
	return &BlobUploader{bucket: bucket, prefix: prefix}, nil
}

func (u *BlobUploader) Mirror(ctx context.Context, channelID, filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open %s failed: %w", filePath, err)
	}
	defer f.Close()

	key := objectKey(u.prefix, channelID, filePath)
	w, err := u.bucket.NewWriter(ctx, key, nil)
	if err != nil {
		return fmt.Errorf("create writer %s failed: %w", key, err)
	}

	n, err := io.Copy(w, f)
	if err != nil {
		w.Close()
		return fmt.Errorf("upload %s failed: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("upload %s failed: %w", key, err)
	}

	slog.Debug("file mirrored", "op", "mirror", "key", key, "size", n)
	return nil
}

func (u *BlobUploader) Close() error {
	return u.bucket.Close()
}
