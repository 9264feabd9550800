package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
)

// Object name prefixes inside the bucket. Uploaded sources live under
// audio/, generated merge outputs under merged/.
const (
	AudioPrefix  = "audio/"
	MergedPrefix = "merged/"
)

// UploadFile uploads a local file to the bucket under the given object name.
func UploadFile(ctx context.Context, objectName, localPath, contentType string) error {
	client := GetMinioClient()
	if client == nil {
		return fmt.Errorf("MinIO client not initialized")
	}

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("打开本地文件失败: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return fmt.Errorf("读取文件信息失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	_, err = client.PutObject(ctx, minioBucket, objectName, f, stat.Size(), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("上传对象 %s 失败: %w", objectName, err)
	}
	return nil
}

// GetObject returns a reader for the stored object. The caller must close it.
func GetObject(ctx context.Context, objectName string) (*minio.Object, error) {
	client := GetMinioClient()
	if client == nil {
		return nil, fmt.Errorf("MinIO client not initialized")
	}
	return client.GetObject(ctx, minioBucket, objectName, minio.GetObjectOptions{})
}

// RemoveObject deletes the stored object. Removing a missing object is not
// an error.
func RemoveObject(ctx context.Context, objectName string) error {
	client := GetMinioClient()
	if client == nil {
		return fmt.Errorf("MinIO client not initialized")
	}
	return client.RemoveObject(ctx, minioBucket, objectName, minio.RemoveObjectOptions{})
}

// ContentTypeFor 根据文件扩展名推断内容类型
func ContentTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".flac":
		return "audio/flac"
	case ".aac":
		return "audio/aac"
	case ".m4a":
		return "audio/mp4"
	default:
		return "application/octet-stream"
	}
}
