package server

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"MixMerge/logger"
	"MixMerge/storage"

	"github.com/gorilla/mux"
	"github.com/minio/minio-go/v7"
)

// StaticHandler streams stored objects (uploaded audio and merge outputs).
// The path after /static/ is the full object name, e.g.
// /static/merged/1700000000_ab12cd34.mp3.
//
// Serving prefers the object store but falls back to the local audio/output
// directories, so a freshly completed merge is downloadable even if its
// upload to the bucket has not landed yet or the object store is down.
func (h *APIHandler) StaticHandler(w http.ResponseWriter, r *http.Request) {
	objectName := mux.Vars(r)["object"]
	if objectName == "" || strings.Contains(objectName, "..") {
		writeError(w, http.StatusBadRequest, "Invalid object path")
		return
	}

	if h.serveFromStore(w, r, objectName) {
		return
	}

	if localPath := h.localObjectPath(objectName); localPath != "" {
		if info, err := os.Stat(localPath); err == nil && !info.IsDir() {
			w.Header().Set("Content-Type", storage.ContentTypeFor(objectName))
			http.ServeFile(w, r, localPath)
			return
		}
	}

	writeError(w, http.StatusNotFound, "Object not found")
}

// serveFromStore streams the object from MinIO. Returns false when the object
// is unavailable there, letting the caller fall back to the local disk.
func (h *APIHandler) serveFromStore(w http.ResponseWriter, r *http.Request, objectName string) bool {
	obj, err := storage.GetObject(r.Context(), objectName)
	if err != nil {
		logger.Debug("对象存储不可用，回退本地磁盘",
			logger.String("object", objectName),
			logger.ErrorField(err))
		return false
	}
	defer obj.Close()

	// GetObject 是惰性的，Stat 才能发现对象不存在
	stat, err := obj.Stat()
	if err != nil {
		if resp := minio.ToErrorResponse(err); resp.Code != "NoSuchKey" {
			logger.Warn("读取对象信息失败，回退本地磁盘",
				logger.String("object", objectName),
				logger.ErrorField(err))
		}
		return false
	}

	contentType := stat.ContentType
	if contentType == "" {
		contentType = storage.ContentTypeFor(objectName)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Accept-Ranges", "bytes")

	if _, err := io.Copy(w, obj); err != nil {
		// 客户端断开是常态，记debug即可
		logger.Debug("对象流式传输中断", logger.String("object", objectName), logger.ErrorField(err))
	}
	return true
}

// localObjectPath maps an object name onto the local directory backing its
// prefix. Only the base name is used, so the path cannot escape the dir.
func (h *APIHandler) localObjectPath(objectName string) string {
	switch {
	case strings.HasPrefix(objectName, storage.MergedPrefix):
		return filepath.Join(h.cfg.MergedDir, filepath.Base(objectName))
	case strings.HasPrefix(objectName, storage.AudioPrefix):
		return filepath.Join(h.cfg.AudioDir, filepath.Base(objectName))
	}
	return ""
}
