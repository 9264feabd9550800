package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"MixMerge/core/audio"
	"MixMerge/core/utils"
	"MixMerge/logger"
	"MixMerge/model"
	"MixMerge/storage"

	"github.com/gorilla/mux"
)

// UploadConfig 定义上传配置
type UploadConfig struct {
	MaxFileSize   int64
	AllowedTypes  []string
	MaxConcurrent int
}

// DefaultUploadConfig 返回默认的上传配置
func DefaultUploadConfig() *UploadConfig {
	return &UploadConfig{
		MaxFileSize: 100 << 20, // 100MB
		AllowedTypes: []string{
			"audio/mpeg", "audio/mp3", // MP3
			"audio/wav", "audio/x-wav", // WAV
			"audio/flac", "audio/x-flac", // FLAC
			"audio/aac",  // AAC
			"audio/mp4",  // M4A
			"audio/ogg",  // OGG
		},
		MaxConcurrent: 5,
	}
}

// uploadSemaphore 用于控制并发上传
var uploadSemaphore = make(chan struct{}, DefaultUploadConfig().MaxConcurrent)

// UploadAudioHandler handles audio file uploads: the payload is stored under
// a freshly generated unique filename, probed for metadata, and registered.
func (h *APIHandler) UploadAudioHandler(w http.ResponseWriter, r *http.Request) {
	cfg := DefaultUploadConfig()

	if r.ContentLength > cfg.MaxFileSize {
		logger.Warn("请求体过大，拒绝处理",
			logger.Int64("contentLength", r.ContentLength),
			logger.Int64("maxSize", cfg.MaxFileSize))
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Request too large. Maximum size is %d MB", cfg.MaxFileSize>>20))
		return
	}

	// 获取信号量，控制并发
	select {
	case uploadSemaphore <- struct{}{}:
		defer func() { <-uploadSemaphore }()
	default:
		logger.Warn("服务器繁忙，拒绝新的上传请求")
		writeError(w, http.StatusServiceUnavailable, "Server is busy, please try again later")
		return
	}

	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	if err := r.ParseMultipartForm(cfg.MaxFileSize); err != nil {
		logger.Error("解析表单失败", logger.ErrorField(err))
		writeError(w, http.StatusBadRequest, "Failed to parse upload form")
		return
	}

	audioFile, header, err := r.FormFile("audioFile")
	if err != nil {
		if err == http.ErrMissingFile {
			writeError(w, http.StatusBadRequest, "Missing audio file. Please select a file to upload.")
		} else {
			writeError(w, http.StatusBadRequest, "Failed to process uploaded file")
		}
		return
	}
	defer audioFile.Close()

	if header.Size > cfg.MaxFileSize {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("File too large. Maximum size is %d MB", cfg.MaxFileSize>>20))
		return
	}

	contentType := header.Header.Get("Content-Type")
	if !cfg.allowedType(contentType) {
		logger.Warn("不支持的文件类型",
			logger.String("contentType", contentType),
			logger.String("filename", header.Filename))
		writeError(w, http.StatusBadRequest, "Invalid file type. Supported formats: MP3, WAV, FLAC, AAC, M4A, OGG.")
		return
	}

	storedName := utils.GenerateStoredFilename(extensionFor(header.Filename, contentType))
	destPath := filepath.Join(h.cfg.AudioDir, storedName)
	if err := saveUploadedFile(audioFile, destPath); err != nil {
		logger.Error("保存上传文件失败", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to save uploaded file")
		return
	}

	// 上传时同步探测元数据，探测失败直接拒绝并清理
	meta, err := h.prober.Probe(destPath)
	if err != nil {
		os.Remove(destPath)
		var metaErr *audio.MetadataError
		if errors.As(err, &metaErr) {
			logger.Warn("音频元数据探测失败，文件无效",
				logger.String("filename", header.Filename),
				logger.ErrorField(err))
			writeError(w, http.StatusBadRequest, "The uploaded file is invalid or corrupt and cannot be decoded.")
			return
		}
		logger.Error("音频元数据探测出错", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to probe audio file")
		return
	}

	record := &model.AudioFile{
		Filename:     storedName,
		OriginalName: header.Filename,
		Size:         header.Size,
		Duration:     int(meta.Duration), // truncated to whole seconds
		MimeType:     contentType,
		UploadedBy:   userID,
	}
	id, err := h.audioRepo.CreateAudioFile(record)
	if err != nil {
		os.Remove(destPath)
		logger.Error("创建音频文件记录失败", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to register audio file")
		return
	}
	record.ID = id
	record.UploadedAt = time.Now()

	// 镜像到对象存储，失败不阻断上传
	if err := storage.UploadFile(r.Context(), storage.AudioPrefix+storedName, destPath, contentType); err != nil {
		logger.Warn("镜像上传到对象存储失败",
			logger.String("object", storage.AudioPrefix+storedName),
			logger.ErrorField(err))
	}

	logger.Info("音频文件上传成功",
		logger.Int64("fileId", id),
		logger.Int64("userId", userID),
		logger.String("storedName", storedName),
		logger.Int("duration", record.Duration))
	writeJSON(w, http.StatusCreated, record)
}

// GetAudioFilesHandler lists the caller's audio files, newest first.
func (h *APIHandler) GetAudioFilesHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	files, err := h.audioRepo.GetAudioFilesByUserID(userID)
	if err != nil {
		logger.Error("查询音频文件列表失败", logger.Int64("userId", userID), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to list audio files")
		return
	}
	writeJSON(w, http.StatusOK, files)
}

// DeleteAudioFileHandler removes an audio file record and its backing blob.
func (h *APIHandler) DeleteAudioFileHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	fileID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid file id")
		return
	}

	file, err := h.audioRepo.GetAudioFileByID(fileID)
	if err != nil {
		logger.Error("查询音频文件失败", logger.Int64("fileId", fileID), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to load audio file")
		return
	}
	if file == nil {
		writeError(w, http.StatusNotFound, "Audio file not found")
		return
	}
	if file.UploadedBy != userID {
		writeError(w, http.StatusForbidden, "You do not own this file")
		return
	}

	// 仍被运行中任务引用时给出警告，但不阻止删除
	if count, err := h.jobRepo.CountActiveJobsReferencingFile(fileID); err == nil && count > 0 {
		logger.Warn("删除的音频文件仍被运行中的合并任务引用",
			logger.Int64("fileId", fileID),
			logger.Int("activeJobs", count))
	}

	if err := h.audioRepo.DeleteAudioFile(fileID); err != nil {
		logger.Error("删除音频文件记录失败", logger.Int64("fileId", fileID), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to delete audio file")
		return
	}

	// 物理删除尽力而为，失败记录差异而不是静默吞掉
	localPath := filepath.Join(h.cfg.AudioDir, file.Filename)
	if err := os.Remove(localPath); err != nil && !os.IsNotExist(err) {
		logger.Warn("删除本地音频文件失败，磁盘状态与记录不一致",
			logger.String("path", localPath),
			logger.ErrorField(err))
	}
	if err := storage.RemoveObject(r.Context(), storage.AudioPrefix+file.Filename); err != nil {
		logger.Warn("删除对象存储中的音频文件失败",
			logger.String("object", storage.AudioPrefix+file.Filename),
			logger.ErrorField(err))
	}

	logger.Info("音频文件已删除",
		logger.Int64("fileId", fileID),
		logger.Int64("userId", userID),
		logger.String("storedName", file.Filename))
	writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": fileID})
}

func (c *UploadConfig) allowedType(contentType string) bool {
	for _, t := range c.AllowedTypes {
		if contentType == t {
			return true
		}
	}
	return false
}

// extensionFor picks a stored-file extension from the original name, falling
// back to the content type.
func extensionFor(filename, contentType string) string {
	if ext := filepath.Ext(filename); ext != "" {
		return ext
	}
	switch contentType {
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/wav", "audio/x-wav":
		return "wav"
	case "audio/flac", "audio/x-flac":
		return "flac"
	case "audio/aac":
		return "aac"
	case "audio/mp4":
		return "m4a"
	case "audio/ogg":
		return "ogg"
	default:
		return "bin"
	}
}

func saveUploadedFile(file multipart.File, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create upload directory: %w", err)
	}
	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, file); err != nil {
		return fmt.Errorf("failed to write uploaded file: %w", err)
	}
	return nil
}
