package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"MixMerge/config"
	"MixMerge/core/audio"
	"MixMerge/core/merge"
	"MixMerge/repository"
)

// APIHandler 处理所有API请求
type APIHandler struct {
	userRepo     repository.UserRepository
	audioRepo    repository.AudioFileRepository
	jobRepo      repository.MergeJobRepository
	orchestrator *merge.Orchestrator
	prober       *audio.Prober
	cfg          *config.Config
}

// NewAPIHandler 创建新的API处理器
func NewAPIHandler(
	userRepo repository.UserRepository,
	audioRepo repository.AudioFileRepository,
	jobRepo repository.MergeJobRepository,
	orchestrator *merge.Orchestrator,
	prober *audio.Prober,
	cfg *config.Config,
) *APIHandler {
	return &APIHandler{
		userRepo:     userRepo,
		audioRepo:    audioRepo,
		jobRepo:      jobRepo,
		orchestrator: orchestrator,
		prober:       prober,
		cfg:          cfg,
	}
}

// writeJSON 序列化响应体并设置Content-Type
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError 以统一结构返回错误信息
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// GetUserIDFromContext extracts the user ID from the request context
func GetUserIDFromContext(ctx context.Context) (int64, error) {
	userID, ok := ctx.Value("userID").(int64)
	if !ok {
		return 0, fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// GetUsernameFromContext extracts the username from the request context
func GetUsernameFromContext(ctx context.Context) (string, error) {
	username, ok := ctx.Value("username").(string)
	if !ok {
		return "", fmt.Errorf("username not found in context")
	}
	return username, nil
}
