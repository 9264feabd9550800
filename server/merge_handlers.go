package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"MixMerge/core/merge"
	"MixMerge/logger"
	"MixMerge/model"

	"github.com/gorilla/mux"
)

// CreateMergeJobRequest represents the merge job creation request body
type CreateMergeJobRequest struct {
	Name          string  `json:"name"`
	FileIDs       []int64 `json:"fileIds"`
	RemoveSilence bool    `json:"removeSilence"`
	OutputFormat  string  `json:"outputFormat"`
}

// CreateMergeJobHandler accepts a merge request and schedules it. The response
// carries the job in pending state; the client polls for progress afterwards.
func (h *APIHandler) CreateMergeJobHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req CreateMergeJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.OutputFormat == "" {
		req.OutputFormat = string(model.FormatMP3)
	}

	job, err := h.orchestrator.CreateJob(userID, req.Name, req.FileIDs, req.RemoveSilence, model.OutputFormat(req.OutputFormat))
	if err != nil {
		var vErr *merge.ValidationError
		if errors.As(err, &vErr) {
			writeError(w, http.StatusBadRequest, vErr.Error())
			return
		}
		logger.Error("创建合并任务失败", logger.Int64("userId", userID), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to create merge job")
		return
	}

	writeJSON(w, http.StatusCreated, job)
}

// GetMergeJobsHandler lists the caller's merge jobs, newest first.
func (h *APIHandler) GetMergeJobsHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	jobs, err := h.orchestrator.ListJobs(userID)
	if err != nil {
		logger.Error("查询合并任务列表失败", logger.Int64("userId", userID), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to list merge jobs")
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// GetMergeJobHandler returns a single merge job with live progress.
func (h *APIHandler) GetMergeJobHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	jobID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid job id")
		return
	}

	job, err := h.orchestrator.GetJob(userID, jobID)
	if err != nil {
		h.writeJobError(w, jobID, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// DeleteMergeJobHandler deletes a merge job and its output file.
func (h *APIHandler) DeleteMergeJobHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	jobID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid job id")
		return
	}

	if err := h.orchestrator.DeleteJob(userID, jobID); err != nil {
		h.writeJobError(w, jobID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": jobID})
}

// writeJobError 将编排层错误映射为HTTP状态码
func (h *APIHandler) writeJobError(w http.ResponseWriter, jobID int64, err error) {
	switch {
	case errors.Is(err, merge.ErrNotFound):
		writeError(w, http.StatusNotFound, "Merge job not found")
	case errors.Is(err, merge.ErrAccessDenied):
		writeError(w, http.StatusForbidden, "You do not own this merge job")
	default:
		logger.Error("合并任务操作失败", logger.Int64("jobId", jobID), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
