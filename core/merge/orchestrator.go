package merge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"MixMerge/cache"
	"MixMerge/core/audio"
	"MixMerge/core/utils"
	"MixMerge/logger"
	"MixMerge/model"
	"MixMerge/repository"
	"MixMerge/storage"
)

// Encoder is the audio backend the orchestrator runs jobs against.
type Encoder interface {
	Encode(ctx context.Context, req audio.EncodeRequest) error
}

// task 一个待执行的合并任务快照
type task struct {
	jobID         int64
	inputs        []string // resolved local paths, concatenation order
	outputFormat  model.OutputFormat
	removeSilence bool
}

// Orchestrator owns the merge job state machine. Jobs are created pending,
// picked up by a bounded worker pool and driven to completed or failed.
// Once an encode starts there is no cancellation: deleting the job only
// removes the record, and late status updates become no-ops.
type Orchestrator struct {
	jobs    repository.MergeJobRepository
	files   repository.AudioFileRepository
	encoder Encoder

	audioDir string // where uploaded source files live
	outDir   string // where merge outputs are written

	tasks       chan *task
	workerCount int
	wg          sync.WaitGroup
	stopChan    chan struct{}
	stopOnce    sync.Once
}

// NewOrchestrator creates an Orchestrator with the given worker pool size.
func NewOrchestrator(
	jobs repository.MergeJobRepository,
	files repository.AudioFileRepository,
	encoder Encoder,
	audioDir, outDir string,
	workers int,
) *Orchestrator {
	if workers <= 0 {
		workers = 2
	}
	return &Orchestrator{
		jobs:        jobs,
		files:       files,
		encoder:     encoder,
		audioDir:    audioDir,
		outDir:      outDir,
		tasks:       make(chan *task, 64),
		workerCount: workers,
		stopChan:    make(chan struct{}),
	}
}

// Start 启动工作协程池
func (o *Orchestrator) Start() {
	for i := 0; i < o.workerCount; i++ {
		o.wg.Add(1)
		go o.worker()
	}
	logger.Info("合并任务工作池已启动", logger.Int("workers", o.workerCount))
}

// Stop drains the workers. Queued jobs that never started stay pending.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		close(o.stopChan)
	})
	o.wg.Wait()
}

// CreateJob validates the request, persists the job in pending state with
// its ordered file links, and schedules background execution. The returned
// job is always pending; the caller never waits for encoding.
func (o *Orchestrator) CreateJob(userID int64, name string, fileIDs []int64, removeSilence bool, format model.OutputFormat) (*model.MergeJob, error) {
	if len(fileIDs) < 2 {
		return nil, &ValidationError{Msg: "at least 2 audio files are required for a merge"}
	}
	if !model.ValidFormat(format) {
		return nil, &ValidationError{Msg: fmt.Sprintf("unsupported output format %q", format)}
	}
	if strings.TrimSpace(name) == "" {
		name = "Untitled Merge"
	}

	inputs := make([]string, 0, len(fileIDs))
	for _, id := range fileIDs {
		file, err := o.files.GetAudioFileByID(id)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve audio file %d: %w", id, err)
		}
		if file == nil {
			return nil, &ValidationError{Msg: fmt.Sprintf("audio file %d does not exist", id)}
		}
		if file.UploadedBy != userID {
			return nil, &ValidationError{Msg: fmt.Sprintf("audio file %d does not exist", id)}
		}
		inputs = append(inputs, filepath.Join(o.audioDir, file.Filename))
	}

	job := &model.MergeJob{
		Name:          name,
		Status:        model.JobStatusPending,
		RemoveSilence: removeSilence,
		OutputFormat:  format,
		CreatedBy:     userID,
	}
	jobID, err := o.jobs.CreateMergeJob(job, fileIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to persist merge job: %w", err)
	}

	created, err := o.jobs.GetMergeJobByID(jobID)
	if err != nil {
		return nil, err
	}

	t := &task{
		jobID:         jobID,
		inputs:        inputs,
		outputFormat:  format,
		removeSilence: removeSilence,
	}
	// 入队不阻塞请求路径
	go func() {
		select {
		case o.tasks <- t:
		case <-o.stopChan:
		}
	}()

	logger.Info("合并任务已创建",
		logger.Int64("jobId", jobID),
		logger.Int64("userId", userID),
		logger.Int("files", len(fileIDs)),
		logger.String("format", string(format)),
		logger.Bool("removeSilence", removeSilence))
	return created, nil
}

// GetJob returns a job after an ownership check.
func (o *Orchestrator) GetJob(userID, jobID int64) (*model.MergeJob, error) {
	job, err := o.jobs.GetMergeJobByID(jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrNotFound
	}
	if job.CreatedBy != userID {
		return nil, ErrAccessDenied
	}
	o.overlayProgress(job)
	return job, nil
}

// ListJobs returns the user's jobs, newest first, with live progress.
func (o *Orchestrator) ListJobs(userID int64) ([]*model.MergeJob, error) {
	jobs, err := o.jobs.GetMergeJobsByUserID(userID)
	if err != nil {
		return nil, err
	}
	for _, job := range jobs {
		o.overlayProgress(job)
	}
	return jobs, nil
}

// DeleteJob removes the job record, its file links and the output file if
// present. In-flight encode work is not stopped; its late updates hit a
// missing row and are ignored.
func (o *Orchestrator) DeleteJob(userID, jobID int64) error {
	job, err := o.jobs.GetMergeJobByID(jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return ErrNotFound
	}
	if job.CreatedBy != userID {
		return ErrAccessDenied
	}

	if err := o.jobs.DeleteMergeJob(jobID); err != nil {
		return err
	}

	if job.OutputFile != "" {
		o.removeOutput(job.OutputFile)
	}
	if err := cache.DeleteJobProgress(context.Background(), jobID); err != nil {
		logger.Debug("删除进度缓存失败", logger.Int64("jobId", jobID), logger.ErrorField(err))
	}

	logger.Info("合并任务已删除", logger.Int64("jobId", jobID), logger.Int64("userId", userID))
	return nil
}

// worker 工作协程，单任务单通道执行
func (o *Orchestrator) worker() {
	defer o.wg.Done()

	for {
		select {
		case t := <-o.tasks:
			o.run(t)
		case <-o.stopChan:
			return
		}
	}
}

// run drives one job through processing to a terminal state. Any failure,
// including a panic from the encoder, becomes a failed status update; the
// worker lane itself never dies.
func (o *Orchestrator) run(t *task) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("合并任务执行发生panic",
				logger.Int64("jobId", t.jobID),
				logger.Any("panic", r))
			o.finishFailed(t.jobID, 0)
		}
	}()

	if err := o.jobs.MarkProcessing(t.jobID); err != nil {
		logger.Error("无法将任务标记为处理中", logger.Int64("jobId", t.jobID), logger.ErrorField(err))
		o.finishFailed(t.jobID, 0)
		return
	}
	o.pushProgress(t.jobID, model.JobStatusProcessing, 0)

	outputFile := utils.GenerateStoredFilename(string(t.outputFormat))
	outputPath := filepath.Join(o.outDir, outputFile)

	lastPersisted := 0
	lastSeen := 0
	onProgress := func(percent int) {
		lastSeen = percent
		o.pushProgress(t.jobID, model.JobStatusProcessing, percent)
		// 数据库按5%步进落盘，避免每个百分点一次写
		if percent-lastPersisted >= 5 || percent == 100 {
			lastPersisted = percent
			if err := o.jobs.UpdateProgress(t.jobID, percent); err != nil {
				logger.Warn("更新任务进度失败", logger.Int64("jobId", t.jobID), logger.ErrorField(err))
			}
		}
	}

	err := o.encoder.Encode(context.Background(), audio.EncodeRequest{
		Inputs:        t.inputs,
		OutputPath:    outputPath,
		Format:        string(t.outputFormat),
		RemoveSilence: t.removeSilence,
		OnProgress:    onProgress,
	})
	if err != nil {
		logger.Error("合并任务执行失败",
			logger.Int64("jobId", t.jobID),
			logger.ErrorField(err))
		o.finishFailed(t.jobID, lastSeen)
		return
	}

	// 先同步上传到对象存储再标记完成，completed 一旦可见输出就必须可下载；
	// 上传失败时本地文件仍由 /static 的磁盘兜底提供服务
	upCtx, upCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	if err := storage.UploadFile(upCtx, storage.MergedPrefix+outputFile, outputPath, storage.ContentTypeFor(outputFile)); err != nil {
		logger.Warn("上传输出文件到对象存储失败",
			logger.Int64("jobId", t.jobID),
			logger.String("object", storage.MergedPrefix+outputFile),
			logger.ErrorField(err))
	}
	upCancel()

	if err := o.jobs.MarkCompleted(t.jobID, outputFile, time.Now()); err != nil {
		logger.Error("无法将任务标记为完成", logger.Int64("jobId", t.jobID), logger.ErrorField(err))
		return
	}
	o.pushProgress(t.jobID, model.JobStatusCompleted, 100)
	logger.Info("合并任务完成",
		logger.Int64("jobId", t.jobID),
		logger.String("outputFile", outputFile))
}

func (o *Orchestrator) finishFailed(jobID int64, lastProgress int) {
	if err := o.jobs.MarkFailed(jobID); err != nil {
		logger.Error("无法将任务标记为失败", logger.Int64("jobId", jobID), logger.ErrorField(err))
		return
	}
	o.pushProgress(jobID, model.JobStatusFailed, lastProgress)
}

// pushProgress writes the hot progress snapshot to Redis. Best-effort: the
// database row stays authoritative.
func (o *Orchestrator) pushProgress(jobID int64, status model.JobStatus, percent int) {
	err := cache.SetJobProgress(context.Background(), cache.JobProgress{
		JobID:    jobID,
		Status:   string(status),
		Progress: percent,
	})
	if err != nil {
		logger.Debug("写入进度缓存失败", logger.Int64("jobId", jobID), logger.ErrorField(err))
	}
}

// overlayProgress merges the Redis snapshot over the stored row for
// processing jobs, so pollers see fresher numbers than the 5% DB steps.
func (o *Orchestrator) overlayProgress(job *model.MergeJob) {
	if job.IsTerminal() {
		return
	}
	snap, err := cache.GetJobProgress(context.Background(), job.ID)
	if err != nil || snap == nil {
		return
	}
	if snap.Progress > job.Progress {
		job.Progress = snap.Progress
	}
	if snap.Status == string(model.JobStatusProcessing) && job.Status == model.JobStatusPending {
		job.Status = model.JobStatusProcessing
	}
}

// removeOutput deletes the output blob locally and from the object store.
// Failures are surfaced in the log, never swallowed silently.
func (o *Orchestrator) removeOutput(outputFile string) {
	localPath := filepath.Join(o.outDir, outputFile)
	if err := os.Remove(localPath); err != nil && !os.IsNotExist(err) {
		logger.Warn("删除本地输出文件失败，磁盘状态与记录可能不一致",
			logger.String("path", localPath),
			logger.ErrorField(err))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := storage.RemoveObject(ctx, storage.MergedPrefix+outputFile); err != nil {
		logger.Warn("删除对象存储中的输出文件失败",
			logger.String("object", storage.MergedPrefix+outputFile),
			logger.ErrorField(err))
	}
}
