package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"MixMerge/db"

	"github.com/go-redis/redis/v8"
)

// JobProgress 表示合并任务的实时进度快照
// 数据库行是权威状态，Redis 只作为轮询接口的热数据覆盖层
type JobProgress struct {
	JobID     int64  `json:"jobId"`
	Status    string `json:"status"`
	Progress  int    `json:"progress"`
	UpdatedAt int64  `json:"updatedAt"` // Unix时间戳
}

// progressTTL 进度键的过期时间，任务完成后由数据库兜底
const progressTTL = 10 * time.Minute

// GetProgressKey 根据任务ID生成进度的Redis键
func GetProgressKey(jobID int64) string {
	return fmt.Sprintf("merge:progress:%d", jobID)
}

// SetJobProgress 写入任务进度快照，失败不影响主流程
func SetJobProgress(ctx context.Context, p JobProgress) error {
	if db.RedisClient == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	p.UpdatedAt = time.Now().Unix()
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal job progress: %w", err)
	}

	return db.RedisClient.Set(ctx, GetProgressKey(p.JobID), data, progressTTL).Err()
}

// GetJobProgress 读取任务进度快照，键不存在时返回 nil
func GetJobProgress(ctx context.Context, jobID int64) (*JobProgress, error) {
	if db.RedisClient == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}

	data, err := db.RedisClient.Get(ctx, GetProgressKey(jobID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job progress: %w", err)
	}

	var p JobProgress
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job progress: %w", err)
	}
	return &p, nil
}

// DeleteJobProgress 删除任务进度快照（任务删除时调用）
func DeleteJobProgress(ctx context.Context, jobID int64) error {
	if db.RedisClient == nil {
		return nil
	}
	return db.RedisClient.Del(ctx, GetProgressKey(jobID)).Err()
}
