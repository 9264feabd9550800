package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Job 是轮询接口返回的任务视图
type Job struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	Progress   int    `json:"progress"`
	OutputFile string `json:"outputFile"`
}

// Terminal reports whether the job has reached a final state.
func (j Job) Terminal() bool {
	return j.Status == "completed" || j.Status == "failed"
}

// DefaultInterval 轮询周期
const DefaultInterval = 2 * time.Second

// Poller polls the merge job list until every watched job reaches a terminal
// state. Progress moves in coarse steps server-side, so a two second cadence
// is plenty.
type Poller struct {
	baseURL  string
	token    string
	interval time.Duration
	client   *http.Client

	// OnUpdate is invoked after every successful fetch with the current
	// snapshot of the watched jobs. Optional.
	OnUpdate func(jobs []Job)
}

// NewPoller creates a poller for the given server and JWT token.
func NewPoller(baseURL, token string) *Poller {
	return &Poller{
		baseURL:  baseURL,
		token:    token,
		interval: DefaultInterval,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// SetInterval overrides the polling cadence. Values below 500ms are clamped.
func (p *Poller) SetInterval(d time.Duration) {
	if d < 500*time.Millisecond {
		d = 500 * time.Millisecond
	}
	p.interval = d
}

// Wait polls until the jobs in jobIDs are all terminal, then returns their
// final snapshots. An empty jobIDs waits for every job visible to the token.
// The context bounds the whole wait.
func (p *Poller) Wait(ctx context.Context, jobIDs []int64) ([]Job, error) {
	watched := make(map[int64]bool, len(jobIDs))
	for _, id := range jobIDs {
		watched[id] = true
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		jobs, err := p.fetch(ctx)
		if err != nil {
			return nil, err
		}

		snapshot := jobs
		if len(watched) > 0 {
			snapshot = snapshot[:0:0]
			for _, j := range jobs {
				if watched[j.ID] {
					snapshot = append(snapshot, j)
				}
			}
			if len(snapshot) < len(watched) {
				return nil, fmt.Errorf("watched job disappeared from server")
			}
		}

		if p.OnUpdate != nil {
			p.OnUpdate(snapshot)
		}

		done := true
		for _, j := range snapshot {
			if !j.Terminal() {
				done = false
				break
			}
		}
		if done {
			return snapshot, nil
		}

		select {
		case <-ctx.Done():
			return snapshot, ctx.Err()
		case <-ticker.C:
		}
	}
}

// fetch 拉取一次任务列表
func (p *Poller) fetch(ctx context.Context) ([]Job, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/merge/jobs", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to poll merge jobs: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}

	var jobs []Job
	if err := json.NewDecoder(resp.Body).Decode(&jobs); err != nil {
		return nil, fmt.Errorf("failed to decode merge job list: %w", err)
	}
	return jobs, nil
}
