package server

import (
	"net/http"
	"time"

	"MixMerge/core/auth"
	"MixMerge/logger"

	"github.com/gorilla/websocket"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsPushInterval 任务快照的推送周期
const wsPushInterval = 2 * time.Second

// MergeProgressWSHandler pushes the caller's merge job list over a websocket
// every two seconds. Browsers cannot set an Authorization header on websocket
// upgrades, so the JWT rides in the token query parameter instead.
func (h *APIHandler) MergeProgressWSHandler(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusUnauthorized, "Missing token")
		return
	}
	claims, err := auth.ParseToken(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid token")
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("WebSocket升级失败", logger.ErrorField(err))
		return
	}
	defer conn.Close()

	logger.Info("进度推送连接已建立",
		logger.Int64("userId", claims.UserID),
		logger.String("remote", r.RemoteAddr))

	// 读协程只用于感知客户端断开
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			logger.Debug("进度推送连接已断开", logger.Int64("userId", claims.UserID))
			return
		case <-ticker.C:
			jobs, err := h.orchestrator.ListJobs(claims.UserID)
			if err != nil {
				logger.Warn("查询任务列表失败，跳过本次推送",
					logger.Int64("userId", claims.UserID),
					logger.ErrorField(err))
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(jobs); err != nil {
				logger.Debug("写入进度快照失败", logger.Int64("userId", claims.UserID), logger.ErrorField(err))
				return
			}
		}
	}
}
