package server

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"MixMerge/config"
	"MixMerge/core/audio"
	"MixMerge/core/auth"
	"MixMerge/core/merge"
	"MixMerge/db"
	"MixMerge/logger"
	"MixMerge/model"
	"MixMerge/repository"
	"MixMerge/storage"

	"github.com/gorilla/mux"
)

// Start initializes all backing services and runs the HTTP server until a
// shutdown signal arrives.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.InfoLevel,
		OutputPath: "logs/mixmerge.log",
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})

	auth.SetJWTSecret(cfg.JWTSecret)

	// 初始化 MinIO 客户端
	if err := storage.InitMinio(cfg); err != nil {
		log.Fatalf("Failed to initialize MinIO: %v", err)
	}

	// Connect to the database
	if err := db.ConnectDB(cfg); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.CloseDB()

	// Connect to Redis
	if err := db.ConnectRedis(cfg); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer db.CloseRedis()
	logger.Info("Redis 连接成功")

	// GORM 仅用于建表迁移，数据访问仍走 database/sql
	if err := db.ConnectGormDB(cfg); err != nil {
		log.Fatalf("Failed to connect GORM: %v", err)
	}
	defer db.CloseGormDB()
	if err := db.AutoMigrateModels(&model.User{}, &model.AudioFile{}, &model.MergeJob{}, &model.MergeJobFile{}); err != nil {
		log.Fatalf("Failed to migrate models: %v", err)
	}

	// Create necessary directories if they don't exist
	ensureDirExists(cfg.UploadDir)
	ensureDirExists(cfg.AudioDir)
	ensureDirExists(cfg.MergedDir)

	userRepo := repository.NewMySQLUserRepository(db.DB)
	audioRepo := repository.NewMySQLAudioFileRepository(db.DB)
	jobRepo := repository.NewMySQLMergeJobRepository(db.DB)

	prober := audio.NewProber(cfg.FFmpegPath)
	encoder := audio.NewConcatEncoder(cfg.FFmpegPath, cfg.AudioBitrate, audio.SilencePolicy{
		GapSeconds:     cfg.SilenceGapSec,
		NoiseThreshold: cfg.SilenceNoise,
	})

	orchestrator := merge.NewOrchestrator(jobRepo, audioRepo, encoder, cfg.AudioDir, cfg.MergedDir, cfg.MergeWorkers)
	orchestrator.Start()
	defer orchestrator.Stop()

	// 输出目录镜像到对象存储
	mirror, err := storage.NewMirror(cfg.MergedDir, storage.MergedPrefix)
	if err != nil {
		log.Fatalf("Failed to create output mirror: %v", err)
	}
	mirror.Start()
	defer mirror.Stop()

	apiHandler := NewAPIHandler(userRepo, audioRepo, jobRepo, orchestrator, prober, cfg)

	// 使用 gorilla/mux 创建路由器
	router := mux.NewRouter()

	// 添加 CORS 中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range")
			w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range")
			w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// 用户认证相关的API端点
	router.HandleFunc("/api/auth/login", apiHandler.LoginHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/register", apiHandler.RegisterHandler).Methods(http.MethodPost)

	// 音频文件相关的API端点
	router.HandleFunc("/api/audio/upload", apiHandler.AuthMiddleware(apiHandler.UploadAudioHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/audio/files", apiHandler.AuthMiddleware(apiHandler.GetAudioFilesHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/audio/files/{id}", apiHandler.AuthMiddleware(apiHandler.DeleteAudioFileHandler)).Methods(http.MethodDelete)

	// 合并任务相关的API端点
	router.HandleFunc("/api/merge/jobs", apiHandler.AuthMiddleware(apiHandler.CreateMergeJobHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/merge/jobs", apiHandler.AuthMiddleware(apiHandler.GetMergeJobsHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/merge/jobs/ws", apiHandler.MergeProgressWSHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/merge/jobs/{id}", apiHandler.AuthMiddleware(apiHandler.GetMergeJobHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/merge/jobs/{id}", apiHandler.AuthMiddleware(apiHandler.DeleteMergeJobHandler)).Methods(http.MethodDelete)

	// 对象存储文件服务
	router.HandleFunc("/static/{object:.*}", apiHandler.StaticHandler).Methods(http.MethodGet)

	// 设置服务器超时
	server := &http.Server{
		Addr:         ":8080",
		Handler:      router,
		ReadTimeout:  5 * time.Minute, // large uploads
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	// 创建一个通道来接收操作系统信号
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// 在goroutine中启动服务器
	go func() {
		log.Println("Server starting on :8080...")
		log.Println("Upload audio via POST to http://localhost:8080/api/audio/upload")
		log.Println("Create merge jobs via POST to http://localhost:8080/api/merge/jobs")
		log.Println("Poll merge jobs via GET from http://localhost:8080/api/merge/jobs")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-stop
	logger.Info("收到退出信号，开始优雅关闭")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("服务器关闭失败", logger.ErrorField(err))
	}
	logger.Info("服务器已退出")
}

// ensureDirExists creates a directory if it doesn't already exist.
func ensureDirExists(dirPath string) {
	if _, err := os.Stat(dirPath); os.IsNotExist(err) {
		if err := os.MkdirAll(dirPath, 0755); err != nil {
			log.Fatalf("Failed to create directory %s: %v", dirPath, err)
		}
	}
}
