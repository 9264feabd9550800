package storage

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"MixMerge/logger"

	"github.com/fsnotify/fsnotify"
)

// Mirror watches a local output directory and uploads finished files to the
// bucket, so serving survives loss of the local disk. ffmpeg writes outputs
// locally first; the mirror picks them up once writes settle.
type Mirror struct {
	dir     string
	prefix  string
	watcher *fsnotify.Watcher
	pending map[string]*time.Timer
	mu      sync.Mutex
	done    chan struct{}
}

// settleDelay 等待文件写入稳定后再上传
const settleDelay = 2 * time.Second

// NewMirror creates a mirror for dir; uploaded objects get the given prefix.
func NewMirror(dir, prefix string) (*Mirror, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}
	return &Mirror{
		dir:     dir,
		prefix:  prefix,
		watcher: watcher,
		pending: make(map[string]*time.Timer),
		done:    make(chan struct{}),
	}, nil
}

// Start runs the watch loop until Stop is called.
func (m *Mirror) Start() {
	go m.loop()
}

func (m *Mirror) loop() {
	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				m.schedule(event.Name)
			}
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("输出目录监听出错", logger.ErrorField(err))
		case <-m.done:
			return
		}
	}
}

// schedule (re)arms the settle timer for a path; each new write pushes the
// upload back until the file stops changing.
func (m *Mirror) schedule(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.pending[path]; ok {
		t.Reset(settleDelay)
		return
	}
	m.pending[path] = time.AfterFunc(settleDelay, func() {
		m.mu.Lock()
		delete(m.pending, path)
		m.mu.Unlock()
		m.upload(path)
	})
}

func (m *Mirror) upload(path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}

	name := filepath.Base(path)
	objectName := m.prefix + name
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := UploadFile(ctx, objectName, path, ContentTypeFor(name)); err != nil {
		logger.Warn("镜像上传输出文件失败",
			logger.String("object", objectName),
			logger.ErrorField(err))
		return
	}
	logger.Info("输出文件已镜像到对象存储",
		logger.String("object", objectName),
		logger.Int64("size", info.Size()))
}

// Stop shuts down the watch loop.
func (m *Mirror) Stop() error {
	close(m.done)
	return m.watcher.Close()
}
