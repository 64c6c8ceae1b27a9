package nativelog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/neperienx/bookpipeline/internal/pkg/prettylog"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	EnvLogDir       = "BP_LOG_DIR"
	EnvRotateMaxMB  = "BP_LOG_ROTATE_MAX_MB"
	EnvRotateKeep   = "BP_LOG_ROTATE_KEEP"
	defaultSubBuf   = 128
	defaultFilePerm = 0o644
	defaultDirPerm  = 0o755
)

// ResolveDir resolves native log directory path.
func ResolveDir() string {
	if dir := strings.TrimSpace(os.Getenv(EnvLogDir)); dir != "" {
		return dir
	}

	candidates := make([]string, 0, 4)
	if strings.EqualFold(strings.TrimSpace(os.Getenv("NODE_ENV")), "development") {
		candidates = append(candidates, filepath.Join(".", "tmp", "log"))
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		candidates = append(candidates, filepath.Join(home, ".bookpipeline", "log"))
	}
	candidates = append(candidates, filepath.Join(".", "logs"))
	candidates = append(candidates, filepath.Join(".", "tmp", "log"))

	for _, dir := range candidates {
		info, err := os.Stat(dir)
		if err == nil && info.IsDir() {
			return dir
		}
	}
	if len(candidates) > 0 {
		return candidates[0]
	}
	return filepath.Join(".", "logs")
}

// TodayFilename returns daily native log filename.
func TodayFilename(now time.Time) string {
	return "stdout_" + now.Format("1-2-06") + ".log"
}

// TodayFilePath returns today's native log file path.
func TodayFilePath(now time.Time) string {
	return filepath.Join(ResolveDir(), TodayFilename(now))
}

func rotateMaxBytes() int64 {
	raw := strings.TrimSpace(os.Getenv(EnvRotateMaxMB))
	if raw == "" {
		return 0
	}
	mb, err := strconv.Atoi(raw)
	if err != nil || mb <= 0 {
		return 0
	}
	return int64(mb) * 1024 * 1024
}

func rotateKeep() int {
	raw := strings.TrimSpace(os.Getenv(EnvRotateKeep))
	if raw == "" {
		return 5
	}
	keep, err := strconv.Atoi(raw)
	if err != nil || keep < 1 {
		return 5
	}
	return keep
}

// Writer writes logs into the native daily log file and pushes realtime frames.
type Writer struct {
	mu  sync.Mutex
	dir string
}

// NewWriter creates a native log writer.
func NewWriter() (*Writer, error) {
	dir := ResolveDir()
	if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
		return nil, err
	}
	_ = os.Setenv(EnvLogDir, dir)
	return &Writer{dir: dir}, nil
}

func (w *Writer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	path := filepath.Join(w.dir, TodayFilename(time.Now()))

	var n int
	err := withProcessLogLock(func() error {
		w.rotateIfNeeded(path)

		file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, defaultFilePerm)
		if err != nil {
			return err
		}
		var writeErr error
		n, writeErr = file.Write(p)
		closeErr := file.Close()
		if writeErr != nil {
			return writeErr
		}
		return closeErr
	})

	if n > 0 {
		Publish(string(p[:n]))
	}
	return n, err
}

// rotateIfNeeded moves the active file aside once it crosses the size cap.
func (w *Writer) rotateIfNeeded(path string) {
	maxBytes := rotateMaxBytes()
	if maxBytes <= 0 {
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.Size() < maxBytes {
		return
	}

	rotated := fmt.Sprintf("%s.%d", path, time.Now().UnixMilli())
	if err := os.Rename(path, rotated); err != nil {
		return
	}

	matches, err := filepath.Glob(path + ".*")
	if err != nil || len(matches) <= rotateKeep() {
		return
	}
	sort.Strings(matches)
	for _, old := range matches[:len(matches)-rotateKeep()] {
		_ = os.Remove(old)
	}
}

func (w *Writer) Sync() error {
	return nil
}

// SnapshotFilesSinceStartup lists log files written since the process started,
// oldest first, ending with today's file. Used for log tail catch-up.
func SnapshotFilesSinceStartup(now time.Time) ([]string, error) {
	dir := ResolveDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	start := processStartTime
	if start.IsZero() {
		start = now
	}
	startDay := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, "stdout_") || !strings.HasSuffix(name, ".log") {
			continue
		}
		day, err := time.ParseInLocation("1-2-06", strings.TrimSuffix(strings.TrimPrefix(name, "stdout_"), ".log"), start.Location())
		if err != nil {
			continue
		}
		if day.Before(startDay) {
			continue
		}
		paths = append(paths, filepath.Join(dir, name))
	}
	sort.Strings(paths)
	return paths, nil
}

type streamHub struct {
	mu          sync.RWMutex
	nextID      int
	subscribers map[int]chan string
}

func newStreamHub() *streamHub {
	return &streamHub{
		subscribers: make(map[int]chan string),
	}
}

var globalStreamHub = newStreamHub()

// Subscribe subscribes realtime native log frames.
func Subscribe(buffer int) (int, <-chan string) {
	if buffer <= 0 {
		buffer = defaultSubBuf
	}
	return globalStreamHub.subscribe(buffer)
}

// Unsubscribe unsubscribes realtime native log frames.
func Unsubscribe(id int) {
	globalStreamHub.unsubscribe(id)
}

// Publish pushes a native log frame to all current subscribers.
func Publish(message string) {
	if message == "" {
		return
	}
	globalStreamHub.publish(message)
}

func (h *streamHub) subscribe(buffer int) (int, <-chan string) {
	ch := make(chan string, buffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subscribers[id] = ch
	h.mu.Unlock()

	return id, ch
}

func (h *streamHub) unsubscribe(id int) {
	h.mu.Lock()
	ch, ok := h.subscribers[id]
	if ok {
		delete(h.subscribers, id)
	}
	h.mu.Unlock()

	if ok {
		close(ch)
	}
}

func (h *streamHub) publish(message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subscribers {
		select {
		case ch <- message:
		default:
		}
	}
}

var processStartTime = time.Now()

// NewZapLogger creates a zap logger with a pretty console core teed with the
// native log file core that also feeds the realtime stream.
func NewZapLogger() (*zap.Logger, error) {
	writer, err := NewWriter()
	if err != nil {
		return nil, err
	}

	level := zap.NewAtomicLevelAt(zap.InfoLevel)

	consoleEncoder := prettylog.NewEncoder(prettylog.ShouldColor())
	fileEncoder := prettylog.NewEncoder(false)

	core := zapcore.NewTee(
		zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stdout), level),
		zapcore.NewCore(fileEncoder, zapcore.AddSync(writer), level),
	)

	logger := zap.New(core, zap.AddStacktrace(zapcore.ErrorLevel))
	_ = zap.RedirectStdLog(logger)
	return logger, nil
}
