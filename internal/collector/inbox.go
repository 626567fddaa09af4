package collector

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/fsnotify/fsnotify"
)

// InboxItem 收件箱中的一份文本
type InboxItem struct {
	Path    string
	Name    string
	Text    string
	ModTime time.Time
}

// InboxCollector 收件箱采集器：监控目录中新写入的文本文件
type InboxCollector struct {
	watcher     *fsnotify.Watcher
	dir         string
	archiveDir  string
	extensions  map[string]bool
	maxBytes    int64
	eventChan   chan *InboxItem
	stopChan    chan struct{}
	running     bool
	closed      bool
	mu          sync.Mutex
	stopOnce    sync.Once
	pending     map[string]*time.Timer // 防抖：文件写完后再读取
	debounceDur time.Duration
}

// InboxConfig 配置
type InboxConfig struct {
	Dir        string   // 收件箱目录
	ArchiveDir string   // 处理完成的文件移动到这里，默认 Dir/processed
	Extensions []string // 监控的文件扩展名
	BufferSize int
	DebounceMs int
	MaxBytes   int64 // 超过大小的文件忽略
}

// DefaultInboxConfig 默认配置
func DefaultInboxConfig() *InboxConfig {
	return &InboxConfig{
		Dir:        "./data/inbox",
		Extensions: []string{".txt", ".md"},
		BufferSize: 64,
		DebounceMs: 800,
		MaxBytes:   64 * 1024,
	}
}

// NewInboxCollector 创建收件箱采集器（目录不存在时创建）
func NewInboxCollector(cfg *InboxConfig) (*InboxCollector, error) {
	def := DefaultInboxConfig()
	if cfg == nil {
		cfg = def
	}
	if cfg.Dir == "" {
		cfg.Dir = def.Dir
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = def.Extensions
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.DebounceMs <= 0 {
		cfg.DebounceMs = def.DebounceMs
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = def.MaxBytes
	}

	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("获取绝对路径失败: %w", err)
	}
	archive := cfg.ArchiveDir
	if archive == "" {
		archive = filepath.Join(dir, "processed")
	}
	for _, d := range []string{dir, archive} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, fmt.Errorf("创建收件箱目录失败: %w", err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("创建文件监控器失败: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("监控收件箱失败: %w", err)
	}

	extMap := make(map[string]bool)
	for _, ext := range cfg.Extensions {
		extMap[strings.ToLower(ext)] = true
	}

	return &InboxCollector{
		watcher:     watcher,
		dir:         dir,
		archiveDir:  archive,
		extensions:  extMap,
		maxBytes:    cfg.MaxBytes,
		eventChan:   make(chan *InboxItem, cfg.BufferSize),
		stopChan:    make(chan struct{}),
		pending:     make(map[string]*time.Timer),
		debounceDur: time.Duration(cfg.DebounceMs) * time.Millisecond,
	}, nil
}

// Dir 收件箱目录
func (c *InboxCollector) Dir() string {
	return c.dir
}

// Start 启动采集，先补发目录中已有的文件
func (c *InboxCollector) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	c.mu.Unlock()
	slog.Info("收件箱采集器启动", "dir", c.dir)

	c.scanExisting()
	go c.watchLoop(ctx)
	return nil
}

// Stop 停止采集
func (c *InboxCollector) Stop() error {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		if !c.running {
			c.mu.Unlock()
			_ = c.watcher.Close()
			return
		}
		c.running = false
		c.mu.Unlock()

		close(c.stopChan)
		_ = c.watcher.Close()
		slog.Info("收件箱采集器已停止")
	})
	return nil
}

// Events 返回事件通道（采集器停止后关闭）
func (c *InboxCollector) Events() <-chan *InboxItem {
	return c.eventChan
}

// MarkDone 处理完成后把文件移动到归档目录，避免重复录入
func (c *InboxCollector) MarkDone(item *InboxItem) error {
	target := filepath.Join(c.archiveDir, fmt.Sprintf("%s-%s", time.Now().Format("20060102-150405"), item.Name))
	if err := os.Rename(item.Path, target); err != nil {
		return fmt.Errorf("归档文件失败: %w", err)
	}
	return nil
}

// watchLoop 监控循环
func (c *InboxCollector) watchLoop(ctx context.Context) {
	defer c.shutdown()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopChan:
			return
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			c.handleFsEvent(event)
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("文件监控错误", "error", err)
		}
	}
}

// shutdown 停止所有防抖定时器并关闭事件通道
func (c *InboxCollector) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for path, t := range c.pending {
		t.Stop()
		delete(c.pending, path)
	}
	c.closed = true
	close(c.eventChan)
}

func (c *InboxCollector) accepts(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return false
	}
	return c.extensions[strings.ToLower(filepath.Ext(base))]
}

// handleFsEvent 处理文件系统事件
func (c *InboxCollector) handleFsEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if !c.accepts(event.Name) {
		return
	}

	path := event.Name
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if t, ok := c.pending[path]; ok {
		t.Reset(c.debounceDur)
		return
	}
	c.pending[path] = time.AfterFunc(c.debounceDur, func() {
		c.mu.Lock()
		delete(c.pending, path)
		c.mu.Unlock()
		c.emit(path)
	})
}

// scanExisting 补发启动前已经放入的文件（按修改时间排序）
func (c *InboxCollector) scanExisting() {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		slog.Warn("读取收件箱失败", "dir", c.dir, "error", err)
		return
	}
	type file struct {
		path string
		mod  time.Time
	}
	var files []file
	for _, e := range entries {
		if e.IsDir() || !c.accepts(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, file{path: filepath.Join(c.dir, e.Name()), mod: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mod.Before(files[j].mod) })
	for _, f := range files {
		c.emit(f.path)
	}
}

// emit 读取文件并发送事件
func (c *InboxCollector) emit(path string) {
	item, err := c.read(path)
	if err != nil {
		slog.Debug("读取收件箱文件失败", "file", path, "error", err)
		return
	}
	if item == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.eventChan <- item:
		slog.Debug("收件箱事件已发送", "file", item.Name, "chars", utf8.RuneCountInString(item.Text))
	default:
		slog.Warn("收件箱缓冲区已满，丢弃事件", "file", path)
	}
}

func (c *InboxCollector) read(path string) (*InboxItem, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, nil
	}
	if info.Size() > c.maxBytes {
		slog.Warn("收件箱文件过大，已忽略", "file", path, "size", info.Size())
		return nil, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取文件失败: %w", err)
	}
	if !utf8.Valid(content) {
		return nil, fmt.Errorf("文件不是 UTF-8 文本")
	}
	text := strings.TrimSpace(strings.TrimPrefix(string(content), "\uFEFF"))
	if text == "" {
		return nil, nil
	}
	return &InboxItem{
		Path:    path,
		Name:    filepath.Base(path),
		Text:    text,
		ModTime: info.ModTime(),
	}, nil
}
