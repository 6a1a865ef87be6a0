package panel

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/gekko3d/fieldsim"
)

// DefaultDebounce coalesces the burst of events editors emit on save.
const DefaultDebounce = 50 * time.Millisecond

// FilePanel watches a WGSL snippet on disk. The parent directory is watched
// rather than the file so editors that save by rename keep working.
type FilePanel struct {
	path     string
	logger   fieldsim.Logger
	debounce time.Duration
	watcher  *fsnotify.Watcher

	mu       sync.Mutex
	code     string
	consumed string

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

type FileOption func(*FilePanel)

func WithLogger(l fieldsim.Logger) FileOption {
	return func(p *FilePanel) { p.logger = l }
}

func WithDebounce(d time.Duration) FileOption {
	return func(p *FilePanel) { p.debounce = d }
}

// NewFilePanel reads path and starts watching it. The initial content counts
// as a change so the first poll loads it.
func NewFilePanel(path string, opts ...FileOption) (*FilePanel, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("panel: %w", err)
	}
	p := &FilePanel{
		path:     abs,
		debounce: DefaultDebounce,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = fieldsim.OrNop(p.logger)

	code, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("panel: read kernel: %w", err)
	}
	p.code = string(code)

	p.watcher, err = fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("panel: create watcher: %w", err)
	}
	if err := p.watcher.Add(filepath.Dir(abs)); err != nil {
		p.watcher.Close()
		return nil, fmt.Errorf("panel: watch %s: %w", filepath.Dir(abs), err)
	}

	p.wg.Add(1)
	go p.loop()
	p.logger.Infof("panel: watching %s", abs)
	return p, nil
}

func (p *FilePanel) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != p.path {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

func (p *FilePanel) loop() {
	defer p.wg.Done()

	timer := time.NewTimer(0)
	<-timer.C
	defer timer.Stop()

	for {
		select {
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if p.relevant(event) {
				p.logger.Debugf("panel: %s %s", event.Op, event.Name)
				timer.Reset(p.debounce)
			}
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Errorf("panel: watcher: %v", err)
		case <-timer.C:
			p.reload()
		case <-p.done:
			return
		}
	}
}

func (p *FilePanel) reload() {
	code, err := os.ReadFile(p.path)
	if err != nil {
		// a rename-based save may not have landed yet; the next event retries
		p.logger.Warnf("panel: read %s: %v", p.path, err)
		return
	}
	p.mu.Lock()
	p.code = string(code)
	p.mu.Unlock()
}

// CodeSnippetChanged reports whether the file content differs from what was
// returned at the previous call.
func (p *FilePanel) CodeSnippetChanged() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.code == p.consumed {
		return false
	}
	p.consumed = p.code
	return true
}

func (p *FilePanel) CodeSnippet() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.code
}

func (p *FilePanel) Path() string { return p.path }

// Close stops the watcher goroutine. Safe to call more than once.
func (p *FilePanel) Close() error {
	var err error
	p.once.Do(func() {
		close(p.done)
		err = p.watcher.Close()
		p.wg.Wait()
	})
	return err
}
