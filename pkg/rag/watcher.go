package rag

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// FileWatcher reports changed documents under a root directory. Events for
// the same file are debounced; onChange receives the slash-separated path
// relative to the root.
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	root     string
	matcher  *Matcher
	logger   zerolog.Logger
	onChange func(rel string)
	debounce time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
	stopCh chan struct{}
	done   chan struct{}
}

// NewFileWatcher watches root and every non-ignored directory below it.
func NewFileWatcher(root string, matcher *Matcher, logger zerolog.Logger, onChange func(rel string)) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	fw := &FileWatcher{
		watcher:  watcher,
		root:     root,
		matcher:  matcher,
		logger:   logger,
		onChange: onChange,
		debounce: 500 * time.Millisecond,
		timers:   make(map[string]*time.Timer),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}

	if err := fw.addTree(root); err != nil {
		watcher.Close()
		return nil, err
	}

	go fw.run()
	return fw, nil
}

// SetDebounce changes the quiet period before onChange fires. Call it before
// any event arrives.
func (fw *FileWatcher) SetDebounce(d time.Duration) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.debounce = d
}

// Stop stops the watcher and cancels pending callbacks
func (fw *FileWatcher) Stop() error {
	close(fw.stopCh)
	err := fw.watcher.Close()
	<-fw.done

	fw.mu.Lock()
	for _, t := range fw.timers {
		t.Stop()
	}
	fw.timers = map[string]*time.Timer{}
	fw.mu.Unlock()
	return err
}

func (fw *FileWatcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if rel, err := filepath.Rel(fw.root, path); err == nil && rel != "." {
			if fw.matcher.Ignored(rel + string(filepath.Separator)) {
				return filepath.SkipDir
			}
		}
		return fw.watcher.Add(path)
	})
}

func (fw *FileWatcher) run() {
	defer close(fw.done)

	for {
		select {
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handle(event)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Error().Err(err).Msg("File watcher error")

		case <-fw.stopCh:
			return
		}
	}
}

func (fw *FileWatcher) handle(event fsnotify.Event) {
	rel, err := filepath.Rel(fw.root, event.Name)
	if err != nil {
		return
	}

	if event.Has(fsnotify.Create) {
		if isDir, err := statDir(event.Name); err == nil && isDir {
			if err := fw.addTree(event.Name); err != nil {
				fw.logger.Warn().Err(err).Str("dir", rel).Msg("Failed to watch new directory")
			}
			return
		}
	}

	if !fw.matcher.Include(rel) {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	fw.logger.Debug().
		Str("file", rel).
		Str("op", event.Op.String()).
		Msg("File change detected")

	fw.schedule(filepath.ToSlash(rel))
}

func (fw *FileWatcher) schedule(rel string) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	select {
	case <-fw.stopCh:
		return
	default:
	}

	if t, ok := fw.timers[rel]; ok {
		t.Stop()
	}
	fw.timers[rel] = time.AfterFunc(fw.debounce, func() {
		fw.mu.Lock()
		delete(fw.timers, rel)
		fw.mu.Unlock()
		fw.onChange(rel)
	})
}

func statDir(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}
