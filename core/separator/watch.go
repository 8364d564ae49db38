package separator

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"stemdeck/logger"
)

// stableAfter is how long a written file must stay quiet before it is
// reported; the tools write stems incrementally.
const stableAfter = 200 * time.Millisecond

// outputWatcher follows a separation tool's output tree and reports
// each finished stem file. The tools create nested folders (model, then
// track), so new directories are added to the watch as they appear;
// files already inside a newly created directory count as new output.
type outputWatcher struct {
	watcher *fsnotify.Watcher
	report  Progress
	done    chan struct{}
}

// newOutputWatcher watches dir and the directories already under it.
// Pre-existing files are never reported, only output produced while
// the watcher runs.
func newOutputWatcher(dir string, report Progress) (*outputWatcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	walkErr := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return fw.Add(p)
		}
		return nil
	})
	if walkErr != nil {
		fw.Close()
		return nil, walkErr
	}

	w := &outputWatcher{
		watcher: fw,
		report:  report,
		done:    make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *outputWatcher) loop() {
	defer close(w.done)

	pending := make(map[string]time.Time)
	reported := make(map[string]bool)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	flush := func(path string) {
		if reported[path] {
			return
		}
		reported[path] = true
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		w.report(name, path)
	}

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				// Closing: everything still pending is on disk, report it.
				for path := range pending {
					flush(path)
				}
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				w.watchNewTree(event.Name, pending)
				continue
			}
			if isStemFile(event.Name) {
				pending[event.Name] = time.Now()
			}

		case <-ticker.C:
			now := time.Now()
			for path, last := range pending {
				if now.Sub(last) < stableAfter {
					continue
				}
				delete(pending, path)
				flush(path)
			}
		}
	}
}

// watchNewTree adds a freshly created directory (and anything already
// inside it) to the watch. Files found during the walk were written
// before the watch landed, so they go straight into pending.
func (w *outputWatcher) watchNewTree(dir string, pending map[string]time.Time) {
	walkErr := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return w.watcher.Add(p)
		}
		if isStemFile(p) {
			pending[p] = time.Now()
		}
		return nil
	})
	if walkErr != nil {
		logger.Warn("watch new output folder failed",
			logger.String("dir", dir),
			logger.ErrorField(walkErr))
	}
}

// close stops watching and waits for the loop to drain its reports.
func (w *outputWatcher) close() {
	w.watcher.Close()
	<-w.done
}
