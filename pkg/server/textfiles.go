package server

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// TextFiles holds cached text file contents shown at points in a player's
// connection. Each file may carry &-color escapes and newlines; it is wrapped
// per client when sent.
type TextFiles struct {
	mu    sync.RWMutex
	dir   string
	Motd  string // motd.txt: chat lines after login
	Rules string // rules.txt: /rules output
	Full  string // full.txt: kick reason when the server is full
}

// trackedFiles maps filenames to their TextFiles field descriptions.
var trackedFiles = []struct {
	Name string
	Desc string
}{
	{"motd.txt", "post-login MOTD"},
	{"rules.txt", "server rules"},
	{"full.txt", "server full"},
}

func (tf *TextFiles) GetMotd() string  { tf.mu.RLock(); defer tf.mu.RUnlock(); return tf.Motd }
func (tf *TextFiles) GetRules() string { tf.mu.RLock(); defer tf.mu.RUnlock(); return tf.Rules }
func (tf *TextFiles) GetFull() string  { tf.mu.RLock(); defer tf.mu.RUnlock(); return tf.Full }

// loadFile reads a single text file, returning empty string on any error.
// Windows line endings and the final newline are dropped.
func loadFile(dir, name string) string {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return ""
	}
	s := strings.ReplaceAll(string(data), "\r\n", "\n")
	return strings.TrimRight(s, "\n")
}

// LoadTextFiles reads text files from dir and returns a populated TextFiles.
// Missing or empty files result in empty strings (no error).
func LoadTextFiles(dir string) *TextFiles {
	tf := &TextFiles{dir: dir}
	tf.Reload()
	return tf
}

// Reload re-reads every tracked file and returns the count of non-empty ones.
func (tf *TextFiles) Reload() int {
	if tf.dir == "" {
		return 0
	}
	motd := loadFile(tf.dir, "motd.txt")
	rules := loadFile(tf.dir, "rules.txt")
	full := loadFile(tf.dir, "full.txt")

	tf.mu.Lock()
	tf.Motd, tf.Rules, tf.Full = motd, rules, full
	tf.mu.Unlock()

	count := 0
	for _, v := range []string{motd, rules, full} {
		if v != "" {
			count++
		}
	}
	log.Info().Int("count", count).Str("dir", tf.dir).Msg("loaded text files")
	return count
}

// Watch reloads the text files whenever a tracked file in the directory is
// written or created. It returns once the watcher is running; the watcher
// stops when ctx is cancelled. onChange, if set, is called after each reload.
func (tf *TextFiles) Watch(ctx context.Context, onChange func(name string)) error {
	if tf.dir == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(tf.dir); err != nil {
		watcher.Close()
		return err
	}

	tracked := make(map[string]string)
	for _, f := range trackedFiles {
		tracked[f.Name] = f.Desc
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				name := filepath.Base(event.Name)
				desc, ok := tracked[name]
				if !ok {
					continue
				}
				log.Info().Str("file", name).Str("desc", desc).Msg("text file changed")
				tf.Reload()
				if onChange != nil {
					onChange(name)
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("text file watcher error")
			}
		}
	}()

	log.Info().Str("dir", tf.dir).Msg("watching text directory for changes")
	return nil
}
