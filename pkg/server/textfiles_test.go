package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadTextFiles(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "motd.txt"), []byte("&eWelcome!\r\nHave fun.\r\n"), 0644)
	os.WriteFile(filepath.Join(dir, "rules.txt"), []byte("1. Be nice\n"), 0644)

	tf := LoadTextFiles(dir)
	if got := tf.GetMotd(); got != "&eWelcome!\nHave fun." {
		t.Errorf("GetMotd() = %q", got)
	}
	if got := tf.GetRules(); got != "1. Be nice" {
		t.Errorf("GetRules() = %q", got)
	}
	if got := tf.GetFull(); got != "" {
		t.Errorf("GetFull() = %q, want empty for a missing file", got)
	}
	if n := tf.Reload(); n != 2 {
		t.Errorf("Reload() = %d, want 2", n)
	}
}

func TestTextFilesWatch(t *testing.T) {
	dir := t.TempDir()
	tf := LoadTextFiles(dir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changed := make(chan string, 8)
	if err := tf.Watch(ctx, func(name string) { changed <- name }); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0644)
	os.WriteFile(filepath.Join(dir, "rules.txt"), []byte("No griefing"), 0644)

	// Create and Write may arrive as separate events; wait for the content.
	timeout := time.After(5 * time.Second)
	for tf.GetRules() != "No griefing" {
		select {
		case name := <-changed:
			if name != "rules.txt" {
				t.Errorf("changed file = %q, want rules.txt", name)
			}
		case <-timeout:
			t.Fatalf("GetRules() = %q after change", tf.GetRules())
		}
	}
}

func TestTextFilesNoDir(t *testing.T) {
	tf := LoadTextFiles("")
	if err := tf.Watch(context.Background(), nil); err != nil {
		t.Errorf("Watch with no dir = %v", err)
	}
	if tf.GetMotd() != "" {
		t.Error("GetMotd() not empty")
	}
}
