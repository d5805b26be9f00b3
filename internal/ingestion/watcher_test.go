package ingestion

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func TestAccept(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	write := func(name string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		return p
	}
	sub := filepath.Join(dir, "nested.pdf")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		ev   fsnotify.Event
		want bool
	}{
		{name: "create pdf", ev: fsnotify.Event{Name: write("a.pdf"), Op: fsnotify.Create}, want: true},
		{name: "write docx", ev: fsnotify.Event{Name: write("b.DOCX"), Op: fsnotify.Write}, want: true},
		{name: "chmod ignored", ev: fsnotify.Event{Name: write("c.pdf"), Op: fsnotify.Chmod}},
		{name: "remove ignored", ev: fsnotify.Event{Name: filepath.Join(dir, "gone.pdf"), Op: fsnotify.Remove}},
		{name: "unsupported", ev: fsnotify.Event{Name: write("d.txt"), Op: fsnotify.Create}},
		{name: "hidden", ev: fsnotify.Event{Name: write(".e.pdf"), Op: fsnotify.Create}},
		{name: "office lock file", ev: fsnotify.Event{Name: write("~$f.docx"), Op: fsnotify.Create}},
		{name: "directory", ev: fsnotify.Event{Name: sub, Op: fsnotify.Create}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := accept(tc.ev); got != tc.want {
				t.Errorf("accept(%v) = %v, want %v", tc.ev, got, tc.want)
			}
		})
	}
}

func TestWatcher_HandlesNewAndExistingFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	existing := filepath.Join(dir, "existing.pdf")
	if err := os.WriteFile(existing, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	got := make(chan string, 10)
	w := NewWatcher(dir, func(_ context.Context, path string) error {
		got <- path
		return nil
	}, WatcherConfig{Settle: 100 * time.Millisecond, Initial: true})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	expect := func(want string) {
		t.Helper()
		select {
		case p := <-got:
			if p != want {
				t.Errorf("handled %q, want %q", p, want)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}
	expect(existing)

	// Give the watcher time to register before writing.
	time.Sleep(50 * time.Millisecond)
	added := filepath.Join(dir, "added.docx")
	if err := os.WriteFile(added, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	_ = os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0o644)
	expect(added)

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v", err)
	}
	select {
	case p := <-got:
		t.Errorf("unexpected extra handling of %q", p)
	default:
	}
}
