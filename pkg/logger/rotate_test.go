package logger

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRotatingWriterRotatesAndPrunes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit", "audit.log")

	w, err := newRotatingWriter(path, 1, 2, 0)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	defer w.Close()

	clock := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	w.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	chunk := []byte(strings.Repeat("x", 600*1024))
	for i := 0; i < 5; i++ {
		if _, err := w.Write(chunk); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	backups := w.backups()
	if len(backups) != 2 {
		t.Fatalf("expected 2 backups after pruning, got %v", backups)
	}
	if backups[0] <= backups[1] {
		t.Fatalf("expected newest first, got %v", backups)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat active file: %v", err)
	}
	if info.Size() != int64(len(chunk)) {
		t.Fatalf("expected active file to hold one chunk, got %d bytes", info.Size())
	}
}

func TestRotatingWriterIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log")
	if err := os.WriteFile(path+".bak", []byte("keep"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	w, err := newRotatingWriter(path, 1, 1, 0)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	defer w.Close()
	if got := w.backups(); len(got) != 0 {
		t.Fatalf("unexpected backups: %v", got)
	}
	if _, err := os.Stat(path + ".bak"); err != nil {
		t.Fatalf("foreign file removed: %v", err)
	}
}

func TestForSessionTagsLogger(t *testing.T) {
	if ForSession(nil, "s-1") == nil {
		t.Fatal("expected a logger")
	}
}

func TestRedactMasksSecrets(t *testing.T) {
	var buf strings.Builder
	l := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{ReplaceAttr: redact}))
	l.Info("custody", slog.String("app_secret", "s3cr3t"), slog.String("X-Privy-Authorization-Private-Key", "k"),
		slog.String("wallet", "addr"), slog.String("api_key", ""))

	out := buf.String()
	if strings.Contains(out, "s3cr3t") || strings.Contains(out, `"k"`) {
		t.Fatalf("secret leaked: %s", out)
	}
	if !strings.Contains(out, `"wallet":"addr"`) || !strings.Contains(out, Redacted) {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestOpenOutputsReservesStdout(t *testing.T) {
	if _, err := openOutputs([]string{"stdout"}, true); err == nil {
		t.Fatal("expected stdout to be rejected")
	}
	w, err := openOutputs(nil, true)
	if err != nil || w != os.Stderr {
		t.Fatalf("expected stderr default, got %v %v", w, err)
	}
}
