package fs

import (
	"context"
	"eegrecords/internal/blob/core"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFilesystemPutGetHeadDelete(t *testing.T) {
	ctx := context.Background()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if store.Driver() != core.DriverFilesystem {
		t.Fatalf("unexpected driver %s", store.Driver())
	}
	info, err := store.Put(ctx, "eeg_files/abc_recording.edf", strings.NewReader("payload"), core.PutOptions{ContentType: "application/octet-stream", Metadata: map[string]string{"session": "s1"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != int64(len("payload")) || info.ETag == "" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := store.Put(ctx, "eeg_files/abc_recording.edf", strings.NewReader("again"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	head, err := store.Head(ctx, "eeg_files/abc_recording.edf")
	if err != nil || head.Metadata["session"] != "s1" {
		t.Fatalf("head: %+v %v", head, err)
	}
	_, rc, err := store.Get(ctx, "eeg_files/abc_recording.edf")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "payload" {
		t.Fatalf("unexpected content %q", data)
	}
	deleted, err := store.Delete(ctx, "eeg_files/abc_recording.edf")
	if err != nil || !deleted {
		t.Fatalf("delete: %v %v", deleted, err)
	}
	deleted, err = store.Delete(ctx, "eeg_files/abc_recording.edf")
	if err != nil || deleted {
		t.Fatalf("expected second delete to report absence: %v %v", deleted, err)
	}
	if _, err := store.Head(ctx, "eeg_files/abc_recording.edf"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := store.Get(ctx, "missing.txt"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on get, got %v", err)
	}
}

func TestFilesystemRejectsInvalidKeys(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for _, key := range []string{"", "   ", "/abs/path", "../escape", "a/../../b", "file.meta"} {
		if _, err := store.Put(context.Background(), key, strings.NewReader("x"), core.PutOptions{}); !errors.Is(err, core.ErrInvalidKey) {
			t.Fatalf("expected invalid key error for %q, got %v", key, err)
		}
	}
	if _, err := store.PresignURL(context.Background(), "../x", core.SignedURLOptions{}); !errors.Is(err, core.ErrInvalidKey) {
		t.Fatalf("expected invalid key on presign, got %v", err)
	}
}

func TestFilesystemListAndPresign(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := New(root)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for _, key := range []string{"eeg_visuals/b.png", "eeg_files/b.csv", "eeg_files/a.edf"} {
		if _, err := store.Put(ctx, key, strings.NewReader(key), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	infos, err := store.List(ctx, "eeg_files/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 || infos[0].Key != "eeg_files/a.edf" || infos[1].Key != "eeg_files/b.csv" {
		t.Fatalf("unexpected listing %+v", infos)
	}
	all, _ := store.List(ctx, "")
	if len(all) != 3 {
		t.Fatalf("expected 3 blobs, got %d", len(all))
	}
	url, err := store.PresignURL(ctx, "eeg_files/a.edf", core.SignedURLOptions{})
	if err != nil || !strings.HasSuffix(url, "/eeg_files/a.edf") {
		t.Fatalf("presign: %s %v", url, err)
	}
	if _, err := store.PresignURL(ctx, "eeg_files/a.edf", core.SignedURLOptions{Method: "PUT"}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected unsupported method, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "eeg_files", "a.edf.meta")); err != nil {
		t.Fatalf("expected metadata sidecar: %v", err)
	}
}

func TestFilesystemDefaultsAndCancellation(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	store, err := New("")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if store.root != DefaultRoot {
		t.Fatalf("expected default root, got %s", store.root)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Put(ctx, "k.txt", strings.NewReader("x"), core.PutOptions{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestFilesystemCorruptSidecar(t *testing.T) {
	root := t.TempDir()
	store, err := New(root)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "bad.txt.meta"), []byte("{"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := store.Head(context.Background(), "bad.txt"); err == nil || errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected decode error, got %v", err)
	}
	if _, err := store.List(context.Background(), ""); err == nil {
		t.Fatalf("expected list to surface decode error")
	}
}
