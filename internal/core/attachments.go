package core

import (
	"bytes"
	"context"
	"eegrecords/internal/blob"
	"eegrecords/pkg/domain"
	"errors"
	"io"
	"mime"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FileKind selects the key prefix and extension allow-list for stored bytes.
type FileKind string

const (
	// FileKindResult stores raw examination files under eeg_files/.
	FileKindResult FileKind = "eeg_files"
	// FileKindVisualization stores analysis visualizations under eeg_visuals/.
	FileKindVisualization FileKind = "eeg_visuals"
)

// FileStore is the file storage capability used by the service and the seeder.
// Names are checked against the kind's allow-list before any byte is written.
type FileStore struct {
	blobs blob.Store
}

// NewFileStore wraps a blob backend.
func NewFileStore(blobs blob.Store) *FileStore {
	return &FileStore{blobs: blobs}
}

// DefaultURLExpiry bounds the lifetime of URLs handed out by URL.
const DefaultURLExpiry = 15 * time.Minute

// FileKinds lists every key prefix the file store writes under.
func FileKinds() []FileKind { return []FileKind{FileKindResult, FileKindVisualization} }

// Store writes data under a fresh key and returns its handle.
func (f *FileStore) Store(ctx context.Context, kind FileKind, data []byte, name string) (FileHandle, error) {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	switch kind {
	case FileKindResult:
		if err := domain.ValidateResultFileName(name); err != nil {
			return FileHandle{}, err
		}
	case FileKindVisualization:
		if err := domain.ValidateVisualizationName(name); err != nil {
			return FileHandle{}, err
		}
	default:
		return FileHandle{}, &domain.StorageError{Op: "put", Err: errors.New("unknown file kind " + string(kind))}
	}
	key := string(kind) + "/" + uuid.NewString() + "_" + name
	_, err := f.blobs.Put(ctx, key, bytes.NewReader(data), blob.PutOptions{
		ContentType: contentType(name),
		Metadata:    map[string]string{"original-name": name},
	})
	if err != nil {
		return FileHandle{}, &domain.StorageError{Op: "put", Key: key, Err: err}
	}
	return FileHandle{Key: key, Name: name}, nil
}

// Exists reports whether the handle resolves to stored bytes.
func (f *FileStore) Exists(ctx context.Context, handle FileHandle) (bool, error) {
	if handle.Key == "" {
		return false, nil
	}
	if _, err := f.blobs.Head(ctx, handle.Key); err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return false, nil
		}
		return false, &domain.StorageError{Op: "head", Key: handle.Key, Err: err}
	}
	return true, nil
}

// Open streams the stored bytes. The caller closes the reader.
func (f *FileStore) Open(ctx context.Context, handle FileHandle) (blob.Info, io.ReadCloser, error) {
	info, rc, err := f.blobs.Get(ctx, handle.Key)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return blob.Info{}, nil, &domain.StorageError{Op: "get", Key: handle.Key, Err: domain.NotFoundError{Entity: "file", ID: handle.Key}}
		}
		return blob.Info{}, nil, &domain.StorageError{Op: "get", Key: handle.Key, Err: err}
	}
	return info, rc, nil
}

// Remove deletes the bytes behind handle. Absent keys are not an error.
func (f *FileStore) Remove(ctx context.Context, handle FileHandle) error {
	if handle.Key == "" {
		return nil
	}
	if _, err := f.blobs.Delete(ctx, handle.Key); err != nil {
		return &domain.StorageError{Op: "delete", Key: handle.Key, Err: err}
	}
	return nil
}

// URL returns a time-limited GET URL for the handle. Backends that cannot
// sign URLs fail with a StorageError wrapping blob.ErrUnsupported.
func (f *FileStore) URL(ctx context.Context, handle FileHandle, expiry time.Duration) (string, error) {
	if expiry <= 0 {
		expiry = DefaultURLExpiry
	}
	u, err := f.blobs.PresignURL(ctx, handle.Key, blob.SignedURLOptions{Method: "GET", Expiry: expiry})
	if err != nil {
		return "", &domain.StorageError{Op: "presign", Key: handle.Key, Err: err}
	}
	return u, nil
}

// List returns the stored objects under kind's prefix, sorted by key.
func (f *FileStore) List(ctx context.Context, kind FileKind) ([]blob.Info, error) {
	prefix := string(kind) + "/"
	infos, err := f.blobs.List(ctx, prefix)
	if err != nil {
		return nil, &domain.StorageError{Op: "list", Key: prefix, Err: err}
	}
	return infos, nil
}

func contentType(name string) string {
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// writeLog tracks the keys written during one transaction so they can be
// removed again when the transaction does not commit.
type writeLog struct {
	files *FileStore
	mu    sync.Mutex
	keys  []FileHandle
}

func (f *FileStore) begin() *writeLog { return &writeLog{files: f} }

func (w *writeLog) store(ctx context.Context, kind FileKind, data []byte, name string) (FileHandle, error) {
	handle, err := w.files.Store(ctx, kind, data, name)
	if err != nil {
		return FileHandle{}, err
	}
	w.mu.Lock()
	w.keys = append(w.keys, handle)
	w.mu.Unlock()
	return handle, nil
}

// rollback removes every tracked key and joins the failures.
func (w *writeLog) rollback(ctx context.Context) error {
	w.mu.Lock()
	keys := w.keys
	w.keys = nil
	w.mu.Unlock()
	var errs []error
	for _, handle := range keys {
		if err := w.files.Remove(ctx, handle); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *writeLog) written() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.keys)
}
