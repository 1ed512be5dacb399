package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	ErrNotFound = errors.New("file not found")
	ErrTooLarge = errors.New("file exceeds size limit")
)

const tempPrefix = ".pending-"

// Blob describes a file written by Save.
type Blob struct {
	Key  string
	Size int64
}

// Disk stores uploaded files in a single flat directory.
type Disk struct {
	dir string
	log *logrus.Logger
}

func NewDisk(dir string, log *logrus.Logger) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Disk{dir: dir, log: log}, nil
}

func (d *Disk) Dir() string { return d.dir }

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

const (
	maxNameLen = 100
	maxExtLen  = 16
)

// Sanitize reduces an uploaded file name to a safe base name of at most
// maxNameLen bytes. A short extension survives truncation.
func Sanitize(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, ".")
	if name == "" || name == "_" {
		return "file"
	}
	if len(name) > maxNameLen {
		ext := filepath.Ext(name)
		if len(ext) > maxExtLen {
			ext = ""
		}
		name = name[:maxNameLen-len(ext)] + ext
	}
	return name
}

// Save writes r under a new collision-free key. If more than max bytes
// arrive the partial file is removed and ErrTooLarge returned.
func (d *Disk) Save(ctx context.Context, originalName string, r io.Reader, max int64) (Blob, error) {
	key := uuid.NewString() + "-" + Sanitize(originalName)

	tmp, err := os.CreateTemp(d.dir, tempPrefix+"*")
	if err != nil {
		return Blob{}, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		if err := os.Remove(tmpName); err != nil && !errors.Is(err, fs.ErrNotExist) {
			d.log.Warnf("remove temp file %s: %v", tmpName, err)
		}
	}

	n, err := io.Copy(tmp, io.LimitReader(&ctxReader{ctx: ctx, r: r}, max+1))
	if err != nil {
		cleanup()
		return Blob{}, fmt.Errorf("write upload: %w", err)
	}
	if n > max {
		cleanup()
		return Blob{}, ErrTooLarge
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return Blob{}, fmt.Errorf("sync upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return Blob{}, fmt.Errorf("close upload: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(d.dir, key)); err != nil {
		cleanup()
		return Blob{}, fmt.Errorf("move upload into place: %w", err)
	}
	return Blob{Key: key, Size: n}, nil
}

// resolve maps a key to a path inside the directory. Keys with separators,
// parent references or a leading dot are rejected.
func (d *Disk) resolve(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") || key != filepath.Base(key) {
		return "", ErrNotFound
	}
	return filepath.Join(d.dir, key), nil
}

// Open returns the file and its info. The caller closes the file.
func (d *Disk) Open(key string) (*os.File, fs.FileInfo, error) {
	p, err := d.resolve(key)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, nil, ErrNotFound
	}
	return f, info, nil
}

// Exists reports whether a stored file is present for key.
func (d *Disk) Exists(key string) bool {
	p, err := d.resolve(key)
	if err != nil {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

// Remove deletes the file for key. A missing file is not an error.
func (d *Disk) Remove(key string) error {
	p, err := d.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Keys lists stored files, skipping in-flight temp files.
func (d *Disk) Keys() ([]string, error) {
	files, err := d.List()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(files))
	for _, f := range files {
		keys = append(keys, f.Key)
	}
	return keys, nil
}

// StoredFile is a file in the upload directory.
type StoredFile struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// List returns stored files sorted by key, skipping in-flight temp files.
func (d *Disk) List() ([]StoredFile, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, err
	}
	files := []StoredFile{}
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		files = append(files, StoredFile{Key: e.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Key < files[j].Key })
	return files, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
