package filesystem

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Error constants for better error handling
var (
	ErrFileNotFound      = fmt.Errorf("filesystem: file not found")
	ErrDirectoryNotFound = fmt.Errorf("filesystem: directory not found")
	ErrInvalidPath       = fmt.Errorf("filesystem: invalid path")
	ErrIsDirectory       = fmt.Errorf("filesystem: path is a directory")
)

// Filesystem is a read-only view of one directory tree. Names are slash
// separated and relative to the root; nothing outside the root is
// reachable.
type Filesystem interface {
	// Open returns the file and its size, for streaming.
	Open(name string) (io.ReadCloser, int64, error)
	ReadFile(name string) ([]byte, error)

	FileExists(name string) (bool, error)
	FileSize(name string) (int64, error)
	FileMetaData(name string) (os.FileInfo, error)

	DirectoryExists(name string) (bool, error)
	ListDirectory(name string) ([]os.FileInfo, error)

	Root() string
}

type localFileSystem struct {
	root   string
	logger *slog.Logger
}

// NewLocalFileSystem serves files below root, which must be an existing
// directory.
func NewLocalFileSystem(root string, logger *slog.Logger) (Filesystem, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDirectoryNotFound, root)
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidPath, root)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &localFileSystem{root: abs, logger: logger}, nil
}

func (filesystem *localFileSystem) Root() string {
	return filesystem.root
}

// resolve maps a slash separated name onto the root. Absolute names, NUL
// bytes and anything climbing out of the root are invalid.
func (filesystem *localFileSystem) resolve(name string) (string, error) {
	if strings.ContainsRune(name, 0) || strings.Contains(name, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, name)
	}
	cleaned := path.Clean(strings.TrimPrefix(name, "/"))
	if cleaned == "." {
		return filesystem.root, nil
	}
	if !filepath.IsLocal(filepath.FromSlash(cleaned)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, name)
	}
	return filepath.Join(filesystem.root, filepath.FromSlash(cleaned)), nil
}

func (filesystem *localFileSystem) Open(name string) (io.ReadCloser, int64, error) {
	full, err := filesystem.resolve(name)
	if err != nil {
		return nil, 0, err
	}

	file, err := os.Open(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, fmt.Errorf("%w: %s: %w", ErrFileNotFound, name, fs.ErrNotExist)
		}
		return nil, 0, err
	}

	info, err := file.Stat()
	if err != nil {
		filesystem.close(file)
		return nil, 0, err
	}
	if info.IsDir() {
		filesystem.close(file)
		return nil, 0, fmt.Errorf("%w: %s: %w", ErrIsDirectory, name, fs.ErrNotExist)
	}

	return file, info.Size(), nil
}

func (filesystem *localFileSystem) ReadFile(name string) ([]byte, error) {
	file, size, err := filesystem.Open(name)
	if err != nil {
		return nil, err
	}
	defer filesystem.close(file.(*os.File))

	content := make([]byte, size)
	if _, err := io.ReadFull(file, content); err != nil {
		return nil, err
	}
	return content, nil
}

func (filesystem *localFileSystem) FileExists(name string) (bool, error) {
	info, err := filesystem.stat(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

func (filesystem *localFileSystem) DirectoryExists(name string) (bool, error) {
	info, err := filesystem.stat(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

func (filesystem *localFileSystem) FileMetaData(name string) (os.FileInfo, error) {
	info, err := filesystem.stat(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s: %w", ErrFileNotFound, name, fs.ErrNotExist)
		}
		return nil, err
	}
	return info, nil
}

func (filesystem *localFileSystem) FileSize(name string) (int64, error) {
	info, err := filesystem.FileMetaData(name)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (filesystem *localFileSystem) ListDirectory(name string) ([]os.FileInfo, error) {
	full, err := filesystem.resolve(name)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDirectoryNotFound, name)
		}
		return nil, err
	}

	infos := make([]os.FileInfo, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}

	return infos, nil
}

func (filesystem *localFileSystem) stat(name string) (os.FileInfo, error) {
	full, err := filesystem.resolve(name)
	if err != nil {
		return nil, err
	}
	return os.Stat(full)
}

func (filesystem *localFileSystem) close(file *os.File) {
	if closeErr := file.Close(); closeErr != nil {
		filesystem.logger.Error("closing file error", "file", file.Name(), "error", closeErr)
	}
}

// ContentType guesses the media type from the extension, falling back to
// application/octet-stream.
func ContentType(name string) string {
	if ct := mime.TypeByExtension(GetFileExtension(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// GetFileExtension returns the file extension
func GetFileExtension(name string) string {
	return path.Ext(name)
}
