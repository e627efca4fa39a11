package expense

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Storage keeps the uploaded receipt files
type Storage interface {
	// Save writes data under name and returns the name to retrieve it by
	Save(name string, data []byte) (string, error)

	// Get reads a stored file
	Get(name string) ([]byte, error)

	// Delete removes a stored file
	Delete(name string) error
}

// LocalStorage implements the Storage interface on a local directory
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates the upload directory if needed
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// path resolves name inside the base directory, refusing anything that
// would escape it
func (l *LocalStorage) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	return filepath.Join(l.basePath, name), nil
}

// Save writes a file to the upload directory
func (l *LocalStorage) Save(name string, data []byte) (string, error) {
	path, err := l.path(name)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return name, nil
}

// Get reads a file from the upload directory
func (l *LocalStorage) Get(name string) ([]byte, error) {
	path, err := l.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// Delete removes a file from the upload directory
func (l *LocalStorage) Delete(name string) error {
	path, err := l.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}
