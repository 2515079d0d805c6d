package image

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// ErrImageSaveFailed - ошибка при сохранении файла.
var ErrImageSaveFailed = errors.New("image save failed")

// FileStore сохраняет изображения в локальную директорию, раздаваемую по ImagePublicBaseURL.
type FileStore struct {
	root          string
	publicBaseURL string
}

func NewFileStore(root, publicBaseURL string) (*FileStore, error) {
	if root == "" {
		return nil, errors.New("image save path (IMAGE_SAVE_PATH) is not configured")
	}
	if publicBaseURL == "" {
		return nil, errors.New("image public base URL (IMAGE_PUBLIC_BASE_URL) is not configured")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageSaveFailed, err)
	}
	return &FileStore{root: root, publicBaseURL: strings.TrimSuffix(publicBaseURL, "/")}, nil
}

// Root возвращает директорию хранилища.
func (s *FileStore) Root() string {
	return s.root
}

// Save записывает файл по относительному пути name и возвращает его публичный URL.
func (s *FileStore) Save(name string, data []byte) (string, error) {
	clean := filepath.Clean("/" + name)[1:]
	if clean == "" {
		return "", fmt.Errorf("%w: empty file name", ErrImageSaveFailed)
	}
	path := filepath.Join(s.root, clean)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrImageSaveFailed, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("%w: %v", ErrImageSaveFailed, err)
	}

	publicURL, err := url.JoinPath(s.publicBaseURL, strings.Split(filepath.ToSlash(clean), "/")...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrImageSaveFailed, err)
	}
	return publicURL, nil
}
