package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// LocalStorageProvider implements ArtifactStore for the local file system
type LocalStorageProvider struct {
	basePath    string
	permissions os.FileMode
}

// NewLocalStorageProvider creates a new LocalStorageProvider instance
func NewLocalStorageProvider(config *LocalConfig) (*LocalStorageProvider, error) {
	if config == nil {
		return nil, NewValidationError("local storage configuration is required", nil)
	}

	if err := config.Validate(); err != nil {
		return nil, NewValidationError("invalid local storage configuration", err)
	}

	return &LocalStorageProvider{
		basePath:    config.BasePath,
		permissions: config.Permissions,
	}, nil
}

// List returns the regular files directly inside dir, sorted by name
func (lsp *LocalStorageProvider) List(ctx context.Context, dir string) ([]ArtifactInfo, error) {
	fullDir, err := lsp.resolve(dir)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(fullDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewNotFoundError(fmt.Sprintf("directory '%s' does not exist", fullDir), err)
		}
		if os.IsPermission(err) {
			return nil, NewPermissionError(fmt.Sprintf("cannot read directory '%s'", fullDir), err)
		}
		return nil, NewStorageError(fmt.Sprintf("failed to list directory '%s'", fullDir), err)
	}

	var infos []ArtifactInfo
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.Type().IsRegular() {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			// Removed between ReadDir and Info
			continue
		}
		infos = append(infos, ArtifactInfo{
			Name:    entry.Name(),
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
		})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// Open opens an artifact for reading
func (lsp *LocalStorageProvider) Open(ctx context.Context, dir, name string) (io.ReadCloser, error) {
	fullPath, err := lsp.resolveFile(dir, name)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewNotFoundError(fmt.Sprintf("artifact '%s' not found", fullPath), err)
		}
		return nil, NewStorageError(fmt.Sprintf("failed to open artifact '%s'", fullPath), err)
	}
	return file, nil
}

// Delete removes a single artifact file
func (lsp *LocalStorageProvider) Delete(ctx context.Context, dir, name string) error {
	fullPath, err := lsp.resolveFile(dir, name)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			return NewNotFoundError(fmt.Sprintf("artifact '%s' not found", fullPath), err)
		}
		if os.IsPermission(err) {
			return NewPermissionError(fmt.Sprintf("cannot delete artifact '%s'", fullPath), err)
		}
		return NewStorageError(fmt.Sprintf("failed to delete artifact '%s'", fullPath), err)
	}
	return nil
}

// Exists reports whether dir exists as a directory
func (lsp *LocalStorageProvider) Exists(ctx context.Context, dir string) (bool, error) {
	fullDir, err := lsp.resolve(dir)
	if err != nil {
		return false, err
	}

	fi, err := os.Stat(fullDir)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, NewStorageError(fmt.Sprintf("failed to stat '%s'", fullDir), err)
	}
	return fi.IsDir(), nil
}

// Name identifies the store
func (lsp *LocalStorageProvider) Name() string {
	return "local:" + lsp.basePath
}

// GetBasePath returns the root directory of the store
func (lsp *LocalStorageProvider) GetBasePath() string {
	return lsp.basePath
}

// HealthCheck verifies that the base directory is present and readable
func (lsp *LocalStorageProvider) HealthCheck(ctx context.Context) error {
	fi, err := os.Stat(lsp.basePath)
	if err != nil {
		return NewStorageError(fmt.Sprintf("Directory (local): '%s' does not exist", lsp.basePath), err)
	}
	if !fi.IsDir() {
		return NewStorageError(fmt.Sprintf("'%s' is not a directory", lsp.basePath), nil)
	}
	return nil
}

// resolve maps a slash separated relative dir onto the base path. Cleaning
// against "/" keeps ".." segments from escaping the base path.
func (lsp *LocalStorageProvider) resolve(dir string) (string, error) {
	if strings.ContainsRune(dir, '\\') {
		return "", NewValidationError(fmt.Sprintf("invalid directory '%s'", dir), nil)
	}
	cleaned := path.Clean("/" + dir)
	return filepath.Join(lsp.basePath, filepath.FromSlash(cleaned)), nil
}

func (lsp *LocalStorageProvider) resolveFile(dir, name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", NewValidationError(fmt.Sprintf("invalid artifact name '%s'", name), nil)
	}
	fullDir, err := lsp.resolve(dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(fullDir, name), nil
}
