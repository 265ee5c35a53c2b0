package zkconfig

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/vocdoni/anondonation/types"
)

// DirFetcher reads artifacts from a local directory laid out like an asset
// server. Keys compiled under their bare circuit name (keys/donate.verifier)
// are found when the full id path does not exist.
type DirFetcher struct {
	root string
}

// NewDirFetcher returns a fetcher rooted at dir.
func NewDirFetcher(dir string) (*DirFetcher, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("asset directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("asset directory %s is not a directory", dir)
	}
	return &DirFetcher{root: dir}, nil
}

// Fetch implements Fetcher.
func (f *DirFetcher) Fetch(ctx context.Context, p string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clean := path.Clean("/" + p)[1:]
	if clean == "" {
		return nil, fmt.Errorf("%w: empty path", ErrAssetNotFound)
	}
	data, err := os.ReadFile(filepath.Join(f.root, filepath.FromSlash(clean)))
	if errors.Is(err, fs.ErrNotExist) {
		alias, ok := aliasPath(clean)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, clean)
		}
		data, err = os.ReadFile(filepath.Join(f.root, filepath.FromSlash(alias)))
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, clean)
		}
	}
	if err != nil {
		return nil, err
	}
	if isMarkup("", data) {
		return nil, misrouted(clean, "")
	}
	return data, nil
}

// aliasPath maps keys/<tag>#<name>.<ext> to keys/<name>.<ext>.
func aliasPath(p string) (string, bool) {
	dir, file := path.Split(p)
	if dir != "keys/" {
		return "", false
	}
	ext := path.Ext(file)
	id := types.CircuitID(strings.TrimSuffix(file, ext))
	if id.Tag() == "" || id.Name() == string(id) {
		return "", false
	}
	return dir + id.Name() + ext, true
}
