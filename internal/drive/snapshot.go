package drive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

var ErrFolderNotFound = errors.New("drive folder not found")

// FetchOptions selects the folder to snapshot. FolderPath wins over FolderID.
type FetchOptions struct {
	FolderID   string
	FolderPath string
	Dir        string
}

// Fetcher downloads input tables from a Drive folder into a local directory.
type Fetcher struct {
	src Source
}

func NewFetcher(src Source) *Fetcher {
	return &Fetcher{src: src}
}

// Fetch downloads every CSV and XLSX file in the folder and returns the local
// paths. Workbooks are kept as-is; the ingest loader reads their sheets.
func (f *Fetcher) Fetch(ctx context.Context, opts FetchOptions) ([]string, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("download dir is required")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create download dir: %w", err)
	}

	folderID := opts.FolderID
	if opts.FolderPath != "" {
		id, err := f.src.FindFolderByPath(ctx, opts.FolderPath)
		if err != nil {
			return nil, err
		}
		folderID = id
	}

	files, err := f.src.ListFiles(ctx, folderID)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if file.IsFolder() || !isInputFile(file.Name) {
			continue
		}

		local := filepath.Join(opts.Dir, filepath.Base(file.Name))
		if err := f.download(ctx, file, local); err != nil {
			return nil, err
		}
		paths = append(paths, local)
	}

	log.Info().
		Str("folder", folderID).
		Int("files", len(paths)).
		Str("dir", opts.Dir).
		Msg("drive: snapshot fetched")
	return paths, nil
}

func (f *Fetcher) download(ctx context.Context, file *File, local string) error {
	out, err := os.Create(local)
	if err != nil {
		return fmt.Errorf("failed to create local file %s: %w", local, err)
	}
	if err := f.src.DownloadFile(ctx, file.ID, out); err != nil {
		out.Close()
		_ = os.Remove(local)
		return fmt.Errorf("failed to download %s: %w", file.Name, err)
	}
	return out.Close()
}

func isInputFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".xlsx":
		return true
	}
	return false
}
