// Package drive pulls pricing input snapshots from a Google Drive folder.
package drive

import (
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const folderMimeType = "application/vnd.google-apps.folder"

// Source is the subset of Drive the snapshot fetcher and handler need.
type Source interface {
	ListFiles(ctx context.Context, folderID string) ([]*File, error)
	DownloadFile(ctx context.Context, fileID string, w io.Writer) error
	FindFolderByPath(ctx context.Context, path string) (string, error)
}

type Service struct {
	srv *drive.Service
}

// NewService authenticates with a service account key.
func NewService(ctx context.Context, credentialsJSON string) (*Service, error) {
	if strings.TrimSpace(credentialsJSON) == "" {
		return nil, fmt.Errorf("drive credentials are not configured")
	}

	cfg, err := google.JWTConfigFromJSON([]byte(credentialsJSON), drive.DriveReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse drive credentials: %w", err)
	}

	srv, err := drive.NewService(ctx, option.WithHTTPClient(cfg.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create drive client: %w", err)
	}
	return &Service{srv: srv}, nil
}

type File struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	MimeType     string `json:"mimeType"`
	ModifiedTime string `json:"modifiedTime,omitempty"`
	Size         int64  `json:"size,string,omitempty"`
}

func (f *File) IsFolder() bool { return f.MimeType == folderMimeType }

// ListFiles returns every non-trashed file directly under folderID, following
// pagination.
func (s *Service) ListFiles(ctx context.Context, folderID string) ([]*File, error) {
	if folderID == "" {
		folderID = "root"
	}

	var files []*File
	pageToken := ""
	for {
		call := s.srv.Files.List().
			Q(fmt.Sprintf("'%s' in parents and trashed=false", escapeQuery(folderID))).
			Fields("nextPageToken, files(id, name, mimeType, modifiedTime, size)").
			OrderBy("name").
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		result, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("unable to list folder %s: %w", folderID, err)
		}
		for _, f := range result.Files {
			files = append(files, &File{
				ID:           f.Id,
				Name:         f.Name,
				MimeType:     f.MimeType,
				ModifiedTime: f.ModifiedTime,
				Size:         f.Size,
			})
		}

		if result.NextPageToken == "" {
			return files, nil
		}
		pageToken = result.NextPageToken
	}
}

func (s *Service) DownloadFile(ctx context.Context, fileID string, w io.Writer) error {
	resp, err := s.srv.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return fmt.Errorf("unable to download file %s: %w", fileID, err)
	}
	defer resp.Body.Close()

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("unable to read file %s: %w", fileID, err)
	}
	return nil
}

// FindFolderByPath walks "a/b/c" from the drive root.
func (s *Service) FindFolderByPath(ctx context.Context, path string) (string, error) {
	currentID := "root"
	for _, folder := range strings.Split(path, "/") {
		if folder == "" {
			continue
		}

		result, err := s.srv.Files.List().
			Q(fmt.Sprintf("'%s' in parents and name='%s' and mimeType='%s' and trashed=false",
				escapeQuery(currentID), escapeQuery(folder), folderMimeType)).
			Fields("files(id, name)").
			Context(ctx).
			Do()
		if err != nil {
			return "", fmt.Errorf("error finding folder %s: %w", folder, err)
		}
		if len(result.Files) == 0 {
			return "", fmt.Errorf("%w: %s", ErrFolderNotFound, folder)
		}
		currentID = result.Files[0].Id
	}
	return currentID, nil
}

func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
