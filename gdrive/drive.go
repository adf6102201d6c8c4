// Package gdrive moves files in and out of Google Drive.
package gdrive

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	"github.com/okuraya/dataglue"
)

const spreadsheetMIME = "application/vnd.google-apps.spreadsheet"

// ErrNotFound is returned when a file ID matches nothing.
var ErrNotFound = xerrors.New("file not found")

// Drive wraps a caller-owned Drive service.
type Drive struct {
	svc *drive.Service
}

// New builds a Drive on svc.
func New(svc *drive.Service) *Drive {
	return &Drive{svc: svc}
}

// Upload sends the file to Drive as-is and returns the file ID. The
// Drive name is the path's base name.
func (d *Drive) Upload(ctx context.Context, path string, parents ...string) (string, error) {
	return d.create(ctx, path, "", parents)
}

// ImportCSV uploads a CSV file converting it to a Google spreadsheet
// and returns the spreadsheet's file ID.
func (d *Drive) ImportCSV(ctx context.Context, path string, parents ...string) (string, error) {
	return d.create(ctx, path, spreadsheetMIME, parents)
}

func (d *Drive) create(ctx context.Context, path, mimeType string, parents []string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &dataglue.IOError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	meta := &drive.File{
		Name:     filepath.Base(path),
		Parents:  parents,
		MimeType: mimeType,
	}
	file, err := d.svc.Files.Create(meta).Media(f).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", xerrors.Errorf("failed to upload %s: %w", path, err)
	}

	l := log.Ctx(ctx)
	l.Debug().Msgf("uploaded %s as file %s", path, file.Id)
	return file.Id, nil
}

// Download fetches a file's content into path.
func (d *Drive) Download(ctx context.Context, fileID, path string) error {
	resp, err := d.svc.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return fetchError(fileID, err)
	}
	defer resp.Body.Close()
	return writeFile(path, resp.Body)
}

// ExportCSV downloads a Google spreadsheet's first sheet as CSV.
func (d *Drive) ExportCSV(ctx context.Context, fileID, path string) error {
	resp, err := d.svc.Files.Export(fileID, "text/csv").Context(ctx).Download()
	if err != nil {
		return fetchError(fileID, err)
	}
	defer resp.Body.Close()
	return writeFile(path, resp.Body)
}

func fetchError(fileID string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
		return xerrors.Errorf("file %s: %w", fileID, ErrNotFound)
	}
	return xerrors.Errorf("failed to fetch file %s: %w", fileID, err)
}

func writeFile(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return &dataglue.IOError{Op: "create", Path: path, Err: err}
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return &dataglue.IOError{Op: "write", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return &dataglue.IOError{Op: "close", Path: path, Err: err}
	}
	return nil
}
