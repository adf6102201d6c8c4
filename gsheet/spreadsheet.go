// Package gsheet edits Google Sheets spreadsheets. Sheet lookups go
// through a title index that is rebuilt after every structural change.
package gsheet

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/xerrors"
	"google.golang.org/api/sheets/v4"
)

// Sheets added by this package get the classic blank-sheet grid.
const (
	defaultRowCount    = 10000
	defaultColumnCount = 10
)

var (
	// ErrSheetNotFound is returned when a title matches no sheet.
	ErrSheetNotFound = xerrors.New("sheet not found")
	// ErrSheetExists is returned when adding a title that is taken.
	ErrSheetExists = xerrors.New("sheet already exists")
)

// Spreadsheet wraps one spreadsheet of a caller-owned Sheets service.
type Spreadsheet struct {
	svc   *sheets.Service
	id    string
	props map[string]*sheets.SheetProperties
}

// New builds a Spreadsheet and loads its sheet index.
func New(ctx context.Context, svc *sheets.Service, spreadsheetID string) (*Spreadsheet, error) {
	s := &Spreadsheet{svc: svc, id: spreadsheetID}
	if err := s.reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Spreadsheet) reload(ctx context.Context) error {
	meta, err := s.svc.Spreadsheets.Get(s.id).Context(ctx).Do()
	if err != nil {
		return xerrors.Errorf("failed to get spreadsheet %s: %w", s.id, err)
	}
	props := make(map[string]*sheets.SheetProperties, len(meta.Sheets))
	for _, sh := range meta.Sheets {
		props[sh.Properties.Title] = sh.Properties
	}
	s.props = props
	return nil
}

// SheetID maps a sheet title to its ID. A stale index is reloaded
// once before reporting ErrSheetNotFound.
func (s *Spreadsheet) SheetID(ctx context.Context, title string) (int64, error) {
	if p, ok := s.props[title]; ok {
		return p.SheetId, nil
	}
	if err := s.reload(ctx); err != nil {
		return 0, err
	}
	if p, ok := s.props[title]; ok {
		return p.SheetId, nil
	}
	return 0, xerrors.Errorf("sheet %s: %w", title, ErrSheetNotFound)
}

// AddSheet creates a blank sheet at the front of the spreadsheet and
// returns its server-assigned ID.
func (s *Spreadsheet) AddSheet(ctx context.Context, title string) (int64, error) {
	if _, ok := s.props[title]; ok {
		return 0, xerrors.Errorf("sheet %s: %w", title, ErrSheetExists)
	}
	resp, err := s.batchUpdate(ctx, &sheets.Request{AddSheet: addSheetRequest(title)})
	if err != nil {
		return 0, xerrors.Errorf("failed to add sheet %s: %w", title, err)
	}
	return resp.Replies[0].AddSheet.Properties.SheetId, nil
}

// DeleteSheet removes the sheet titled title.
func (s *Spreadsheet) DeleteSheet(ctx context.Context, title string) error {
	id, err := s.SheetID(ctx, title)
	if err != nil {
		return err
	}
	if _, err := s.batchUpdate(ctx, &sheets.Request{
		DeleteSheet: &sheets.DeleteSheetRequest{SheetId: id},
	}); err != nil {
		return xerrors.Errorf("failed to delete sheet %s: %w", title, err)
	}
	return nil
}

// RenameSheet retitles the sheet titled old to new.
func (s *Spreadsheet) RenameSheet(ctx context.Context, old, new string) error {
	id, err := s.SheetID(ctx, old)
	if err != nil {
		return err
	}
	if _, err := s.batchUpdate(ctx, &sheets.Request{
		UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
			Properties: &sheets.SheetProperties{SheetId: id, Title: new},
			Fields:     "title",
		},
	}); err != nil {
		return xerrors.Errorf("failed to rename sheet %s: %w", old, err)
	}
	return nil
}

// ResetSheet replaces the sheet titled title with a blank one. The
// replacement comes up under a temporary title in the same batch that
// drops the old sheet, so the spreadsheet never ends up empty, then
// takes over the title. A missing sheet is simply created.
func (s *Spreadsheet) ResetSheet(ctx context.Context, title string) error {
	id, err := s.SheetID(ctx, title)
	if errors.Is(err, ErrSheetNotFound) {
		_, err = s.AddSheet(ctx, title)
		return err
	}
	if err != nil {
		return err
	}

	temp := uuid.NewString()
	if _, err := s.batchUpdate(ctx,
		&sheets.Request{AddSheet: addSheetRequest(temp)},
		&sheets.Request{DeleteSheet: &sheets.DeleteSheetRequest{SheetId: id}},
	); err != nil {
		return xerrors.Errorf("failed to reset sheet %s: %w", title, err)
	}
	return s.RenameSheet(ctx, temp, title)
}

// Values reads a range. Every cell comes back as a string, matching
// the all-text convention of the transfer formats.
func (s *Spreadsheet) Values(ctx context.Context, rng string) ([][]string, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.id, rng).Context(ctx).Do()
	if err != nil {
		return nil, xerrors.Errorf("failed to get values of %s: %w", rng, err)
	}

	out := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		cells := make([]string, len(row))
		for j, v := range row {
			switch v := v.(type) {
			case string:
				cells[j] = v
			default:
				cells[j] = fmt.Sprint(v)
			}
		}
		out[i] = cells
	}
	return out, nil
}

// Update writes values to a range verbatim, without cell parsing.
func (s *Spreadsheet) Update(ctx context.Context, rng string, values [][]string) error {
	rows := make([][]interface{}, len(values))
	for i, row := range values {
		cells := make([]interface{}, len(row))
		for j, v := range row {
			cells[j] = v
		}
		rows[i] = cells
	}

	vr := &sheets.ValueRange{Range: rng, Values: rows}
	_, err := s.svc.Spreadsheets.Values.Update(s.id, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return xerrors.Errorf("failed to update values of %s: %w", rng, err)
	}
	return nil
}

func (s *Spreadsheet) batchUpdate(ctx context.Context, reqs ...*sheets.Request) (*sheets.BatchUpdateSpreadsheetResponse, error) {
	resp, err := s.svc.Spreadsheets.BatchUpdate(s.id, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: reqs,
	}).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	if err := s.reload(ctx); err != nil {
		return nil, err
	}
	return resp, nil
}

func addSheetRequest(title string) *sheets.AddSheetRequest {
	return &sheets.AddSheetRequest{
		Properties: &sheets.SheetProperties{
			Title:     title,
			Index:     0,
			SheetType: "GRID",
			GridProperties: &sheets.GridProperties{
				RowCount:    defaultRowCount,
				ColumnCount: defaultColumnCount,
			},
			ForceSendFields: []string{"Index"},
		},
	}
}
