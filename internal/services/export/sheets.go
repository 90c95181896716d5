package export

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/enesyuzak/locat-web-tracker/internal/models"
)

// SheetsExporter appends dashboard snapshots to a Google spreadsheet.
type SheetsExporter struct {
	srv           *sheets.Service
	spreadsheetID string
	appendRange   string
}

// NewSheetsExporter authenticates with a service account credentials file.
func NewSheetsExporter(ctx context.Context, spreadsheetID, credentialsFile string, opts ...option.ClientOption) (*SheetsExporter, error) {
	if credentialsFile != "" {
		opts = append([]option.ClientOption{option.WithCredentialsFile(credentialsFile)}, opts...)
	}
	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("init sheets client: %w", err)
	}
	return &SheetsExporter{
		srv:           srv,
		spreadsheetID: spreadsheetID,
		appendRange:   SheetName + "!A1",
	}, nil
}

// Append writes one row per user below the existing data and returns the
// number of rows the API reports as written.
func (e *SheetsExporter) Append(ctx context.Context, users []models.UserSnapshot, exportedAt time.Time) (int64, error) {
	rows := SnapshotRows(users, exportedAt)
	if len(rows) == 0 {
		return 0, nil
	}

	resp, err := e.srv.Spreadsheets.Values.
		Append(e.spreadsheetID, e.appendRange, &sheets.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return 0, fmt.Errorf("append to sheet: %w", err)
	}
	if resp.Updates == nil {
		return 0, nil
	}
	return resp.Updates.UpdatedRows, nil
}
