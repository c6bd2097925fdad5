package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/samber/lo"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// sheetTitleLimit is the longest tab name Google Sheets accepts.
const sheetTitleLimit = 100

// SheetsWriter adds one tab per checklist to a spreadsheet.
type SheetsWriter struct {
	svc           *gsheet.Service
	spreadsheetID string
}

var _ Writer = (*SheetsWriter)(nil)

// NewSheetsWriter authenticates with a service account taken from
// GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS.
func NewSheetsWriter(ctx context.Context, spreadsheetID string) (*SheetsWriter, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &SheetsWriter{svc: svc, spreadsheetID: spreadsheetID}, nil
}

// NewSheetsWriterWithOptions is used against a fake endpoint in tests.
func NewSheetsWriterWithOptions(ctx context.Context, spreadsheetID string, opts ...goption.ClientOption) (*SheetsWriter, error) {
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &SheetsWriter{svc: svc, spreadsheetID: spreadsheetID}, nil
}

func serviceAccountJSON() ([]byte, error) {
	inline := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	file := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		return []byte(inline), nil
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	creds, err := serviceAccountJSON()
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Creating Google Sheets service with Service Account",
		"credentials_size", len(creds),
		"scope", gsheet.SpreadsheetsScope)

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return svc, nil
}

// WriteChecklist creates a tab named after the checklist and fills it with
// the header row and the item rows.
func (w *SheetsWriter) WriteChecklist(ctx context.Context, c Checklist) (string, error) {
	if w.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	title := SheetTitle(c.Title)

	add := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
	}}}
	if _, err := w.svc.Spreadsheets.BatchUpdate(w.spreadsheetID, add).Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("add sheet %q: %w", title, err)
	}

	values := make([][]any, 0, len(c.Rows)+1)
	values = append(values, lo.ToAnySlice(c.Columns))
	for _, row := range c.Rows {
		values = append(values, lo.ToAnySlice(row))
	}

	ref := fmt.Sprintf("'%s'!A1:%s%d", title, columnName(len(c.Columns)), len(values))
	_, err := w.svc.Spreadsheets.Values.Update(w.spreadsheetID, ref, &gsheet.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("write checklist to %s: %w", ref, err)
	}

	slog.InfoContext(ctx, "Release checklist written",
		"sheet", title,
		"range", ref,
		"count", len(c.Rows))
	return ref, nil
}

// SheetTitle makes a checklist title usable as a tab name.
func SheetTitle(title string) string {
	title = strings.NewReplacer("'", "", "[", "(", "]", ")", "*", "", "?", "", "/", "-", `\`, "-", ":", "-").Replace(title)
	if r := []rune(title); len(r) > sheetTitleLimit {
		title = string(r[:sheetTitleLimit])
	}
	return title
}

// columnName converts a 1-based column index to A1 letters.
func columnName(n int) string {
	if n < 1 {
		return "A"
	}
	var b []byte
	for n > 0 {
		n--
		b = append([]byte{byte('A' + n%26)}, b...)
		n /= 26
	}
	return string(b)
}
