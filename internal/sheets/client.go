// Package sheets implements the agenda RemoteStore on the Google Sheets API.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"github.com/denapp-control/backend/internal/agenda"
	"github.com/denapp-control/backend/internal/storage/models"
)

// Config identifies the agenda sheet and the credentials used to reach it.
type Config struct {
	// SpreadsheetID is the key from the sheet URL.
	SpreadsheetID string

	// SheetName is the worksheet title. Empty means the first worksheet.
	SheetName string

	// CredentialsFile is a service-account JSON key.
	CredentialsFile string
}

// Client reads and writes agenda rows in a Google Sheet.
type Client struct {
	svc           *gsheets.Service
	spreadsheetID string
	sheetName     string

	titleMu sync.Mutex
	title   string
}

// New creates a Sheets client. Extra options are appended after the
// credentials, which lets tests point the client at a local server.
func New(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Client, error) {
	if cfg.SpreadsheetID == "" {
		return nil, errors.New("spreadsheet id is required")
	}

	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts,
			option.WithCredentialsFile(cfg.CredentialsFile),
			option.WithScopes(gsheets.SpreadsheetsScope),
		)
	}
	clientOpts = append(clientOpts, opts...)

	svc, err := gsheets.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		sheetName:     cfg.SheetName,
	}, nil
}

// ReadAll returns the header row and every data row of the worksheet.
func (c *Client) ReadAll(ctx context.Context) (*agenda.SheetData, error) {
	title, err := c.worksheetTitle(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, quoteTitle(title)).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify("reading values", err)
	}

	return recordsFromValues(resp.Values), nil
}

// ReadAt fetches the header and one data row in a single batch call.
func (c *Client) ReadAt(ctx context.Context, position int) (agenda.Row, error) {
	title, err := c.worksheetTitle(ctx)
	if err != nil {
		return nil, err
	}

	rng := rowRange(title, position+2)
	resp, err := c.svc.Spreadsheets.Values.BatchGet(c.spreadsheetID).
		Ranges(quoteTitle(title)+"!1:1", rng).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify(fmt.Sprintf("reading %s", rng), err)
	}

	grid := make([][]interface{}, 0, 2)
	for _, vr := range resp.ValueRanges {
		if vr == nil || len(vr.Values) == 0 {
			grid = append(grid, []interface{}{})
			continue
		}
		grid = append(grid, vr.Values[0])
	}
	for len(grid) < 2 {
		grid = append(grid, []interface{}{})
	}

	data := recordsFromValues(grid)
	if len(data.Rows) == 0 {
		return agenda.Row{}, nil
	}
	return data.Rows[0].Values, nil
}

// Append adds entry as a new last row.
func (c *Client) Append(ctx context.Context, entry *models.AgendaEntry) (int, error) {
	title, err := c.worksheetTitle(ctx)
	if err != nil {
		return -1, err
	}

	vr := &gsheets.ValueRange{Values: [][]interface{}{toCells(agenda.ToRow(entry))}}
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, quoteTitle(title)+"!A1", vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return -1, classify("appending row", err)
	}

	if resp.Updates == nil {
		return -1, nil
	}
	row, ok := rowNumber(resp.Updates.UpdatedRange)
	if !ok || row < 2 {
		return -1, nil
	}
	return row - 2, nil
}

// UpdateAt overwrites the data row at position. Sheet rows are 1-based and
// row 1 is the header, so position 0 is sheet row 2.
func (c *Client) UpdateAt(ctx context.Context, position int, entry *models.AgendaEntry) error {
	title, err := c.worksheetTitle(ctx)
	if err != nil {
		return err
	}

	rng := rowRange(title, position+2)
	vr := &gsheets.ValueRange{Values: [][]interface{}{toCells(agenda.ToRow(entry))}}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return classify(fmt.Sprintf("updating %s", rng), err)
	}
	return nil
}

// TestConnection reports the spreadsheet and worksheet titles, grid size
// and header row.
func (c *Client) TestConnection(ctx context.Context) (*models.ConnectionInfo, error) {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).
		Fields("properties.title", "sheets.properties").
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify("reading spreadsheet", err)
	}

	props, err := c.pickSheet(ss)
	if err != nil {
		return nil, err
	}

	info := &models.ConnectionInfo{
		Status:         "ok",
		WorksheetTitle: props.Title,
		CheckedAt:      time.Now().UTC(),
	}
	if ss.Properties != nil {
		info.SpreadsheetTitle = ss.Properties.Title
	}
	if props.GridProperties != nil {
		info.Rows = props.GridProperties.RowCount
		info.Cols = props.GridProperties.ColumnCount
	}

	header, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, quoteTitle(props.Title)+"!1:1").
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify("reading header", err)
	}
	if len(header.Values) > 0 {
		info.Header = cellStrings(header.Values[0])
	}
	return info, nil
}

// worksheetTitle resolves the configured worksheet, looking up the first
// worksheet's title once when none was configured.
func (c *Client) worksheetTitle(ctx context.Context) (string, error) {
	if c.sheetName != "" {
		return c.sheetName, nil
	}

	c.titleMu.Lock()
	defer c.titleMu.Unlock()
	if c.title != "" {
		return c.title, nil
	}

	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).
		Fields("sheets.properties").
		Context(ctx).
		Do()
	if err != nil {
		return "", classify("reading spreadsheet", err)
	}
	props, err := c.pickSheet(ss)
	if err != nil {
		return "", err
	}
	c.title = props.Title
	return c.title, nil
}

func (c *Client) pickSheet(ss *gsheets.Spreadsheet) (*gsheets.SheetProperties, error) {
	for _, sh := range ss.Sheets {
		if sh.Properties == nil {
			continue
		}
		if c.sheetName == "" || sh.Properties.Title == c.sheetName {
			return sh.Properties, nil
		}
	}
	if c.sheetName == "" {
		return nil, agenda.Permanent(errors.New("spreadsheet has no worksheets"))
	}
	return nil, agenda.Permanent(fmt.Errorf("worksheet %q not found", c.sheetName))
}

// recordsFromValues turns a value grid into header-keyed rows. Cells past
// the header width are ignored; short rows leave the remaining columns empty.
func recordsFromValues(values [][]interface{}) *agenda.SheetData {
	data := &agenda.SheetData{Rows: []agenda.RemoteRow{}}
	if len(values) == 0 {
		return data
	}

	data.Header = cellStrings(values[0])
	for i, raw := range values[1:] {
		row := make(agenda.Row, len(data.Header))
		for j, name := range data.Header {
			if name == "" {
				continue
			}
			if j < len(raw) {
				row[name] = raw[j]
			} else {
				row[name] = ""
			}
		}
		data.Rows = append(data.Rows, agenda.RemoteRow{Position: i, Values: row})
	}
	return data
}

func cellStrings(cells []interface{}) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.TrimSpace(fmt.Sprint(c))
	}
	return out
}

func toCells(row []string) []interface{} {
	cells := make([]interface{}, len(row))
	for i, v := range row {
		cells[i] = v
	}
	return cells
}

// quoteTitle quotes a worksheet title for A1 notation.
func quoteTitle(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

// rowRange is the A1 range covering the agenda columns of one sheet row.
func rowRange(title string, row int) string {
	last := columnLetter(len(agenda.Columns))
	return fmt.Sprintf("%s!A%d:%s%d", quoteTitle(title), row, last, row)
}

// columnLetter converts a 1-based column index to its A1 letters.
func columnLetter(n int) string {
	var b []byte
	for n > 0 {
		n--
		b = append([]byte{byte('A' + n%26)}, b...)
		n /= 26
	}
	return string(b)
}

// rowNumber extracts the first row number from an A1 range such as
// "'Hoja 1'!A5:N5".
func rowNumber(a1 string) (int, bool) {
	if i := strings.LastIndex(a1, "!"); i >= 0 {
		a1 = a1[i+1:]
	}
	if i := strings.Index(a1, ":"); i >= 0 {
		a1 = a1[:i]
	}
	digits := strings.TrimLeft(a1, "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz$")
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}

// classify wraps API errors, marking client errors that a retry cannot fix.
func classify(op string, err error) error {
	wrapped := fmt.Errorf("%s: %w", op, err)
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusTooManyRequests, gerr.Code == http.StatusRequestTimeout:
			return wrapped
		case gerr.Code >= 400 && gerr.Code < 500:
			return agenda.Permanent(wrapped)
		}
	}
	return wrapped
}
