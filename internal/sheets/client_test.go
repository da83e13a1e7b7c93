package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/denapp-control/backend/internal/agenda"
	"github.com/denapp-control/backend/internal/storage/models"
)

// fakeSheets is a minimal Sheets API server holding one worksheet.
type fakeSheets struct {
	mu       sync.Mutex
	values   [][]interface{}
	updates  []string
	appended [][]interface{}
	status   int
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.status != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.status)
		_, _ = fmt.Fprintf(w, `{"error":{"code":%d,"message":"denied"}}`, f.status)
		return
	}

	path := r.URL.Path
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/spreadsheets/sheet-1"):
		writeJSON(w, map[string]any{
			"properties": map[string]any{"title": "Agenda Clínica"},
			"sheets": []any{
				map[string]any{"properties": map[string]any{
					"title":          "Citas",
					"gridProperties": map[string]any{"rowCount": 1000, "columnCount": 14},
				}},
			},
		})
	case r.Method == http.MethodGet && strings.Contains(path, "/values/"):
		rows := f.values
		if strings.HasSuffix(path, "!1:1") && len(rows) > 0 {
			rows = rows[:1]
		}
		writeJSON(w, map[string]any{"range": "'Citas'!A1:N10", "majorDimension": "ROWS", "values": rows})
	case r.Method == http.MethodGet && strings.HasSuffix(path, "values:batchGet"):
		ranges := r.URL.Query()["ranges"]
		out := make([]any, 0, len(ranges))
		for _, rng := range ranges {
			n, ok := rowNumber(rng)
			var values [][]interface{}
			if ok && n-1 < len(f.values) {
				values = f.values[n-1 : n]
			}
			out = append(out, map[string]any{"range": rng, "values": values})
		}
		writeJSON(w, map[string]any{"spreadsheetId": "sheet-1", "valueRanges": out})
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":append"):
		var body struct {
			Values [][]interface{} `json:"values"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.appended = append(f.appended, body.Values...)
		writeJSON(w, map[string]any{
			"spreadsheetId": "sheet-1",
			"updates":       map[string]any{"updatedRange": "'Citas'!A4:N4", "updatedRows": 1},
		})
	case r.Method == http.MethodPut && strings.Contains(path, "/values/"):
		f.updates = append(f.updates, path[strings.LastIndex(path, "/")+1:])
		writeJSON(w, map[string]any{"spreadsheetId": "sheet-1", "updatedRows": 1})
	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, fake *fakeSheets) *Client {
	return newTestClientWith(t, fake, Config{SpreadsheetID: "sheet-1"})
}

func newTestClientWith(t *testing.T, fake *fakeSheets, cfg Config) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := New(context.Background(), cfg,
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return client
}

func header() []interface{} {
	cells := make([]interface{}, len(agenda.Columns))
	for i, c := range agenda.Columns {
		cells[i] = c
	}
	return cells
}

func TestReadAllKeysRowsByHeader(t *testing.T) {
	fake := &fakeSheets{values: [][]interface{}{
		header(),
		{"1", "", "", "PAC0001", "García", "Ana", "600 123 456", "2024-12-20", "10:30"},
		{},
	}}
	client := newTestClient(t, fake)

	data, err := client.ReadAll(context.Background())
	require.NoError(t, err)

	require.Len(t, data.Rows, 2)
	assert.Equal(t, agenda.Columns, data.Header)
	assert.Equal(t, 0, data.Rows[0].Position)
	assert.Equal(t, "PAC0001", data.Rows[0].Values[agenda.ColNumPac])
	assert.Equal(t, "", data.Rows[0].Values[agenda.ColNotas])
	assert.Equal(t, 1, data.Rows[1].Position)

	parsed, err := agenda.ParseRow(data.Rows[0].Values)
	require.NoError(t, err)
	assert.Equal(t, "PAC0001|2024-12-20|10:30", parsed.Entry.CacheKey())

	_, err = agenda.ParseRow(data.Rows[1].Values)
	assert.ErrorIs(t, err, agenda.ErrBlankRow)
}

func TestAppendReturnsDataRowPosition(t *testing.T) {
	fake := &fakeSheets{values: [][]interface{}{header()}}
	client := newTestClient(t, fake)

	entry := &models.AgendaEntry{ExternalID: "7", PatientNumber: "PAC0007", FirstName: "Luis"}
	pos, err := client.Append(context.Background(), entry)
	require.NoError(t, err)

	assert.Equal(t, 2, pos)
	require.Len(t, fake.appended, 1)
	assert.Equal(t, "7", fake.appended[0][0])
	assert.Len(t, fake.appended[0], len(agenda.Columns))
}

func TestUpdateAtTargetsSheetRow(t *testing.T) {
	fake := &fakeSheets{values: [][]interface{}{header()}}
	client := newTestClient(t, fake)

	err := client.UpdateAt(context.Background(), 3, &models.AgendaEntry{ExternalID: "4"})
	require.NoError(t, err)

	require.Len(t, fake.updates, 1)
	assert.Equal(t, "'Citas'!A5:N5", fake.updates[0])
}

func TestTestConnectionReportsSheet(t *testing.T) {
	fake := &fakeSheets{values: [][]interface{}{header()}}
	client := newTestClient(t, fake)

	info, err := client.TestConnection(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "ok", info.Status)
	assert.Equal(t, "Agenda Clínica", info.SpreadsheetTitle)
	assert.Equal(t, "Citas", info.WorksheetTitle)
	assert.EqualValues(t, 1000, info.Rows)
	assert.EqualValues(t, 14, info.Cols)
	assert.Equal(t, agenda.Columns, info.Header)
}

func TestClientErrorsArePermanent(t *testing.T) {
	fake := &fakeSheets{status: http.StatusForbidden}
	client := newTestClientWith(t, fake, Config{SpreadsheetID: "sheet-1", SheetName: "Citas"})

	_, err := client.ReadAll(context.Background())
	require.Error(t, err)
	assert.True(t, agenda.IsPermanent(err))
}

func TestRowNumber(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"'Citas'!A5:N5", 5, true},
		{"Sheet1!A12", 12, true},
		{"'It''s'!$A$3:$N$3", 3, true},
		{"Sheet1!A:N", 0, false},
	}
	for _, tt := range tests {
		got, ok := rowNumber(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestColumnLetter(t *testing.T) {
	assert.Equal(t, "A", columnLetter(1))
	assert.Equal(t, "N", columnLetter(14))
	assert.Equal(t, "Z", columnLetter(26))
	assert.Equal(t, "AA", columnLetter(27))
}

func TestReadAtKeysOneRowByHeader(t *testing.T) {
	fake := &fakeSheets{values: [][]interface{}{
		header(),
		{"1", "", "", "PAC0001"},
		{"2", "", "", "PAC0002", "Pérez"},
	}}
	client := newTestClient(t, fake)

	row, err := client.ReadAt(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "2", row[agenda.ColRegistro])
	assert.Equal(t, "Pérez", row[agenda.ColApellidos])
	assert.Equal(t, "", row[agenda.ColNotas])

	row, err = client.ReadAt(context.Background(), 5)
	require.NoError(t, err)
	_, err = agenda.ParseRow(row)
	assert.ErrorIs(t, err, agenda.ErrBlankRow)
}
