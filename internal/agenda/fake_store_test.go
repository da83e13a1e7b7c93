package agenda

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/denapp-control/backend/internal/storage/models"
)

// fakeStore is an in-memory sheet. Rows are kept as Row values keyed by
// column name, exactly as ReadAll would return them.
type fakeStore struct {
	mu       sync.Mutex
	header   []string
	rows     []Row
	reads    int
	readErr  error
	updates  []int
	rowReads []int

	// block, when set, holds ReadAll until it is closed.
	block   chan struct{}
	entered chan struct{}
}

func newFakeStore(rows ...Row) *fakeStore {
	return &fakeStore{header: append([]string(nil), Columns...), rows: rows}
}

func (f *fakeStore) ReadAll(ctx context.Context) (*SheetData, error) {
	f.mu.Lock()
	f.reads++
	block, entered, readErr := f.block, f.entered, f.readErr
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if readErr != nil {
		return nil, readErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	data := &SheetData{Header: f.header}
	for i, r := range f.rows {
		values := make(Row, len(r))
		for k, v := range r {
			values[k] = v
		}
		data.Rows = append(data.Rows, RemoteRow{Position: i, Values: values})
	}
	return data, nil
}

func (f *fakeStore) ReadAt(ctx context.Context, position int) (Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rowReads = append(f.rowReads, position)
	if position >= len(f.rows) {
		return Row{}, nil
	}
	values := make(Row, len(f.rows[position]))
	for k, v := range f.rows[position] {
		values[k] = v
	}
	return values, nil
}

func (f *fakeStore) Append(ctx context.Context, entry *models.AgendaEntry) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, rowOf(entry))
	return len(f.rows) - 1, nil
}

func (f *fakeStore) UpdateAt(ctx context.Context, position int, entry *models.AgendaEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if position >= len(f.rows) {
		return errors.New("row out of range")
	}
	f.rows[position] = rowOf(entry)
	f.updates = append(f.updates, position)
	return nil
}

func (f *fakeStore) TestConnection(ctx context.Context) (*models.ConnectionInfo, error) {
	return &models.ConnectionInfo{Status: "ok", Header: f.header, CheckedAt: time.Now()}, nil
}

func (f *fakeStore) readCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

// insertRow puts r at position i, shifting later rows down as a user
// inserting a row in the sheet would.
func (f *fakeStore) insertRow(i int, r Row) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows[:i], append([]Row{r}, f.rows[i:]...)...)
}

func (f *fakeStore) row(i int) Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[i]
}

func rowOf(entry *models.AgendaEntry) Row {
	cells := ToRow(entry)
	r := make(Row, len(cells))
	for i, c := range cells {
		r[Columns[i]] = c
	}
	return r
}

func appointment(registro, patient, name, date, clock string) Row {
	return Row{
		ColRegistro:    registro,
		ColNumPac:      patient,
		ColNombre:      name,
		ColApellidos:   "García",
		ColFecha:       date,
		ColHora:        clock,
		ColEstadoCita:  models.StatusScheduled,
		ColOdontologo:  "Dra. Ruiz",
		ColTratamiento: "Limpieza",
	}
}
