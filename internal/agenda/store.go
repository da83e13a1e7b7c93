package agenda

import (
	"context"
	"fmt"

	"github.com/denapp-control/backend/internal/storage/models"
)

// RemoteRow is one data row read from the sheet.
type RemoteRow struct {
	// Position is the 0-based data row, not counting the header.
	Position int
	Values   Row
}

// SheetData is the result of a full read.
type SheetData struct {
	Header []string
	Rows   []RemoteRow
}

// RemoteStore is the agenda sheet.
type RemoteStore interface {
	// ReadAll returns the header and every data row in sheet order.
	ReadAll(ctx context.Context) (*SheetData, error)

	// ReadAt returns the data row at position keyed by header name. A
	// position past the last row yields an empty Row.
	ReadAt(ctx context.Context, position int) (Row, error)

	// Append writes entry as a new row and returns its position, or -1 if
	// the sheet did not report one.
	Append(ctx context.Context, entry *models.AgendaEntry) (int, error)

	// UpdateAt overwrites the data row at position with entry.
	UpdateAt(ctx context.Context, position int, entry *models.AgendaEntry) error

	// TestConnection reads sheet metadata without changing anything.
	TestConnection(ctx context.Context) (*models.ConnectionInfo, error)
}

// retryingStore applies a Retrier to every remote call of a RemoteStore.
type retryingStore struct {
	next    RemoteStore
	retrier *Retrier
}

// WithRetry wraps store so reads and writes are retried under retrier.
// TestConnection is not retried; it reports the sheet as it is right now.
func WithRetry(store RemoteStore, retrier *Retrier) RemoteStore {
	return &retryingStore{next: store, retrier: retrier}
}

func (s *retryingStore) ReadAll(ctx context.Context) (*SheetData, error) {
	var data *SheetData
	err := s.retrier.Do(ctx, "agenda read", func(ctx context.Context) error {
		var err error
		data, err = s.next.ReadAll(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *retryingStore) ReadAt(ctx context.Context, position int) (Row, error) {
	if position < 0 {
		return nil, Permanent(fmt.Errorf("invalid row position %d", position))
	}
	var row Row
	err := s.retrier.Do(ctx, fmt.Sprintf("agenda read row %d", position), func(ctx context.Context) error {
		var err error
		row, err = s.next.ReadAt(ctx, position)
		return err
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (s *retryingStore) Append(ctx context.Context, entry *models.AgendaEntry) (int, error) {
	position := -1
	err := s.retrier.Do(ctx, "agenda append", func(ctx context.Context) error {
		var err error
		position, err = s.next.Append(ctx, entry)
		return err
	})
	return position, err
}

func (s *retryingStore) UpdateAt(ctx context.Context, position int, entry *models.AgendaEntry) error {
	if position < 0 {
		return Permanent(fmt.Errorf("invalid row position %d", position))
	}
	return s.retrier.Do(ctx, fmt.Sprintf("agenda update row %d", position), func(ctx context.Context) error {
		return s.next.UpdateAt(ctx, position, entry)
	})
}

func (s *retryingStore) TestConnection(ctx context.Context) (*models.ConnectionInfo, error) {
	return s.next.TestConnection(ctx)
}
