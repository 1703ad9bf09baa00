package services

import (
	"context"
	"errors"
	"log/slog"

	"fintrack/internal/core"
	"fintrack/internal/ports"

	"github.com/google/uuid"
)

// AlertService is the read side of the alerts raised by budget and rule
// evaluation.
type AlertService struct {
	store ports.AlertStore
}

func NewAlertService(store ports.AlertStore) *AlertService {
	return &AlertService{store: store}
}

// List returns the user's alerts in creation order, optionally unread only.
func (s *AlertService) List(ctx context.Context, userID uuid.UUID, unreadOnly bool) ([]core.Alert, error) {
	if userID == uuid.Nil {
		return nil, core.ErrMissingUser
	}
	alerts, err := s.store.ListAlerts(ctx, userID, unreadOnly)
	if err != nil {
		return nil, &core.StorageError{Op: "list alerts", Err: err}
	}
	return alerts, nil
}

// MarkRead marks one alert read. The next evaluation of its budget or rule
// in the same period may then raise a new one.
func (s *AlertService) MarkRead(ctx context.Context, id uuid.UUID) error {
	if err := s.store.MarkAlertRead(ctx, id); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return err
		}
		return &core.StorageError{Op: "mark alert read", Err: err}
	}
	slog.InfoContext(ctx, "Alert marked read", "alert_id", id)
	return nil
}
