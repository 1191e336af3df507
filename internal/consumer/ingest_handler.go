package consumer

import (
	"context"

	"github.com/charmbracelet/log"

	"example.com/petcare/internal/domain"
	"example.com/petcare/internal/observability"
)

// ActivityLogger is the slice of the domain service the ingest path needs.
type ActivityLogger interface {
	LogActivity(ctx context.Context, sub domain.Submission) (*domain.Activity, error)
}

// IngestHandler runs device submissions through the same validation as the
// HTTP path and appends accepted ones to the store.
type IngestHandler struct {
	service ActivityLogger
	logger  *log.Logger
}

// NewIngestHandler constructs a handler backed by the provided service.
func NewIngestHandler(service ActivityLogger, logger *log.Logger) *IngestHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &IngestHandler{service: service, logger: logger}
}

// Handle logs the submission. Validation failures are reported and
// swallowed so the record is committed; only internal faults are returned.
func (h *IngestHandler) Handle(ctx context.Context, msg Message) error {
	activity, err := h.service.LogActivity(ctx, msg.Event.Submission())
	if err != nil {
		if domain.IsValidation(err) {
			observability.RecordRejected(err, msg.Source)
			h.logger.Warn("rejected submission", "source", msg.Source, "offset", msg.Offset, "reason", err)
			return nil
		}
		return err
	}

	observability.RecordActivityLogged(string(activity.Type), msg.Source)
	h.logger.Debug("ingested activity", "id", activity.ID, "pet", activity.PetName, "type", activity.Type)
	return nil
}
