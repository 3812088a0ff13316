package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-kratos/kratos/v2/log"

	"gamestore/api/ingest"
	"gamestore/api/models"
)

// MaxIngestBodyBytes caps the size of one ingest request body.
const MaxIngestBodyBytes = 1 << 20

// EventSubmitter hands an accepted event to background processing.
type EventSubmitter interface {
	Submit(ctx context.Context, event models.Event) (string, error)
}

type IngestionHandlers struct {
	Dispatcher EventSubmitter
	log        *log.Helper
}

func NewIngestionHandlers(dispatcher EventSubmitter, logger log.Logger) *IngestionHandlers {
	useJSONFieldNames()
	return &IngestionHandlers{
		Dispatcher: dispatcher,
		log:        log.NewHelper(log.With(logger, "module", "handlers/ingestion")),
	}
}

// Ingest validates one activity event and queues it. The 202 only promises
// that the event was accepted; persistence happens in the background.
func (h *IngestionHandlers) Ingest(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxIngestBodyBytes)

	var event models.Event
	if err := c.ShouldBindJSON(&event); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"detail": "Payload too large"})
			return
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": bindingDetails(err)})
		return
	}

	event.Normalize()
	var details []FieldError
	if event.EventType == "" {
		details = append(details, FieldError{Loc: []string{"body", "event_type"}, Msg: "field required", Type: "required"})
	}
	if event.SessionID == "" {
		details = append(details, FieldError{Loc: []string{"body", "session_id"}, Msg: "field required", Type: "required"})
	}
	if event.Timestamp.IsZero() {
		details = append(details, FieldError{Loc: []string{"body", "timestamp"}, Msg: "field required", Type: "required"})
	}
	if len(details) > 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": details})
		return
	}

	requestID, err := h.Dispatcher.Submit(c.Request.Context(), event)
	if err != nil {
		if errors.Is(err, ingest.ErrDispatcherClosed) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "Service is shutting down"})
			return
		}
		h.log.WithContext(c.Request.Context()).Errorw("msg", "failed to queue event", "session_id", event.SessionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to queue event"})
		return
	}

	c.JSON(http.StatusAccepted, models.IngestionResponse{
		Status:    "accepted",
		Message:   "Data ingestion successfully queued",
		RequestID: requestID,
	})
}
