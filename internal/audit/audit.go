package audit

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventThresholdCheck  = "THRESHOLD_CHECK"
	EventThresholdUpdate = "THRESHOLD_UPDATED"
	EventBatchCreated    = "BATCH_CREATED"
	EventPaymentRecord   = "PAYMENT_RECORDED"
	EventReceipt         = "RECEIPT_UPLOADED"
	EventReview          = "TRANSACTION_REVIEW"
	EventBillApproval    = "BILL_APPROVAL"
	EventOrganization    = "ORGANIZATION"
	EventUser            = "USER"
	EventSessionRevoke   = "SESSION_REVOKE"
	EventSettlement      = "BATCH_SETTLED"
	EventError           = "ERROR"
)

type Event struct {
	Timestamp      time.Time         `json:"timestamp"`
	EventType      string            `json:"event_type"`
	EntityID       string            `json:"entity_id"`
	OrganizationID string            `json:"organization_id,omitempty"`
	ActorID        string            `json:"actor_id,omitempty"`
	Amount         *decimal.Decimal  `json:"amount,omitempty"`
	Status         string            `json:"status"`
	Details        map[string]string `json:"details,omitempty"`
}

// Logger writes one JSON line per business event.
type Logger struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger, now: time.Now}
}

func (a *Logger) LogThresholdCheck(orgID, batchID, actorID string, candidate decimal.Decimal, accepted bool, details map[string]string) {
	status := "ACCEPTED"
	if !accepted {
		status = "REJECTED"
	}
	a.log(Event{
		EventType:      EventThresholdCheck,
		EntityID:       batchID,
		OrganizationID: orgID,
		ActorID:        actorID,
		Amount:         &candidate,
		Status:         status,
		Details:        details,
	})
}

func (a *Logger) LogPayment(orgID, batchID, transactionID, actorID string, amount decimal.Decimal, payType string) {
	a.log(Event{
		EventType:      EventPaymentRecord,
		EntityID:       transactionID,
		OrganizationID: orgID,
		ActorID:        actorID,
		Amount:         &amount,
		Status:         "PENDING",
		Details:        map[string]string{"batch_id": batchID, "pay_type": payType},
	})
}

func (a *Logger) LogReview(orgID, transactionID, reviewerID, outcome string, amount decimal.Decimal, details map[string]string) {
	a.log(Event{
		EventType:      EventReview,
		EntityID:       transactionID,
		OrganizationID: orgID,
		ActorID:        reviewerID,
		Amount:         &amount,
		Status:         outcome,
		Details:        details,
	})
}

// LogOperation records an event with no amount attached.
func (a *Logger) LogOperation(eventType, entityID, orgID, actorID, status string, details map[string]string) {
	a.log(Event{
		EventType:      eventType,
		EntityID:       entityID,
		OrganizationID: orgID,
		ActorID:        actorID,
		Status:         status,
		Details:        details,
	})
}

func (a *Logger) LogError(entityID, orgID string, err error) {
	a.log(Event{
		EventType:      EventError,
		EntityID:       entityID,
		OrganizationID: orgID,
		Status:         "FAILED",
		Details:        map[string]string{"error": err.Error()},
	})
}

func (a *Logger) log(event Event) {
	event.Timestamp = a.now().UTC()
	data, err := json.Marshal(event)
	if err != nil {
		a.logger.Error("[AUDIT] marshal failed", "event_type", event.EventType, "err", err)
		return
	}
	a.logger.Info("AUDIT: " + string(data))
}
