package webhook

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type EventStatus string

const (
	EventLogged    EventStatus = "logged"
	EventProcessed EventStatus = "processed"
	EventError     EventStatus = "error"
)

// Event is the log row of one provider delivery, keyed by delivery id.
type Event struct {
	ID        string         `gorm:"column:id;primaryKey"`
	Model     string         `gorm:"column:model"`
	Action    string         `gorm:"column:action"`
	EventTime *time.Time     `gorm:"column:event_time"`
	Payload   datatypes.JSON `gorm:"column:payload"`
	Status    EventStatus    `gorm:"column:status;index"`
	Error     string         `gorm:"column:error"`
	CreatedAt time.Time      `gorm:"column:created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at"`
}

func (Event) TableName() string { return "provider_webhook_events" }

// Envelope is the common shape of provider deliveries.
type Envelope struct {
	Model     string          `json:"model"`
	Action    string          `json:"action"`
	CreatedAt *time.Time      `json:"createdAt"`
	Data      json.RawMessage `json:"data"`
}

type paymentData struct {
	ExternalID    string `json:"externalId"`
	TransactionID string `json:"transactionId"`
}

type recipientAccountData struct {
	RecipientReferenceID string `json:"recipientReferenceId"`
	RecipientID          string `json:"recipientId"`
	AccountID            string `json:"accountId"`
	Status               string `json:"status"`
}

type taxFormData struct {
	RecipientReferenceID string `json:"recipientReferenceId"`
	TaxFormID            string `json:"taxFormId"`
	Status               string `json:"status"`
}
