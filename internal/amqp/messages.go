package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Routing keys on the exchange.
const (
	RoutingLedgerChanged  = "ledger.changed"
	RoutingLegacyMigrated = "legacy.migrated"
)

// LedgerChangedMessage announces a committed change to one month. Consumers
// re-read the month from the database instead of trusting a payload.
type LedgerChangedMessage struct {
	UserID    string    `json:"user_id"`
	Month     string    `json:"month"`
	Kind      string    `json:"kind"`
	BillID    string    `json:"bill_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// LegacyMigratedMessage asks the worker to apply the purge retention policy
// to a user whose legacy data was migrated.
type LegacyMigratedMessage struct {
	UserID    string    `json:"user_id"`
	Month     string    `json:"month"`
	BillCount int       `json:"bill_count"`
	Retention string    `json:"retention"`
	Timestamp time.Time `json:"timestamp"`
}

func (m *LedgerChangedMessage) Validate() error {
	if m.UserID == "" || m.Month == "" {
		return fmt.Errorf("ledger changed message missing user or month")
	}
	return nil
}

func (m *LegacyMigratedMessage) Validate() error {
	if m.UserID == "" {
		return fmt.Errorf("legacy migrated message missing user")
	}
	return nil
}

type validator interface {
	Validate() error
}

// decode unmarshals and validates a message body.
func decode[T any, PT interface {
	*T
	validator
}](body []byte) (*T, error) {
	msg := PT(new(T))
	if err := json.Unmarshal(body, msg); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return (*T)(msg), nil
}
