package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransferCompleted is emitted once a transfer has committed on both accounts.
type TransferCompleted struct {
	TransferID  uuid.UUID       `json:"transfer_id"`
	FromAccount uuid.UUID       `json:"from_account"`
	ToAccount   uuid.UUID       `json:"to_account"`
	Amount      decimal.Decimal `json:"amount"`
	OccurredAt  time.Time       `json:"occurred_at"`
}
