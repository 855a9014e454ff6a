package payment

import (
	"math/big"
	"time"

	"github.com/keykeeper/keykeeper/internal/chain"
)

// Status is the payment lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusClaimed   Status = "claimed"
)

// Payment correlates an on-chain purchase with the credits it buys. The token
// is the opaque id clients poll and claim with; amounts are in the chain's
// smallest unit.
type Payment struct {
	Token                 string
	AccountID             string
	Chain                 chain.Kind
	Symbol                string
	Address               string
	RequiredAmount        *big.Int
	RequiredConfirmations int64
	Credits               int64
	Status                Status
	CreatedAt             time.Time
	ConfirmedAt           *time.Time
	ClaimedAt             *time.Time
}
