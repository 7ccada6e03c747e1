package model

import "fmt"

// AF is a monetary amount in Artist Funds minor units (100 AF = $1.00).
// Integer units avoid the rounding drift of float currency math.
type AF int64

// String formats an amount for logs and API messages, e.g. "500 AF".
func (a AF) String() string {
	return fmt.Sprintf("%d AF", int64(a))
}

// Wallet holds one listener's spendable balance and the artist-side
// withdrawal counter. Balance must never go negative; TotalWithdrawn only
// ever grows.
type Wallet struct {
	ListenerID     int64 `json:"listenerId"`
	Balance        AF    `json:"balance"`
	TotalWithdrawn AF    `json:"totalWithdrawn"`
}
