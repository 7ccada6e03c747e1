package model

import "time"

// Entitlement records a completed track purchase: the listener has paid for
// unlimited access to the track. One row per (listener, track).
type Entitlement struct {
	ID         int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	ListenerID int64     `json:"listenerId" gorm:"uniqueIndex:uq_listener_track;not null"`
	TrackID    int64     `json:"trackId" gorm:"uniqueIndex:uq_listener_track;not null"`
	PricePaid  int64     `json:"pricePaid" gorm:"not null"` // AF minor units at purchase time
	CreatedAt  time.Time `json:"createdAt"`
}

// TableName specifies the table name.
func (Entitlement) TableName() string {
	return "entitlements"
}

// Withdrawal is the audit row written for each successful withdrawal of
// artist revenue.
type Withdrawal struct {
	ID        int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	ArtistID  int64     `json:"artistId" gorm:"index;not null"`
	Amount    int64     `json:"amount" gorm:"not null"` // AF minor units
	CreatedAt time.Time `json:"createdAt"`
}

// TableName specifies the table name.
func (Withdrawal) TableName() string {
	return "withdrawals"
}
