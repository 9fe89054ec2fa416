package entities

import "time"

// NotificationType tags the message sent to a counterparty
type NotificationType string

const (
	NotificationBetOffer          NotificationType = "bet_offer"
	NotificationArbiterInvitation NotificationType = "arbiter_invitation"
	NotificationBetRejected       NotificationType = "bet_rejected"
	NotificationBetCancelled      NotificationType = "bet_cancelled"
	NotificationBetEdited         NotificationType = "bet_edited"
	NotificationArbiterAccepted   NotificationType = "arbiter_accepted"
	NotificationArbiterDeclined   NotificationType = "arbiter_declined"
	NotificationBetForfeited      NotificationType = "bet_forfeited"
	NotificationWinnerSelected    NotificationType = "winner_selected"
)

// Notification is a single message addressed to one recipient
type Notification struct {
	RecipientFID int64            `json:"recipient_fid"`
	Type         NotificationType `json:"type"`
	BetNumber    int64            `json:"bet_number"`
	Payload      map[string]any   `json:"payload"`
	CreatedAt    time.Time        `json:"created_at"`
}

// NotificationLogEntry records a delivery attempt, one per bet, transaction
// and recipient
type NotificationLogEntry struct {
	ID              int64            `db:"id"`
	BetNumber       int64            `db:"bet_number"`
	TransactionHash string           `db:"transaction_hash"`
	RecipientFID    int64            `db:"recipient_fid"`
	Type            NotificationType `db:"type"`
	Delivered       bool             `db:"delivered"`
	LastError       *string          `db:"last_error"`
	CreatedAt       time.Time        `db:"created_at"`
}
