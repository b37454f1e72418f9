package model

import "time"

type QrStatus string

const (
	QrStatusActive   QrStatus = "active"
	QrStatusConsumed QrStatus = "consumed"
	QrStatusRevoked  QrStatus = "revoked"
	QrStatusExpired  QrStatus = "expired"
)

// QrToken never holds the plaintext, only its SHA-256 digest.
type QrToken struct {
	ID         int64      `json:"id"`
	CardID     int64      `json:"card_id"`
	CardType   CardType   `json:"card_type"`
	Digest     string     `json:"-"`
	Status     QrStatus   `json:"status"`
	ExpiresAt  time.Time  `json:"expires_at"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// QrIssue is returned exactly once per rotation.
type QrIssue struct {
	Plain     string    `json:"qr_plain"`
	ExpiresAt time.Time `json:"qr_expires_at"`
}
