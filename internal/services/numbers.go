package services

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/card-ledger/internal/model"
)

// newTxNo builds "TX" + UTC timestamp + 10 random hex digits. The timestamp
// keeps numbers roughly sortable, the suffix keeps them unique.
func newTxNo(now time.Time) string {
	return "TX" + now.UTC().Format("20060102150405") + randomHex(10)
}

func newCardNo(t model.CardType) string {
	prefix := "PC"
	if t == model.CardTypeEnterprise {
		prefix = "EC"
	}
	return prefix + randomHex(16)
}

func randomHex(n int) string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:n]
}
