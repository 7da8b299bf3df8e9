package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// UpdateKey derives the claim key for one inbound update. Telegram resends
// the same chat and message id when a delivery is retried.
func UpdateKey(kind string, chatID int64, id string) string {
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{':'})
	h.Write([]byte(strconv.FormatInt(chatID, 10)))
	h.Write([]byte{':'})
	h.Write([]byte(id))

	return kind + ":" + hex.EncodeToString(h.Sum(nil))[:32]
}
