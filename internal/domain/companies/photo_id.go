package companies

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
)

const (
	SlotProfile = "profile"
	SlotCover   = "cover"
)

func PostSlot(n int) string { return fmt.Sprintf("post_%d", n) }

// PhotoID derives a stable positive id for an image slot of a company, so the same
// (company, slot) pair maps to the same row across runs and restarts.
func PhotoID(scrapingID int64, slot string) int64 {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d_%s", scrapingID, slot)))
	return int64(binary.BigEndian.Uint64(sum[:8]) & math.MaxInt64)
}
