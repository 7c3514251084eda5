package core

// C5 (part 2): leader election. Pure function of the validator set, the
// previous block hash, slot, and attempt (spec §4.6).

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// SelectLeader returns the validator address elected to produce the given
// slot/attempt. validators need not be pre-sorted; a sorted copy is used so
// that callers building the set in any order still get a deterministic
// result.
func SelectLeader(validators []string, prevHash string, slot uint64, attempt int) string {
	if len(validators) == 0 {
		return ""
	}
	sorted := append([]string(nil), validators...)
	sort.Strings(sorted)

	seed := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%d", prevHash, slot, attempt)))
	seedHex := hex.EncodeToString(seed[:])

	best := ""
	bestScore := ""
	for _, v := range sorted {
		scoreSum := sha256.Sum256([]byte(seedHex + "|" + v))
		score := hex.EncodeToString(scoreSum[:])
		if best == "" || score < bestScore {
			best = v
			bestScore = score
		}
	}
	return best
}
