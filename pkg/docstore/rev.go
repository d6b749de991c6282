package docstore

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// NextRev mints the successor revision token for a document. Tokens follow
// the N-suffix convention so generation ordering survives replication.
func NextRev(current string) string {
	gen := RevGeneration(current)
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%d-%s", gen+1, suffix)
}

// RevGeneration extracts the generation counter from a revision token.
// Malformed or empty tokens count as generation zero.
func RevGeneration(rev string) int64 {
	head, _, ok := strings.Cut(rev, "-")
	if !ok {
		return 0
	}
	gen, err := strconv.ParseInt(head, 10, 64)
	if err != nil || gen < 0 {
		return 0
	}
	return gen
}
