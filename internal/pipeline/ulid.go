package pipeline

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Job IDs are ULIDs from a monotonic entropy source, so IDs minted within
// the same millisecond still sort in creation order.
var (
	ulidMu      sync.Mutex
	ulidEntropy io.Reader = ulid.Monotonic(rand.Reader, 0)
)

func generateULID() string {
	ulidMu.Lock()
	defer ulidMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulidEntropy).String()
}
