package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// DefaultPrefix is prepended to generated client order tokens.
const DefaultPrefix = "eqt"

var (
	mu   sync.Mutex
	mono io.Reader
)

func init() {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	mono = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// New returns a ULID string for the given time. IDs made within the same
// millisecond stay lexicographically increasing.
func New(now time.Time) string {
	mu.Lock()
	defer mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(now.UTC()), mono)
	if err != nil {
		panic(err)
	}
	return id.String()
}

// ClientOrderID builds an idempotency token: prefix, creation time and a
// random suffix, e.g. "eqt-01J9Z3...".
func ClientOrderID(prefix string, now time.Time) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return prefix + "-" + strings.ToLower(New(now))
}

// Time recovers the creation time encoded in a token from ClientOrderID.
func Time(token string) (time.Time, bool) {
	i := strings.LastIndexByte(token, '-')
	u, err := ulid.ParseStrict(strings.ToUpper(token[i+1:]))
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(u.Time()), true
}
