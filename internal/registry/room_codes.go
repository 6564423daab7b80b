package registry

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

const (
	roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	roomCodeLength   = 4
)

// newRoomCode draws codes until one is not in use. The caller holds the
// registry lock.
func newRoomCode(used map[string]bool) string {
	buf := make([]byte, roomCodeLength)
	for {
		for i := range buf {
			buf[i] = roomCodeAlphabet[rand.IntN(len(roomCodeAlphabet))]
		}
		if code := string(buf); !used[code] {
			return code
		}
	}
}

// NormalizeRoomCode upper-cases and trims a client supplied code.
func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// checkRoomCode reports malformed codes as unknown rooms so lookups fail
// before touching the room table.
func checkRoomCode(code string) error {
	if len(code) != roomCodeLength {
		return fmt.Errorf("%w: %q is not a %d character code", ErrRoomNotFound, code, roomCodeLength)
	}
	for _, ch := range code {
		if !strings.ContainsRune(roomCodeAlphabet, ch) {
			return fmt.Errorf("%w: %q contains %q", ErrRoomNotFound, code, ch)
		}
	}
	return nil
}
