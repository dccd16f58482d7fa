package dispatch

import (
	"encoding/hex"
)

// scanCursor encodes SCAN's resumption point as the hex of the last key
// returned, ordered lexicographically. Unlike a row-offset cursor, this
// stays correct across concurrent inserts/deletes: the next call simply
// asks for keys greater than the last one it saw, so it can never skip or
// repeat a key that existed for the whole scan (Redis's own cursor gives a
// weaker guarantee for the same reason: full key-space coverage, not a
// frozen snapshot).
const scanCursorStart = "0"

func encodeScanCursor(lastKey []byte) string {
	if lastKey == nil {
		return scanCursorStart
	}
	return hex.EncodeToString(lastKey)
}

func decodeScanCursor(cursor string) ([]byte, error) {
	if cursor == scanCursorStart {
		return nil, nil
	}
	return hex.DecodeString(cursor)
}
