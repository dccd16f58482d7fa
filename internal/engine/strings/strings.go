// Package strings implements the String data-type engine: SET/GET and the
// integer/float/byte-range operations layered on top of it.
package strings

import (
	"database/sql"
	"math"
	"strconv"
	"strings"

	"github.com/redlite/redlite/internal/keyregistry"
	"github.com/redlite/redlite/internal/rlerr"
	"github.com/redlite/redlite/internal/storage"
)

const typeName = "string"

// SetOptions captures SET's option grammar (NX|XX, EX|PX|EXAT|PXAT|KEEPTTL,
// GET).
type SetOptions struct {
	NX, XX     bool
	KeepTTL    bool
	ExpireAtMs *int64 // nil unless EX/PX/EXAT/PXAT given
	WantOld    bool
}

// Set implements SET. It returns (oldValue, hadOld, applied, error); applied
// is false when NX/XX prevented the write.
func Set(tx *storage.Tx, db int, key, value []byte, opt SetOptions) (old []byte, hadOld bool, applied bool, err error) {
	existing, found, err := keyregistry.Resolve(tx, db, key)
	if err != nil {
		return nil, false, false, err
	}
	if found && existing.Type != typeName {
		if opt.NX || opt.XX || opt.WantOld {
			return nil, false, false, rlerr.ErrWrongType
		}
	}
	if opt.NX && found {
		return nil, false, false, nil
	}
	if opt.XX && !found {
		return nil, false, false, nil
	}
	if opt.WantOld && found && existing.Type == typeName {
		old, hadOld, err = getRaw(tx, db, key)
		if err != nil {
			return nil, false, false, err
		}
	}

	if found && existing.Type != typeName {
		if err := keyregistry.Delete(tx, db, key); err != nil {
			return nil, false, false, err
		}
		found = false
	}

	if _, err := keyregistry.Upsert(tx, db, key, typeName); err != nil {
		return nil, false, false, err
	}
	if _, err := tx.Exec(`INSERT INTO strings (db, key, value) VALUES (?, ?, ?)
		ON CONFLICT (db, key) DO UPDATE SET value = excluded.value`, db, key, value); err != nil {
		return nil, false, false, err
	}
	if !opt.KeepTTL {
		if _, err := keyregistry.SetExpiry(tx, db, key, opt.ExpireAtMs, keyregistry.GuardNone); err != nil {
			return nil, false, false, err
		}
	}
	if err := keyregistry.Bump(tx, db, key); err != nil {
		return nil, false, false, err
	}
	return old, hadOld, true, nil
}

// Get implements GET. ok=false means the key is missing (or wrong type,
// reported as an error instead).
func Get(tx *storage.Tx, db int, key []byte) (value []byte, ok bool, err error) {
	_, found, err := keyregistry.ResolveTyped(tx, db, key, typeName)
	if err != nil || !found {
		return nil, false, err
	}
	return getRaw(tx, db, key)
}

func getRaw(tx *storage.Tx, db int, key []byte) ([]byte, bool, error) {
	var v []byte
	err := tx.QueryRow(`SELECT value FROM strings WHERE db = ? AND key = ?`, db, key).Scan(&v)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, rlerr.IOf("get: %v", err)
	}
	return v, true, nil
}

// Append implements APPEND, creating the key if absent.
func Append(tx *storage.Tx, db int, key, suffix []byte) (newLen int, err error) {
	if _, _, err := keyregistry.ResolveTyped(tx, db, key, typeName); err != nil {
		return 0, err
	}
	cur, _, err := getRaw(tx, db, key)
	if err != nil {
		return 0, err
	}
	next := append(append([]byte{}, cur...), suffix...)
	if _, err := keyregistry.Upsert(tx, db, key, typeName); err != nil {
		return 0, err
	}
	if _, err := tx.Exec(`INSERT INTO strings (db, key, value) VALUES (?, ?, ?)
		ON CONFLICT (db, key) DO UPDATE SET value = excluded.value`, db, key, next); err != nil {
		return 0, err
	}
	if err := keyregistry.Bump(tx, db, key); err != nil {
		return 0, err
	}
	return len(next), nil
}

// GetRange implements GETRANGE with Redis's negative-index semantics.
func GetRange(tx *storage.Tx, db int, key []byte, start, end int) ([]byte, error) {
	if _, _, err := keyregistry.ResolveTyped(tx, db, key, typeName); err != nil {
		return nil, err
	}
	v, found, err := getRaw(tx, db, key)
	if err != nil || !found {
		return nil, err
	}
	s, e := clampRange(len(v), start, end)
	if s > e {
		return []byte{}, nil
	}
	return v[s : e+1], nil
}

// SetRange implements SETRANGE, zero-padding as needed.
func SetRange(tx *storage.Tx, db int, key []byte, offset int, value []byte) (int, error) {
	if offset < 0 {
		return 0, rlerr.Valuef("offset is out of range")
	}
	if _, _, err := keyregistry.ResolveTyped(tx, db, key, typeName); err != nil {
		return 0, err
	}
	cur, _, err := getRaw(tx, db, key)
	if err != nil {
		return 0, err
	}
	need := offset + len(value)
	if need > len(cur) {
		padded := make([]byte, need)
		copy(padded, cur)
		cur = padded
	}
	copy(cur[offset:], value)
	if _, err := keyregistry.Upsert(tx, db, key, typeName); err != nil {
		return 0, err
	}
	if _, err := tx.Exec(`INSERT INTO strings (db, key, value) VALUES (?, ?, ?)
		ON CONFLICT (db, key) DO UPDATE SET value = excluded.value`, db, key, cur); err != nil {
		return 0, err
	}
	if err := keyregistry.Bump(tx, db, key); err != nil {
		return 0, err
	}
	return len(cur), nil
}

// IncrBy implements INCR/INCRBY/DECR/DECRBY: parse as a decimal integer (no
// whitespace), add delta, write back in canonical decimal form.
func IncrBy(tx *storage.Tx, db int, key []byte, delta int64) (int64, error) {
	if _, _, err := keyregistry.ResolveTyped(tx, db, key, typeName); err != nil {
		return 0, err
	}
	cur, found, err := getRaw(tx, db, key)
	if err != nil {
		return 0, err
	}
	var n int64
	if found {
		n, err = parseInt(cur)
		if err != nil {
			return 0, err
		}
	}
	next := n + delta
	if (delta > 0 && next < n) || (delta < 0 && next > n) {
		return 0, rlerr.Valuef("increment or decrement would overflow")
	}
	if err := writeRaw(tx, db, key, []byte(strconv.FormatInt(next, 10))); err != nil {
		return 0, err
	}
	return next, nil
}

// IncrByFloat implements INCRBYFLOAT with Redis's trimmed decimal formatting.
func IncrByFloat(tx *storage.Tx, db int, key []byte, delta float64) (float64, error) {
	if _, _, err := keyregistry.ResolveTyped(tx, db, key, typeName); err != nil {
		return 0, err
	}
	cur, found, err := getRaw(tx, db, key)
	if err != nil {
		return 0, err
	}
	var f float64
	if found {
		f, err = strconv.ParseFloat(string(cur), 64)
		if err != nil {
			return 0, rlerr.Valuef("value is not a valid float")
		}
	}
	next := f + delta
	if math.IsNaN(next) || math.IsInf(next, 0) {
		return 0, rlerr.Valuef("increment would produce NaN or Infinity")
	}
	formatted := strconv.FormatFloat(next, 'f', -1, 64)
	if err := writeRaw(tx, db, key, []byte(formatted)); err != nil {
		return 0, err
	}
	return next, nil
}

func writeRaw(tx *storage.Tx, db int, key, value []byte) error {
	if _, err := keyregistry.Upsert(tx, db, key, typeName); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO strings (db, key, value) VALUES (?, ?, ?)
		ON CONFLICT (db, key) DO UPDATE SET value = excluded.value`, db, key, value); err != nil {
		return err
	}
	return keyregistry.Bump(tx, db, key)
}

func parseInt(b []byte) (int64, error) {
	s := string(b)
	if s == "" {
		return 0, rlerr.Valuef("value is not an integer or out of range")
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, rlerr.Valuef("value is not an integer or out of range")
	}
	return n, nil
}

// GetBit/SetBit/BitCount operate at bit granularity over the byte value.

func GetBit(tx *storage.Tx, db int, key []byte, pos int) (int, error) {
	if _, _, err := keyregistry.ResolveTyped(tx, db, key, typeName); err != nil {
		return 0, err
	}
	v, _, err := getRaw(tx, db, key)
	if err != nil {
		return 0, err
	}
	byteIdx := pos / 8
	if byteIdx >= len(v) {
		return 0, nil
	}
	bitIdx := 7 - uint(pos%8)
	return int((v[byteIdx] >> bitIdx) & 1), nil
}

func SetBit(tx *storage.Tx, db int, key []byte, pos int, bit int) (int, error) {
	if pos < 0 {
		return 0, rlerr.Valuef("bit offset is not an integer or out of range")
	}
	if _, _, err := keyregistry.ResolveTyped(tx, db, key, typeName); err != nil {
		return 0, err
	}
	v, _, err := getRaw(tx, db, key)
	if err != nil {
		return 0, err
	}
	byteIdx := pos / 8
	if byteIdx >= len(v) {
		padded := make([]byte, byteIdx+1)
		copy(padded, v)
		v = padded
	}
	bitIdx := 7 - uint(pos%8)
	old := int((v[byteIdx] >> bitIdx) & 1)
	if bit == 1 {
		v[byteIdx] |= 1 << bitIdx
	} else {
		v[byteIdx] &^= 1 << bitIdx
	}
	if err := writeRaw(tx, db, key, v); err != nil {
		return 0, err
	}
	return old, nil
}

func BitCount(tx *storage.Tx, db int, key []byte, start, end int, haveRange bool) (int, error) {
	if _, _, err := keyregistry.ResolveTyped(tx, db, key, typeName); err != nil {
		return 0, err
	}
	v, _, err := getRaw(tx, db, key)
	if err != nil {
		return 0, err
	}
	if haveRange {
		s, e := clampRange(len(v), start, end)
		if s > e {
			return 0, nil
		}
		v = v[s : e+1]
	}
	count := 0
	for _, b := range v {
		for b != 0 {
			count += int(b & 1)
			b >>= 1
		}
	}
	return count, nil
}

func clampRange(length, start, end int) (int, int) {
	if start < 0 {
		start += length
	}
	if end < 0 {
		end += length
	}
	if start < 0 {
		start = 0
	}
	if end >= length {
		end = length - 1
	}
	return start, end
}

// BitOp implements BITOP AND|OR|XOR|NOT across one or more source values.
func BitOp(op string, sources [][]byte) ([]byte, error) {
	op = strings.ToUpper(op)
	if op == "NOT" {
		if len(sources) != 1 {
			return nil, rlerr.Syntaxf("BITOP NOT must be called with a single source key")
		}
		out := make([]byte, len(sources[0]))
		for i, b := range sources[0] {
			out[i] = ^b
		}
		return out, nil
	}
	maxLen := 0
	for _, s := range sources {
		if len(s) > maxLen {
			maxLen = len(s)
		}
	}
	out := make([]byte, maxLen)
	for i := range out {
		var acc byte
		first := true
		for _, s := range sources {
			var b byte
			if i < len(s) {
				b = s[i]
			}
			if first {
				acc = b
				first = false
				continue
			}
			switch op {
			case "AND":
				acc &= b
			case "OR":
				acc |= b
			case "XOR":
				acc ^= b
			default:
				return nil, rlerr.Syntaxf("unknown BITOP operator %q", op)
			}
		}
		out[i] = acc
	}
	return out, nil
}

// Len returns the byte length of the value, 0 if missing.
func Len(tx *storage.Tx, db int, key []byte) (int, error) {
	if _, _, err := keyregistry.ResolveTyped(tx, db, key, typeName); err != nil {
		return 0, err
	}
	v, _, err := getRaw(tx, db, key)
	if err != nil {
		return 0, err
	}
	return len(v), nil
}
