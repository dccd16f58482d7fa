// Package zsets implements the Sorted Set data-type engine: ZADD's option
// grammar, rank/score/lex range queries, and the ZINTERSTORE/ZUNIONSTORE
// combinators.
package zsets

import (
	"database/sql"
	"math"
	"sort"
	"strings"

	"github.com/redlite/redlite/internal/keyregistry"
	"github.com/redlite/redlite/internal/rlerr"
	"github.com/redlite/redlite/internal/storage"
)

const typeName = "zset"

// Member pairs a member with its score; ties break on member bytes
// lexicographically (invariant 7 plus spec.md's tie-break rule).
type Member struct {
	Value []byte
	Score float64
}

// AddOptions captures ZADD's NX|XX|GT|LT|CH|INCR grammar.
type AddOptions struct {
	NX, XX, GT, LT, CH, Incr bool
}

// Validate rejects combinations ZADD forbids.
func (o AddOptions) Validate() error {
	if o.NX && (o.GT || o.LT) {
		return rlerr.Syntaxf("GT, LT, and/or NX options at the same time are not compatible")
	}
	if o.NX && o.XX {
		return rlerr.Syntaxf("XX and NX options at the same time are not compatible")
	}
	if o.GT && o.LT {
		return rlerr.Syntaxf("GT, LT, and/or NX options at the same time are not compatible")
	}
	return nil
}

// Add implements ZADD for one member, returning (resultScore, added,
// changed, applied). When Incr is set resultScore is the new score after
// increment; applied=false means INCR's NX/XX/GT/LT guard aborted it.
func Add(tx *storage.Tx, db int, key []byte, member []byte, score float64, opt AddOptions) (result float64, added, changed, applied bool, err error) {
	if err := opt.Validate(); err != nil {
		return 0, false, false, false, err
	}
	if _, _, err := keyregistry.ResolveTyped(tx, db, key, typeName); err != nil {
		return 0, false, false, false, err
	}
	cur, exists, err := getScore(tx, db, key, member)
	if err != nil {
		return 0, false, false, false, err
	}
	if opt.NX && exists {
		return cur, false, false, false, nil
	}
	if opt.XX && !exists {
		return 0, false, false, false, nil
	}
	next := score
	if opt.Incr {
		next = cur + score
		if math.IsNaN(next) {
			return 0, false, false, false, rlerr.Valuef("resulting score is not a number (NaN)")
		}
	}
	if exists {
		if opt.GT && next <= cur {
			return cur, false, false, false, nil
		}
		if opt.LT && next >= cur {
			return cur, false, false, false, nil
		}
		if next == cur {
			return cur, false, false, true, nil
		}
	}
	if _, err := keyregistry.Upsert(tx, db, key, typeName); err != nil {
		return 0, false, false, false, err
	}
	if _, err := tx.Exec(`INSERT INTO zset_members (db, key, member, score) VALUES (?, ?, ?, ?)
		ON CONFLICT (db, key, member) DO UPDATE SET score = excluded.score`, db, key, member, next); err != nil {
		return 0, false, false, false, err
	}
	if err := keyregistry.Bump(tx, db, key); err != nil {
		return 0, false, false, false, err
	}
	return next, !exists, true, true, nil
}

func getScore(tx *storage.Tx, db int, key, member []byte) (float64, bool, error) {
	var s float64
	err := tx.QueryRow(`SELECT score FROM zset_members WHERE db = ? AND key = ? AND member = ?`, db, key, member).Scan(&s)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, rlerr.IOf("zscore lookup: %v", err)
	}
	return s, true, nil
}

// Score implements ZSCORE.
func Score(tx *storage.Tx, db int, key, member []byte) (float64, bool, error) {
	if _, found, err := keyregistry.ResolveTyped(tx, db, key, typeName); err != nil || !found {
		return 0, false, err
	}
	return getScore(tx, db, key, member)
}

// Rem implements ZREM.
func Rem(tx *storage.Tx, db int, key []byte, members [][]byte) (int, error) {
	if _, found, err := keyregistry.ResolveTyped(tx, db, key, typeName); err != nil || !found {
		return 0, err
	}
	removed := 0
	for _, m := range members {
		res, err := tx.Exec(`DELETE FROM zset_members WHERE db = ? AND key = ? AND member = ?`, db, key, m)
		if err != nil {
			return 0, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			removed++
		}
	}
	if removed > 0 {
		remaining, err := Card(tx, db, key)
		if err != nil {
			return removed, err
		}
		if err := keyregistry.DeleteIfEmpty(tx, db, key, remaining); err != nil {
			return removed, err
		}
		if remaining > 0 {
			if err := keyregistry.Bump(tx, db, key); err != nil {
				return removed, err
			}
		}
	}
	return removed, nil
}

// Card implements ZCARD.
func Card(tx *storage.Tx, db int, key []byte) (int, error) {
	if _, found, err := keyregistry.ResolveTyped(tx, db, key, typeName); err != nil || !found {
		return 0, err
	}
	var n int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM zset_members WHERE db = ? AND key = ?`, db, key).Scan(&n); err != nil {
		return 0, rlerr.IOf("zcard: %v", err)
	}
	return n, nil
}

// orderedMembers returns every member sorted by (score, member bytes).
func orderedMembers(tx *storage.Tx, db int, key []byte) ([]Member, error) {
	rows, err := tx.Query(`SELECT member, score FROM zset_members WHERE db = ? AND key = ? ORDER BY score ASC, member ASC`, db, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.Value, &m.Score); err != nil {
			return nil, rlerr.IOf("zset scan: %v", err)
		}
		out = append(out, m)
	}
	return out, nil
}

// Rank implements ZRANK: the count of members with a strictly smaller
// (score, member) tuple.
func Rank(tx *storage.Tx, db int, key, member []byte, rev bool) (int, bool, error) {
	if _, found, err := keyregistry.ResolveTyped(tx, db, key, typeName); err != nil || !found {
		return 0, false, err
	}
	members, err := orderedMembers(tx, db, key)
	if err != nil {
		return 0, false, err
	}
	for i, m := range members {
		if string(m.Value) == string(member) {
			if rev {
				return len(members) - 1 - i, true, nil
			}
			return i, true, nil
		}
	}
	return 0, false, nil
}

// RangeByIndex implements ZRANGE and ZREVRANGE by rank (rev selects the
// latter), with negative indices like LRANGE. ZRANGE accepts only the
// WITHSCORES option: BYSCORE, BYLEX, REV and LIMIT are rejected.
func RangeByIndex(tx *storage.Tx, db int, key []byte, start, stop int, rev bool) ([]Member, error) {
	if _, found, err := keyregistry.ResolveTyped(tx, db, key, typeName); err != nil || !found {
		return nil, err
	}
	members, err := orderedMembers(tx, db, key)
	if err != nil {
		return nil, err
	}
	if rev {
		reverse(members)
	}
	n := len(members)
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || n == 0 {
		return []Member{}, nil
	}
	return members[start : stop+1], nil
}

func reverse(m []Member) {
	for i, j := 0, len(m)-1; i < j; i, j = i+1, j-1 {
		m[i], m[j] = m[j], m[i]
	}
}

// ScoreBound represents one end of a BYSCORE range: -inf/+inf or a value,
// optionally exclusive.
type ScoreBound struct {
	Value     float64
	Inf       int // -1, 0, or +1 for -inf/finite/+inf
	Exclusive bool
}

// RangeByScore implements ZRANGEBYSCORE and ZREVRANGEBYSCORE (rev selects
// the latter), with LIMIT offset count. ZRANGE has no BYSCORE form.
func RangeByScore(tx *storage.Tx, db int, key []byte, min, max ScoreBound, rev bool, offset, count int, hasLimit bool) ([]Member, error) {
	if _, found, err := keyregistry.ResolveTyped(tx, db, key, typeName); err != nil || !found {
		return nil, err
	}
	members, err := orderedMembers(tx, db, key)
	if err != nil {
		return nil, err
	}
	var out []Member
	for _, m := range members {
		if scoreInRange(m.Score, min, max) {
			out = append(out, m)
		}
	}
	if rev {
		reverse(out)
	}
	if hasLimit {
		out = applyLimit(out, offset, count)
	}
	return out, nil
}

func scoreInRange(score float64, min, max ScoreBound) bool {
	switch min.Inf {
	case -1:
	case 1:
		return false
	default:
		if min.Exclusive && score <= min.Value {
			return false
		}
		if !min.Exclusive && score < min.Value {
			return false
		}
	}
	switch max.Inf {
	case 1:
	case -1:
		return false
	default:
		if max.Exclusive && score >= max.Value {
			return false
		}
		if !max.Exclusive && score > max.Value {
			return false
		}
	}
	return true
}

func applyLimit(members []Member, offset, count int) []Member {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(members) {
		return []Member{}
	}
	members = members[offset:]
	if count < 0 {
		return members
	}
	if count > len(members) {
		count = len(members)
	}
	return members[:count]
}

// LexBound represents one end of a BYLEX range: -/+ (min/max) or a member
// value with inclusive/exclusive marker ('['/'(').
type LexBound struct {
	Value     []byte
	MinInf    bool
	MaxInf    bool
	Exclusive bool
}

// ParseLexBound decodes the "[m"/"(m"/"-"/"+" syntax.
func ParseLexBound(s string) (LexBound, error) {
	switch s {
	case "-":
		return LexBound{MinInf: true}, nil
	case "+":
		return LexBound{MaxInf: true}, nil
	}
	if len(s) == 0 {
		return LexBound{}, rlerr.Syntaxf("min or max not valid string range item")
	}
	switch s[0] {
	case '[':
		return LexBound{Value: []byte(s[1:])}, nil
	case '(':
		return LexBound{Value: []byte(s[1:]), Exclusive: true}, nil
	default:
		return LexBound{}, rlerr.Syntaxf("min or max not valid string range item")
	}
}

// RangeByLex implements ZRANGEBYLEX: members are opaque byte strings
// compared lexicographically; score is assumed constant across the range
// (Redis requires this precondition from the caller).
func RangeByLex(tx *storage.Tx, db int, key []byte, min, max LexBound, rev bool, offset, count int, hasLimit bool) ([]Member, error) {
	if _, found, err := keyregistry.ResolveTyped(tx, db, key, typeName); err != nil || !found {
		return nil, err
	}
	members, err := orderedMembers(tx, db, key)
	if err != nil {
		return nil, err
	}
	var out []Member
	for _, m := range members {
		if lexInRange(m.Value, min, max) {
			out = append(out, m)
		}
	}
	if rev {
		reverse(out)
	}
	if hasLimit {
		out = applyLimit(out, offset, count)
	}
	return out, nil
}

func lexInRange(v []byte, min, max LexBound) bool {
	if !min.MinInf {
		c := strings.Compare(string(v), string(min.Value))
		if min.Exclusive && c <= 0 {
			return false
		}
		if !min.Exclusive && c < 0 {
			return false
		}
	}
	if !max.MaxInf {
		c := strings.Compare(string(v), string(max.Value))
		if max.Exclusive && c >= 0 {
			return false
		}
		if !max.Exclusive && c > 0 {
			return false
		}
	}
	return true
}

// Aggregate selects how ZINTERSTORE/ZUNIONSTORE combine scores.
type Aggregate int

const (
	AggSum Aggregate = iota
	AggMin
	AggMax
)

func combine(agg Aggregate, a, b float64, first bool) float64 {
	if first {
		return b
	}
	switch agg {
	case AggMin:
		return math.Min(a, b)
	case AggMax:
		return math.Max(a, b)
	default:
		return a + b
	}
}

// InterStore implements ZINTERSTORE's computation (caller writes the
// result via StoreResult).
func InterStore(tx *storage.Tx, db int, keys [][]byte, weights []float64, agg Aggregate) ([]Member, error) {
	acc := map[string]float64{}
	present := map[string]int{}
	var order []string
	for i, k := range keys {
		members, err := orderedMembers(tx, db, k)
		if err != nil {
			return nil, err
		}
		w := weight(weights, i)
		for _, m := range members {
			key := string(m.Value)
			weighted := m.Score * w
			if _, ok := present[key]; !ok {
				order = append(order, key)
			}
			acc[key] = combine(agg, acc[key], weighted, present[key] == 0)
			present[key]++
		}
	}
	var out []Member
	for _, key := range order {
		if present[key] == len(keys) {
			out = append(out, Member{Value: []byte(key), Score: acc[key]})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return string(out[i].Value) < string(out[j].Value)
	})
	return out, nil
}

// UnionStore implements ZUNIONSTORE's computation.
func UnionStore(tx *storage.Tx, db int, keys [][]byte, weights []float64, agg Aggregate) ([]Member, error) {
	acc := map[string]float64{}
	seen := map[string]bool{}
	var order []string
	for i, k := range keys {
		members, err := orderedMembers(tx, db, k)
		if err != nil {
			return nil, err
		}
		w := weight(weights, i)
		for _, m := range members {
			key := string(m.Value)
			weighted := m.Score * w
			first := !seen[key]
			if first {
				order = append(order, key)
				seen[key] = true
			}
			acc[key] = combine(agg, acc[key], weighted, first)
		}
	}
	out := make([]Member, 0, len(order))
	for _, key := range order {
		out = append(out, Member{Value: []byte(key), Score: acc[key]})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return string(out[i].Value) < string(out[j].Value)
	})
	return out, nil
}

func weight(weights []float64, i int) float64 {
	if i < len(weights) {
		return weights[i]
	}
	return 1
}

// StoreResult overwrites dst with the given members, implementing the
// *STORE variants.
func StoreResult(tx *storage.Tx, db int, dst []byte, members []Member) (int, error) {
	if _, found, _ := keyregistry.Resolve(tx, db, dst); found {
		if err := keyregistry.Delete(tx, db, dst); err != nil {
			return 0, err
		}
	}
	if len(members) == 0 {
		return 0, nil
	}
	if _, err := keyregistry.Upsert(tx, db, dst, typeName); err != nil {
		return 0, err
	}
	for _, m := range members {
		if _, err := tx.Exec(`INSERT INTO zset_members (db, key, member, score) VALUES (?, ?, ?, ?)`, db, dst, m.Value, m.Score); err != nil {
			return 0, err
		}
	}
	if err := keyregistry.Bump(tx, db, dst); err != nil {
		return 0, err
	}
	return len(members), nil
}
