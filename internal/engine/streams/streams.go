// Package streams implements the Stream data-type engine: id generation,
// trimming, consumer groups, and the pending-entries list (PEL).
package streams

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/redlite/redlite/internal/keyregistry"
	"github.com/redlite/redlite/internal/rlerr"
	"github.com/redlite/redlite/internal/storage"
)

const typeName = "stream"

// ID is a stream entry identifier: ms-seq, strictly increasing per stream
// (invariant 4).
type ID struct {
	Ms  int64
	Seq int64
}

func (id ID) String() string { return fmt.Sprintf("%d-%d", id.Ms, id.Seq) }

func (a ID) Less(b ID) bool {
	if a.Ms != b.Ms {
		return a.Ms < b.Ms
	}
	return a.Seq < b.Seq
}

func (a ID) Equal(b ID) bool { return a.Ms == b.Ms && a.Seq == b.Seq }

// ParseID parses "ms-seq", "ms", or "ms-*" (seq defaults to 0 on append-time
// resolution, handled by the caller).
func ParseID(s string) (ID, bool, error) {
	if s == "" {
		return ID{}, false, rlerr.Syntaxf("invalid stream ID")
	}
	parts := strings.SplitN(s, "-", 2)
	ms, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return ID{}, false, rlerr.Syntaxf("invalid stream ID specified as stream command argument")
	}
	if len(parts) == 1 {
		return ID{Ms: ms}, false, nil
	}
	if parts[1] == "*" {
		return ID{Ms: ms}, true, nil
	}
	seq, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return ID{}, false, rlerr.Syntaxf("invalid stream ID specified as stream command argument")
	}
	return ID{Ms: ms, Seq: seq}, false, nil
}

// Entry is one stream record.
type Entry struct {
	ID     ID
	Fields map[string][]byte
}

// Add implements XADD. If id is nil, the next id is (now, 0) when now is
// past the last id's ms, else (last_ms, last_seq+1), so ids keep increasing
// even if the clock steps back. An explicit id must
// strictly exceed the stream's current last id.
func Add(tx *storage.Tx, db int, key []byte, id *ID, seqWildcard bool, fields map[string][]byte) (ID, error) {
	if _, _, err := keyregistry.ResolveTyped(tx, db, key, typeName); err != nil {
		return ID{}, err
	}
	last, hasLast, err := lastID(tx, db, key)
	if err != nil {
		return ID{}, err
	}
	var next ID
	switch {
	case id == nil:
		now := tx.Now()
		if hasLast && last.Ms == now {
			next = ID{Ms: now, Seq: last.Seq + 1}
		} else if hasLast && last.Ms > now {
			next = ID{Ms: last.Ms, Seq: last.Seq + 1}
		} else {
			next = ID{Ms: now}
		}
	case seqWildcard:
		if hasLast && last.Ms == id.Ms {
			next = ID{Ms: id.Ms, Seq: last.Seq + 1}
		} else {
			next = ID{Ms: id.Ms}
		}
	default:
		next = *id
		if hasLast && !last.Less(next) {
			return ID{}, rlerr.Valuef("The ID specified in XADD is equal or smaller than the target stream top item")
		}
	}
	if hasLast && !last.Less(next) {
		return ID{}, rlerr.Valuef("The ID specified in XADD is equal or smaller than the target stream top item")
	}
	blob, err := json.Marshal(fields)
	if err != nil {
		return ID{}, rlerr.IOf("encode stream fields: %v", err)
	}
	if _, err := keyregistry.Upsert(tx, db, key, typeName); err != nil {
		return ID{}, err
	}
	if _, err := tx.Exec(`INSERT INTO stream_entries (db, key, id_ms, id_seq, fields) VALUES (?, ?, ?, ?, ?)`,
		db, key, next.Ms, next.Seq, blob); err != nil {
		return ID{}, err
	}
	if err := keyregistry.Bump(tx, db, key); err != nil {
		return ID{}, err
	}
	return next, nil
}

func lastID(tx *storage.Tx, db int, key []byte) (ID, bool, error) {
	var ms, seq sql.NullInt64
	err := tx.QueryRow(`SELECT id_ms, id_seq FROM stream_entries WHERE db = ? AND key = ? ORDER BY id_ms DESC, id_seq DESC LIMIT 1`, db, key).Scan(&ms, &seq)
	if err == sql.ErrNoRows {
		return ID{}, false, nil
	}
	if err != nil {
		return ID{}, false, rlerr.IOf("stream last id: %v", err)
	}
	return ID{Ms: ms.Int64, Seq: seq.Int64}, true, nil
}

// Len implements XLEN.
func Len(tx *storage.Tx, db int, key []byte) (int, error) {
	if _, found, err := keyregistry.ResolveTyped(tx, db, key, typeName); err != nil || !found {
		return 0, err
	}
	var n int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM stream_entries WHERE db = ? AND key = ?`, db, key).Scan(&n); err != nil {
		return 0, rlerr.IOf("xlen: %v", err)
	}
	return n, nil
}

// Range implements XRANGE/XREVRANGE over [start, end] inclusive.
func Range(tx *storage.Tx, db int, key []byte, start, end ID, count int, hasCount, rev bool) ([]Entry, error) {
	if _, found, err := keyregistry.ResolveTyped(tx, db, key, typeName); err != nil || !found {
		return nil, err
	}
	order := "ASC"
	if rev {
		order = "DESC"
	}
	query := `SELECT id_ms, id_seq, fields FROM stream_entries WHERE db = ? AND key = ?
		AND (id_ms > ? OR (id_ms = ? AND id_seq >= ?))
		AND (id_ms < ? OR (id_ms = ? AND id_seq <= ?))
		ORDER BY id_ms ` + order + `, id_seq ` + order
	rows, err := tx.Query(query, db, key, start.Ms, start.Ms, start.Seq, end.Ms, end.Ms, end.Seq)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		var blob []byte
		if err := rows.Scan(&e.ID.Ms, &e.ID.Seq, &blob); err != nil {
			return nil, rlerr.IOf("xrange scan: %v", err)
		}
		if err := json.Unmarshal(blob, &e.Fields); err != nil {
			return nil, rlerr.IOf("decode stream fields: %v", err)
		}
		out = append(out, e)
		if hasCount && len(out) >= count {
			break
		}
	}
	return out, nil
}

// After implements the XREAD contract: entries strictly greater than
// since.
func After(tx *storage.Tx, db int, key []byte, since ID, count int, hasCount bool) ([]Entry, error) {
	if _, found, err := keyregistry.ResolveTyped(tx, db, key, typeName); err != nil || !found {
		return nil, err
	}
	rows, err := tx.Query(`SELECT id_ms, id_seq, fields FROM stream_entries WHERE db = ? AND key = ?
		AND (id_ms > ? OR (id_ms = ? AND id_seq > ?))
		ORDER BY id_ms ASC, id_seq ASC`, db, key, since.Ms, since.Ms, since.Seq)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		var blob []byte
		if err := rows.Scan(&e.ID.Ms, &e.ID.Seq, &blob); err != nil {
			return nil, rlerr.IOf("xread scan: %v", err)
		}
		if err := json.Unmarshal(blob, &e.Fields); err != nil {
			return nil, rlerr.IOf("decode stream fields: %v", err)
		}
		out = append(out, e)
		if hasCount && len(out) >= count {
			break
		}
	}
	return out, nil
}

// Tail returns the stream's current last id, used to resolve XREAD's "$".
func Tail(tx *storage.Tx, db int, key []byte) (ID, error) {
	last, _, err := lastID(tx, db, key)
	return last, err
}

// TrimMaxLen implements XTRIM MAXLEN (XADD does not trim): keep only the newest `count`
// entries. Approximate trimming (the `~` marker) is accepted but this
// engine always trims exactly, since SQLite scans are cheap at this scale.
func TrimMaxLen(tx *storage.Tx, db int, key []byte, count int) (int, error) {
	if _, found, err := keyregistry.ResolveTyped(tx, db, key, typeName); err != nil || !found {
		return 0, err
	}
	total, err := Len(tx, db, key)
	if err != nil || total <= count {
		return 0, err
	}
	toRemove := total - count
	res, err := tx.Exec(`DELETE FROM stream_entries WHERE db = ? AND key = ? AND (id_ms, id_seq) IN (
		SELECT id_ms, id_seq FROM stream_entries WHERE db = ? AND key = ? ORDER BY id_ms ASC, id_seq ASC LIMIT ?
	)`, db, key, db, key, toRemove)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	if err := keyregistry.Bump(tx, db, key); err != nil {
		return int(n), err
	}
	return int(n), nil
}

// TrimMinID implements XTRIM MINID: drop entries with id < minID.
func TrimMinID(tx *storage.Tx, db int, key []byte, minID ID) (int, error) {
	if _, found, err := keyregistry.ResolveTyped(tx, db, key, typeName); err != nil || !found {
		return 0, err
	}
	res, err := tx.Exec(`DELETE FROM stream_entries WHERE db = ? AND key = ? AND (id_ms < ? OR (id_ms = ? AND id_seq < ?))`,
		db, key, minID.Ms, minID.Ms, minID.Seq)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		if err := keyregistry.Bump(tx, db, key); err != nil {
			return int(n), err
		}
	}
	return int(n), nil
}

// --- consumer groups -------------------------------------------------------

// GroupCreate implements XGROUP CREATE.
func GroupCreate(tx *storage.Tx, db int, key []byte, group string, start ID, mkstream bool) error {
	_, found, err := keyregistry.Resolve(tx, db, key)
	if err != nil {
		return err
	}
	if !found {
		if !mkstream {
			return rlerr.New(rlerr.Unknown, "The XGROUP subcommand requires the key to exist. Note that for CREATE you may want to use the MKSTREAM option to create an empty stream automatically.")
		}
		if _, err := keyregistry.Upsert(tx, db, key, typeName); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(`INSERT INTO stream_groups (db, key, name, last_delivered_ms, last_delivered_seq) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (db, key, name) DO NOTHING`, db, key, group, start.Ms, start.Seq); err != nil {
		return err
	}
	return nil
}

func groupCursor(tx *storage.Tx, db int, key []byte, group string) (ID, error) {
	var ms, seq int64
	err := tx.QueryRow(`SELECT last_delivered_ms, last_delivered_seq FROM stream_groups WHERE db = ? AND key = ? AND name = ?`,
		db, key, group).Scan(&ms, &seq)
	if err == sql.ErrNoRows {
		return ID{}, rlerr.New(rlerr.Unknown, "NOGROUP No such consumer group")
	}
	if err != nil {
		return ID{}, rlerr.IOf("group cursor: %v", err)
	}
	return ID{Ms: ms, Seq: seq}, nil
}

// ReadGroup implements XREADGROUP: delivers entries after the group's
// cursor to `consumer`, advances the cursor, and (unless noack) records PEL
// entries. NOACK does not populate the PEL but still advances the group's
// last-delivered id (this module's resolution of the ambiguity noted in
// design note 9b).
func ReadGroup(tx *storage.Tx, db int, key []byte, group, consumer string, count int, hasCount, noack bool) ([]Entry, error) {
	cursor, err := groupCursor(tx, db, key, group)
	if err != nil {
		return nil, err
	}
	entries, err := After(tx, db, key, cursor, count, hasCount)
	if err != nil || len(entries) == 0 {
		return entries, err
	}
	last := entries[len(entries)-1].ID
	if _, err := tx.Exec(`UPDATE stream_groups SET last_delivered_ms = ?, last_delivered_seq = ? WHERE db = ? AND key = ? AND name = ?`,
		last.Ms, last.Seq, db, key, group); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(`INSERT INTO stream_consumers (db, key, group_name, name, seen_at_ms) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (db, key, group_name, name) DO UPDATE SET seen_at_ms = excluded.seen_at_ms`,
		db, key, group, consumer, tx.Now()); err != nil {
		return nil, err
	}
	if !noack {
		for _, e := range entries {
			if _, err := tx.Exec(`INSERT INTO stream_pending (db, key, group_name, id_ms, id_seq, consumer, delivered_at_ms, delivery_count)
				VALUES (?, ?, ?, ?, ?, ?, ?, 1)
				ON CONFLICT (db, key, group_name, id_ms, id_seq) DO UPDATE SET
					consumer = excluded.consumer, delivered_at_ms = excluded.delivered_at_ms,
					delivery_count = stream_pending.delivery_count + 1`,
				db, key, group, e.ID.Ms, e.ID.Seq, consumer, tx.Now()); err != nil {
				return nil, err
			}
		}
	}
	return entries, nil
}

// Ack implements XACK: remove PEL entries, returning the count removed.
func Ack(tx *storage.Tx, db int, key []byte, group string, ids []ID) (int, error) {
	removed := 0
	for _, id := range ids {
		res, err := tx.Exec(`DELETE FROM stream_pending WHERE db = ? AND key = ? AND group_name = ? AND id_ms = ? AND id_seq = ?`,
			db, key, group, id.Ms, id.Seq)
		if err != nil {
			return removed, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			removed++
		}
	}
	return removed, nil
}

// PendingEntry is one row of a group's pending-entries list.
type PendingEntry struct {
	ID            ID
	Consumer      string
	IdleMs        int64
	DeliveryCount int
}

// Pending implements a summary XPENDING (no range form): all entries
// currently outstanding for the group.
func Pending(tx *storage.Tx, db int, key []byte, group string) ([]PendingEntry, error) {
	rows, err := tx.Query(`SELECT id_ms, id_seq, consumer, delivered_at_ms, delivery_count FROM stream_pending
		WHERE db = ? AND key = ? AND group_name = ? ORDER BY id_ms ASC, id_seq ASC`, db, key, group)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	now := tx.Now()
	var out []PendingEntry
	for rows.Next() {
		var p PendingEntry
		var deliveredAt int64
		if err := rows.Scan(&p.ID.Ms, &p.ID.Seq, &p.Consumer, &deliveredAt, &p.DeliveryCount); err != nil {
			return nil, rlerr.IOf("xpending scan: %v", err)
		}
		p.IdleMs = now - deliveredAt
		out = append(out, p)
	}
	return out, nil
}

// Claim implements XCLAIM: reassigns pending entries idle at least minIdleMs
// to a new consumer.
func Claim(tx *storage.Tx, db int, key []byte, group, consumer string, ids []ID, minIdleMs int64) ([]Entry, error) {
	now := tx.Now()
	var claimed []ID
	for _, id := range ids {
		var deliveredAt int64
		err := tx.QueryRow(`SELECT delivered_at_ms FROM stream_pending WHERE db = ? AND key = ? AND group_name = ? AND id_ms = ? AND id_seq = ?`,
			db, key, group, id.Ms, id.Seq).Scan(&deliveredAt)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, rlerr.IOf("xclaim lookup: %v", err)
		}
		if now-deliveredAt < minIdleMs {
			continue
		}
		if _, err := tx.Exec(`UPDATE stream_pending SET consumer = ?, delivered_at_ms = ?, delivery_count = delivery_count + 1
			WHERE db = ? AND key = ? AND group_name = ? AND id_ms = ? AND id_seq = ?`,
			consumer, now, db, key, group, id.Ms, id.Seq); err != nil {
			return nil, err
		}
		claimed = append(claimed, id)
	}
	sort.Slice(claimed, func(i, j int) bool { return claimed[i].Less(claimed[j]) })
	var out []Entry
	for _, id := range claimed {
		entries, err := Range(tx, db, key, id, id, 1, true, false)
		if err != nil {
			return nil, err
		}
		out = append(out, entries...)
	}
	return out, nil
}
