// Package resp implements the RESP2/RESP3 wire protocol: inline and
// multi-bulk command parsing on the read side, and typed reply framing on
// the write side. RESP3-only frame types (boolean, double, map, push) are
// only ever emitted once a session has negotiated protover 3 via HELLO; the
// Writer falls back to their RESP2-compatible encodings otherwise.
package resp

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/redlite/redlite/internal/rlerr"
)

// Reader parses client commands off the wire.
type Reader struct {
	br *bufio.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, 64*1024)}
}

const maxBulkLen = 512 * 1024 * 1024 // matches Redis's proto-max-bulk-len default
const maxMultibulkLen = 1024 * 1024

// ReadCommand reads the next command as a slice of argument byte slices. It
// accepts both the multi-bulk array form real clients use and the inline
// form (a single line split on whitespace) used by tools like `nc` and by
// Redis's own inline-command fallback.
func (r *Reader) ReadCommand() ([][]byte, error) {
	first, err := r.br.Peek(1)
	if err != nil {
		return nil, err
	}
	if first[0] != '*' {
		return r.readInline()
	}
	return r.readMultibulk()
}

func (r *Reader) readInline() ([][]byte, error) {
	line, err := r.readLine()
	if err != nil {
		return nil, err
	}
	fields := bytes.Fields(line)
	if len(fields) == 0 {
		return nil, nil
	}
	return fields, nil
}

func (r *Reader) readMultibulk() ([][]byte, error) {
	line, err := r.readLine()
	if err != nil {
		return nil, err
	}
	if len(line) == 0 || line[0] != '*' {
		return nil, rlerr.New(rlerr.Proto, "expected '*', got something else")
	}
	n, err := strconv.Atoi(string(line[1:]))
	if err != nil {
		return nil, rlerr.New(rlerr.Proto, "invalid multibulk length")
	}
	if n <= 0 {
		return nil, nil
	}
	if n > maxMultibulkLen {
		return nil, rlerr.New(rlerr.Proto, "invalid multibulk length")
	}
	args := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		arg, err := r.readBulk()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	return args, nil
}

func (r *Reader) readBulk() ([]byte, error) {
	line, err := r.readLine()
	if err != nil {
		return nil, err
	}
	if len(line) == 0 || line[0] != '$' {
		return nil, rlerr.New(rlerr.Proto, "expected '$', got something else")
	}
	size, err := strconv.Atoi(string(line[1:]))
	if err != nil || size < 0 || size > maxBulkLen {
		return nil, rlerr.New(rlerr.Proto, "invalid bulk length")
	}
	buf := make([]byte, size+2) // + trailing CRLF
	if _, err := io.ReadFull(r.br, buf); err != nil {
		return nil, err
	}
	return buf[:size], nil
}

// readLine returns one CRLF-terminated line without the terminator.
func (r *Reader) readLine() ([]byte, error) {
	line, err := r.br.ReadSlice('\n')
	if err != nil {
		return nil, err
	}
	n := len(line)
	if n < 2 || line[n-2] != '\r' {
		return nil, rlerr.New(rlerr.Proto, "invalid line terminator")
	}
	return line[:n-2], nil
}

// Writer frames typed replies. proto selects RESP2 (2, the default until
// HELLO 3) or RESP3 encodings for types that differ between them.
type Writer struct {
	bw    *bufio.Writer
	proto int
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{bw: bufio.NewWriterSize(w, 16*1024), proto: 2}
}

// SetProto switches the writer's protocol version; the listener sets it
// from the session's HELLO-negotiated version before every reply.
func (w *Writer) SetProto(proto int) { w.proto = proto }

func (w *Writer) Flush() error { return w.bw.Flush() }

func (w *Writer) WriteSimpleString(s string) error {
	_, err := fmt.Fprintf(w.bw, "+%s\r\n", s)
	return err
}

func (w *Writer) WriteError(msg string) error {
	_, err := fmt.Fprintf(w.bw, "-%s\r\n", msg)
	return err
}

func (w *Writer) WriteInt(n int64) error {
	_, err := fmt.Fprintf(w.bw, ":%d\r\n", n)
	return err
}

// WriteBulk writes a bulk string, or the null bulk string if b is nil.
func (w *Writer) WriteBulk(b []byte) error {
	if b == nil {
		return w.WriteNull()
	}
	if _, err := fmt.Fprintf(w.bw, "$%d\r\n", len(b)); err != nil {
		return err
	}
	if _, err := w.bw.Write(b); err != nil {
		return err
	}
	_, err := w.bw.WriteString("\r\n")
	return err
}

// WriteNull writes RESP3's `_\r\n`, or RESP2's null bulk string `$-1\r\n`.
func (w *Writer) WriteNull() error {
	if w.proto >= 3 {
		_, err := w.bw.WriteString("_\r\n")
		return err
	}
	_, err := w.bw.WriteString("$-1\r\n")
	return err
}

// WriteNullArray writes RESP2's null array `*-1\r\n` (RESP3 has no separate
// null array type; WriteNull is used there instead).
func (w *Writer) WriteNullArray() error {
	if w.proto >= 3 {
		return w.WriteNull()
	}
	_, err := w.bw.WriteString("*-1\r\n")
	return err
}

func (w *Writer) WriteArrayHeader(n int) error {
	_, err := fmt.Fprintf(w.bw, "*%d\r\n", n)
	return err
}

// WritePushHeader writes a RESP3 push-type header (`>n\r\n`), or a plain
// array header under RESP2 where pub/sub messages are ordinary arrays.
func (w *Writer) WritePushHeader(n int) error {
	if w.proto >= 3 {
		_, err := fmt.Fprintf(w.bw, ">%d\r\n", n)
		return err
	}
	return w.WriteArrayHeader(n)
}

// WriteBool writes RESP3 `#t`/`#f`, or the RESP2-compatible integer 1/0.
func (w *Writer) WriteBool(b bool) error {
	if w.proto >= 3 {
		if b {
			_, err := w.bw.WriteString("#t\r\n")
			return err
		}
		_, err := w.bw.WriteString("#f\r\n")
		return err
	}
	if b {
		return w.WriteInt(1)
	}
	return w.WriteInt(0)
}

// WriteDouble writes RESP3 `,`-typed doubles, or a RESP2 bulk string with
// the same formatting ZSET commands have always used.
func (w *Writer) WriteDouble(f float64) error {
	s := formatScore(f)
	if w.proto >= 3 {
		_, err := fmt.Fprintf(w.bw, ",%s\r\n", s)
		return err
	}
	return w.WriteBulk([]byte(s))
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'g', 17, 64)
}

// WriteMapHeader writes a RESP3 map header (`%n\r\n` for n pairs), or a
// RESP2 array header of 2n (flattened key/value pairs).
func (w *Writer) WriteMapHeader(pairs int) error {
	if w.proto >= 3 {
		_, err := fmt.Fprintf(w.bw, "%%%d\r\n", pairs)
		return err
	}
	return w.WriteArrayHeader(pairs * 2)
}

// WriteErrorValue writes a typed *rlerr.Error using Redis's conventional
// "KIND message" error line, or a generic error line for anything else.
func (w *Writer) WriteErrorValue(err error) error {
	if e, ok := rlerr.As(err); ok {
		return w.WriteError(fmt.Sprintf("%s %s", errPrefix(e.Kind), e.Msg))
	}
	return w.WriteError(err.Error())
}

// Push is a tagged wrapper so Encode knows to frame a value as a RESP3 push
// message (or a plain array pre-RESP3), used for pub/sub deliveries.
type Push []any

// Map is a tagged wrapper so Encode frames a value as a RESP3 map (or a
// flattened array pre-RESP3), used for HGETALL/CONFIG GET-style replies.
type Map [][2]any

// Encode writes v in whatever RESP frame fits its Go type, recursing into
// slices and the Push/Map wrappers. Handlers return plain Go values from
// this set rather than building frames themselves:
//
//	nil           -> null
//	bool          -> boolean (RESP3) / integer 0|1 (RESP2)
//	int, int64    -> integer
//	float64       -> double (RESP3) / bulk string (RESP2)
//	string        -> simple string (status replies such as "OK")
//	[]byte        -> bulk string
//	error         -> error
//	[]any         -> array (recursively encoded)
//	Push          -> RESP3 push / RESP2 array
//	Map           -> RESP3 map / RESP2 flattened array
func Encode(w *Writer, v any) error {
	switch val := v.(type) {
	case nil:
		return w.WriteNull()
	case error:
		return w.WriteErrorValue(val)
	case bool:
		return w.WriteBool(val)
	case int:
		return w.WriteInt(int64(val))
	case int64:
		return w.WriteInt(val)
	case float64:
		return w.WriteDouble(val)
	case string:
		return w.WriteSimpleString(val)
	case []byte:
		return w.WriteBulk(val)
	case [][]byte:
		if val == nil {
			return w.WriteNullArray()
		}
		if err := w.WriteArrayHeader(len(val)); err != nil {
			return err
		}
		for _, b := range val {
			if err := w.WriteBulk(b); err != nil {
				return err
			}
		}
		return nil
	case []any:
		if val == nil {
			return w.WriteNullArray()
		}
		if err := w.WriteArrayHeader(len(val)); err != nil {
			return err
		}
		for _, item := range val {
			if err := Encode(w, item); err != nil {
				return err
			}
		}
		return nil
	case Push:
		if err := w.WritePushHeader(len(val)); err != nil {
			return err
		}
		for _, item := range val {
			if err := Encode(w, item); err != nil {
				return err
			}
		}
		return nil
	case Map:
		if err := w.WriteMapHeader(len(val)); err != nil {
			return err
		}
		for _, kv := range val {
			if err := Encode(w, kv[0]); err != nil {
				return err
			}
			if err := Encode(w, kv[1]); err != nil {
				return err
			}
		}
		return nil
	default:
		return rlerr.New(rlerr.Unknown, "internal: unsupported reply type %T", v)
	}
}

func errPrefix(kind rlerr.Kind) string {
	switch kind {
	case rlerr.WrongType:
		return "WRONGTYPE"
	case rlerr.Syntax:
		return "ERR syntax error:"
	case rlerr.Value:
		return "ERR"
	case rlerr.NoAuth:
		return "NOAUTH"
	case rlerr.ReadOnly:
		return "READONLY"
	case rlerr.NoScript:
		return "NOSCRIPT"
	case rlerr.ExecAbort:
		return "EXECABORT"
	case rlerr.Busy:
		return "BUSY"
	case rlerr.OOM:
		return "OOM"
	case rlerr.Proto:
		return "ERR Protocol error:"
	default:
		return "ERR"
	}
}
