package resp

import (
	"bytes"
	"testing"

	"github.com/redlite/redlite/internal/rlerr"
)

func TestReadCommandMultibulk(t *testing.T) {
	r := NewReader(bytes.NewBufferString("*2\r\n$3\r\nGET\r\n$3\r\nfoo\r\n"))
	args, err := r.ReadCommand()
	if err != nil {
		t.Fatalf("ReadCommand: %v", err)
	}
	if len(args) != 2 || string(args[0]) != "GET" || string(args[1]) != "foo" {
		t.Fatalf("unexpected args: %q", args)
	}
}

func TestReadCommandInline(t *testing.T) {
	r := NewReader(bytes.NewBufferString("PING hello\r\n"))
	args, err := r.ReadCommand()
	if err != nil {
		t.Fatalf("ReadCommand: %v", err)
	}
	if len(args) != 2 || string(args[0]) != "PING" || string(args[1]) != "hello" {
		t.Fatalf("unexpected args: %q", args)
	}
}

func TestEncodeSimpleValues(t *testing.T) {
	cases := []struct {
		name string
		v    any
		want string
	}{
		{"string", "OK", "+OK\r\n"},
		{"int", int64(42), ":42\r\n"},
		{"bulk", []byte("hi"), "$2\r\nhi\r\n"},
		{"nil", nil, "$-1\r\n"},
		{"array", []any{int64(1), int64(2)}, "*2\r\n:1\r\n:2\r\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			w := NewWriter(&buf)
			if err := Encode(w, tc.v); err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if err := w.Flush(); err != nil {
				t.Fatalf("Flush: %v", err)
			}
			if buf.String() != tc.want {
				t.Fatalf("got %q, want %q", buf.String(), tc.want)
			}
		})
	}
}

func TestEncodeErrorValue(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := Encode(w, rlerr.WrongTypef("wrong kind of value")); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	_ = w.Flush()
	want := "-WRONGTYPE wrong kind of value\r\n"
	if buf.String() != want {
		t.Fatalf("got %q, want %q", buf.String(), want)
	}
}

func TestEncodeMapRESP3VsRESP2(t *testing.T) {
	m := Map{{[]byte("a"), int64(1)}, {[]byte("b"), int64(2)}}

	var buf3 bytes.Buffer
	w3 := NewWriter(&buf3)
	w3.SetProto(3)
	if err := Encode(w3, m); err != nil {
		t.Fatalf("Encode RESP3: %v", err)
	}
	_ = w3.Flush()
	if want := "%2\r\n$1\r\na\r\n:1\r\n$1\r\nb\r\n:2\r\n"; buf3.String() != want {
		t.Fatalf("RESP3 map: got %q, want %q", buf3.String(), want)
	}

	var buf2 bytes.Buffer
	w2 := NewWriter(&buf2)
	if err := Encode(w2, m); err != nil {
		t.Fatalf("Encode RESP2: %v", err)
	}
	_ = w2.Flush()
	if want := "*4\r\n$1\r\na\r\n:1\r\n$1\r\nb\r\n:2\r\n"; buf2.String() != want {
		t.Fatalf("RESP2 map: got %q, want %q", buf2.String(), want)
	}
}
