package coredump

import "strings"

// Field is one NAME=VALUE pair as sent over the wire and submitted to the
// journal sink. Binary payloads (COREDUMP=...) are represented with Value
// holding raw bytes rather than UTF-8 text.
type Field struct {
	Name  string
	Value []byte
}

// NewField builds a text field.
func NewField(name, value string) Field {
	return Field{Name: name, Value: []byte(value)}
}

// String renders the field in NAME=VALUE form for transports that accept
// a single byte string (used by the wire protocol, never by the journal
// sink which keeps Name/Value separate).
func (f Field) String() string {
	var b strings.Builder
	b.WriteString(f.Name)
	b.WriteByte('=')
	b.Write(f.Value)
	return b.String()
}

// ParseField splits a wire datagram of the form "NAME=VALUE" into a Field.
func ParseField(raw []byte) (Field, bool) {
	idx := -1
	for i, b := range raw {
		if b == '=' {
			idx = i
			break
		}
	}

	if idx < 0 {
		return Field{}, false
	}

	value := make([]byte, len(raw)-idx-1)
	copy(value, raw[idx+1:])

	return Field{Name: string(raw[:idx]), Value: value}, true
}

// JournalName returns the COREDUMP_-prefixed journal field name for a
// context key, e.g. "COREDUMP_PID".
func (k ContextKey) JournalName() string {
	return "COREDUMP_" + k.String()
}

// ParseContextKey recovers the ContextKey a COREDUMP_-prefixed field name
// encodes, if any (spec.md §4.2: "classifying any field whose name
// matches a context key as part of the Context record").
func ParseContextKey(name string) (ContextKey, bool) {
	const prefix = "COREDUMP_"
	if !strings.HasPrefix(name, prefix) {
		return 0, false
	}

	suffix := name[len(prefix):]

	for k := ContextKey(0); k < numContextKeys; k++ {
		if k.String() == suffix {
			return k, true
		}
	}

	return 0, false
}
