package sheetsync

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

type valueKind int

const (
	valueKindEmpty valueKind = iota
	valueKindText
	valueKindBool
	valueKindRaw
)

// Value is one field value as stored in a document:
// a string for text controls, a bool for checkbox controls.
// The raw kind carries structured entries (layout documents) unchanged.
type Value struct {
	kind valueKind
	text string
	b    bool
	raw  json.RawMessage
}

func TextValue(text string) Value {
	return Value{
		kind: valueKindText,
		text: text,
	}
}

func BoolValue(b bool) Value {
	return Value{
		kind: valueKindBool,
		b:    b,
	}
}

func RawValue(raw json.RawMessage) Value {
	return Value{
		kind: valueKindRaw,
		raw:  raw,
	}
}

func (self Value) IsZero() bool {
	return self.kind == valueKindEmpty
}

func (self Value) IsBool() bool {
	return self.kind == valueKindBool
}

// Text coerces to the text control representation.
// A missing value coerces to the empty string.
func (self Value) Text() string {
	switch self.kind {
	case valueKindText:
		return self.text
	case valueKindBool:
		return strconv.FormatBool(self.b)
	case valueKindRaw:
		return string(self.raw)
	default:
		return ""
	}
}

// Checked coerces to the checkbox control representation.
func (self Value) Checked() bool {
	switch self.kind {
	case valueKindBool:
		return self.b
	case valueKindText:
		return self.text != "" && self.text != "false"
	default:
		return false
	}
}

// Int coerces a numeric text value, e.g. a track "{base}_max" field.
func (self Value) Int() (int, bool) {
	switch self.kind {
	case valueKindText:
		i, err := strconv.Atoi(strings.TrimSpace(self.text))
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

func (self Value) Raw() json.RawMessage {
	return self.raw
}

func (self Value) Equal(other Value) bool {
	if self.kind != other.kind {
		return false
	}
	switch self.kind {
	case valueKindText:
		return self.text == other.text
	case valueKindBool:
		return self.b == other.b
	case valueKindRaw:
		return bytes.Equal(self.raw, other.raw)
	default:
		return true
	}
}

func (self Value) MarshalJSON() ([]byte, error) {
	switch self.kind {
	case valueKindText:
		return json.Marshal(self.text)
	case valueKindBool:
		return json.Marshal(self.b)
	case valueKindRaw:
		return self.raw, nil
	default:
		return json.Marshal("")
	}
}

func (self *Value) UnmarshalJSON(src []byte) error {
	trimmed := bytes.TrimSpace(src)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*self = Value{}
		return nil
	}
	switch trimmed[0] {
	case '"':
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return err
		}
		*self = TextValue(text)
		return nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return err
		}
		*self = BoolValue(b)
		return nil
	case '{', '[':
		raw := make(json.RawMessage, len(trimmed))
		copy(raw, trimmed)
		*self = RawValue(raw)
		return nil
	default:
		// a bare number reads as its text form so that
		// numeric coercion still applies
		var n json.Number
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return err
		}
		*self = TextValue(n.String())
		return nil
	}
}
