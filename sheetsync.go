package sheetsync

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"net/url"

	"github.com/oklog/ulid/v2"
)

// binds a page of labeled controls to remotely stored documents:
// - field values sync both directions (local edits debounce into merge writes,
//   remote snapshots apply back into the controls)
// - track sub-fields beyond the player-set maximum are disabled and cleared
// - control layout persists to a second document, loaded once at boot

const DefaultCharId = "unnamed"
const DefaultPageId = "core"

// one sheet is identified by a (character, page) pair
type SheetLocator struct {
	CharId string
	PageId string
}

// ParseSheetLocator reads the page-load query parameters,
// e.g. "?char=alice&page=core".
func ParseSheetLocator(query url.Values) SheetLocator {
	locator := SheetLocator{
		CharId: query.Get("char"),
		PageId: query.Get("page"),
	}
	if locator.CharId == "" {
		locator.CharId = DefaultCharId
	}
	if locator.PageId == "" {
		locator.PageId = DefaultPageId
	}
	return locator
}

func (self SheetLocator) FieldDocumentPath() string {
	return fmt.Sprintf("characters/%s/pages/%s", self.CharId, self.PageId)
}

func (self SheetLocator) LayoutDocumentPath() string {
	return fmt.Sprintf("layouts/%s", self.PageId)
}

func (self SheetLocator) String() string {
	return fmt.Sprintf("%s/%s", self.CharId, self.PageId)
}

// comparable
type Id [16]byte

func NewId() Id {
	return Id(ulid.Make())
}

func (self Id) LessThan(other Id) bool {
	return bytes.Compare(self[0:16], other[0:16]) < 0
}

func (self Id) String() string {
	return encodeUuid(self)
}

func (self *Id) MarshalJSON() ([]byte, error) {
	var buf [16]byte
	copy(buf[0:16], self[0:16])
	var buff bytes.Buffer
	buff.WriteByte('"')
	buff.WriteString(encodeUuid(buf))
	buff.WriteByte('"')
	b := buff.Bytes()
	return b, nil
}

func (self *Id) UnmarshalJSON(src []byte) error {
	if len(src) != 38 {
		return fmt.Errorf("invalid length for UUID: %v", len(src))
	}
	buf, err := parseUuid(string(src[1 : len(src)-1]))
	if err != nil {
		return err
	}
	*self = buf
	return nil
}

func parseUuid(src string) (dst [16]byte, err error) {
	switch len(src) {
	case 36:
		src = src[0:8] + src[9:13] + src[14:18] + src[19:23] + src[24:]
	case 32:
		// dashes already stripped, assume valid
	default:
		// assume invalid.
		return dst, fmt.Errorf("cannot parse UUID %v", src)
	}

	buf, err := hex.DecodeString(src)
	if err != nil {
		return dst, err
	}

	copy(dst[:], buf)
	return dst, err
}

func encodeUuid(src [16]byte) string {
	return fmt.Sprintf("%x-%x-%x-%x-%x", src[0:4], src[4:6], src[6:8], src[8:10], src[10:16])
}
