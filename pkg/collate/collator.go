package collate

import (
	"bytes"
	"fmt"
	"strings"

	xcollate "golang.org/x/text/collate"
	"golang.org/x/text/language"
)

type Kind int

const (
	// KindBinary compares raw bytes.
	KindBinary Kind = iota
	// KindBinaryPadding compares raw bytes ignoring trailing spaces.
	KindBinaryPadding
	// KindGeneral compares linguistically, case and width insensitive.
	KindGeneral
)

func (k Kind) String() string {
	switch k {
	case KindBinary:
		return "binary"
	case KindBinaryPadding:
		return "binary_padding"
	case KindGeneral:
		return "general"
	}
	panic(fmt.Sprintf("usp collator kind %d", k))
}

// Collator compares and hashes strings. Instances are not safe for
// concurrent use; call Clone for each goroutine.
type Collator interface {
	Name() string
	Kind() Kind
	Compare(a, b string) int
	// SortKey appends to dst a byte string that is equal for two inputs
	// exactly when Compare reports them equal.
	SortKey(dst []byte, s string) []byte
	Clone() Collator
}

// New returns the collator registered under name.
// Unknown names fail. An empty name is binary.
func New(name string) (Collator, error) {
	lname := strings.ToLower(name)
	switch lname {
	case "", "binary":
		return &binaryCollator{}, nil
	case "utf8mb4_bin", "utf8_bin", "latin1_bin", "ascii_bin":
		return &paddingCollator{name: lname}, nil
	case "utf8mb4_general_ci", "utf8_general_ci", "utf8mb4_unicode_ci", "utf8_unicode_ci", "utf8mb4_0900_ai_ci":
		return newGeneralCollator(lname, language.Und), nil
	}
	if locale, ok := strings.CutSuffix(lname, "_ci"); ok {
		tag, err := language.Parse(locale)
		if err != nil {
			return nil, fmt.Errorf("unknown collation %q: %w", name, err)
		}
		return newGeneralCollator(lname, tag), nil
	}
	return nil, fmt.Errorf("unknown collation %q", name)
}

func MustNew(name string) Collator {
	c, err := New(name)
	if err != nil {
		panic(err)
	}
	return c
}

type binaryCollator struct{}

func (c *binaryCollator) Name() string {
	return "binary"
}

func (c *binaryCollator) Kind() Kind {
	return KindBinary
}

func (c *binaryCollator) Compare(a, b string) int {
	return strings.Compare(a, b)
}

func (c *binaryCollator) SortKey(dst []byte, s string) []byte {
	return append(dst, s...)
}

func (c *binaryCollator) Clone() Collator {
	return c
}

type paddingCollator struct {
	name string
}

func (c *paddingCollator) Name() string {
	return c.name
}

func (c *paddingCollator) Kind() Kind {
	return KindBinaryPadding
}

func (c *paddingCollator) Compare(a, b string) int {
	return strings.Compare(TrimPadding(a), TrimPadding(b))
}

func (c *paddingCollator) SortKey(dst []byte, s string) []byte {
	return append(dst, TrimPadding(s)...)
}

func (c *paddingCollator) Clone() Collator {
	return c
}

type generalCollator struct {
	name string
	tag  language.Tag
	coll *xcollate.Collator
	buf  xcollate.Buffer
	lbuf []byte
	rbuf []byte
}

func newGeneralCollator(name string, tag language.Tag) *generalCollator {
	return &generalCollator{
		name: name,
		tag:  tag,
		coll: xcollate.New(tag, xcollate.IgnoreCase, xcollate.IgnoreWidth),
	}
}

func (c *generalCollator) Name() string {
	return c.name
}

func (c *generalCollator) Kind() Kind {
	return KindGeneral
}

func (c *generalCollator) Compare(a, b string) int {
	c.lbuf = c.SortKey(c.lbuf[:0], a)
	c.rbuf = c.SortKey(c.rbuf[:0], b)
	return bytes.Compare(c.lbuf, c.rbuf)
}

func (c *generalCollator) SortKey(dst []byte, s string) []byte {
	c.buf.Reset()
	key := c.coll.KeyFromString(&c.buf, TrimPadding(s))
	return append(dst, key...)
}

func (c *generalCollator) Clone() Collator {
	return newGeneralCollator(c.name, c.tag)
}

// TrimPadding removes trailing spaces.
func TrimPadding(s string) string {
	return strings.TrimRight(s, " ")
}
