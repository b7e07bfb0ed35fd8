// Package bytesize provides a memory size that parses from either a
// number of bytes or a string with a base-2 unit such as "512MiB".
package bytesize

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/units"
)

// Bytes is a size in bytes.  It implements flag.Value and unmarshals
// from YAML numbers and strings.
type Bytes float64

func Parse(s string) (Bytes, error) {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return Bytes(f), nil
	}
	n, err := units.ParseBase2Bytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q", s)
	}
	return Bytes(n), nil
}

func (b Bytes) String() string {
	if b != Bytes(int64(b)) {
		return strconv.FormatFloat(float64(b), 'g', -1, 64)
	}
	return units.Base2Bytes(int64(b)).String()
}

func (b *Bytes) Set(s string) error {
	v, err := Parse(s)
	if err != nil {
		return err
	}
	*b = v
	return nil
}

func (b *Bytes) UnmarshalYAML(unmarshal func(any) error) error {
	var f float64
	if err := unmarshal(&f); err == nil {
		*b = Bytes(f)
		return nil
	}
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return b.Set(s)
}
