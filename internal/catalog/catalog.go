// Package catalog is the static registry of every GATT characteristic the engine knows about.
//
// Entries are immutable and live for the whole process. The session layer resolves them
// against the connected device; nothing here talks to a radio.
package catalog

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Kind is the wire decoding of a characteristic value.
type Kind int

const (
	// Numeric values are unsigned little-endian 16-bit integers.
	Numeric Kind = iota
	// Text values are UTF-8 byte sequences.
	Text
)

func (k Kind) String() string {
	if k == Text {
		return "text"
	}
	return "numeric"
}

// Group decides when a non-core entry is resolved.
type Group int

const (
	// GroupCore entries are read and decoded explicitly by the session bring-up.
	GroupCore Group = iota
	// GroupBattery entries are resolved on every connect.
	GroupBattery
	// GroupDiagnostics entries are resolved only for detailed connects.
	GroupDiagnostics
)

func (g Group) String() string {
	switch g {
	case GroupCore:
		return "core"
	case GroupBattery:
		return "battery"
	case GroupDiagnostics:
		return "diagnostics"
	default:
		return "Group(" + strconv.Itoa(int(g)) + ")"
	}
}

// Descriptor describes one characteristic of interest.
type Descriptor struct {
	UUID      string
	Service   string
	Kind      Kind
	Label     string
	Divider   float64 // display-only scaling, 0 means none
	Suffix    string  // display-only unit suffix
	Notify    bool
	Mandatory bool
	Group     Group
}

// Format renders a decoded value for display applying Divider and Suffix.
func (d Descriptor) Format(value any) string {
	var s string
	switch v := value.(type) {
	case uint16:
		if d.Divider > 0 {
			s = strconv.FormatFloat(float64(v)/d.Divider, 'f', -1, 64)
		} else {
			s = strconv.FormatUint(uint64(v), 10)
		}
	case string:
		s = v
	case nil:
		s = ""
	default:
		s = fmt.Sprint(v)
	}

	if d.Suffix != "" && s != "" {
		return s + " " + d.Suffix
	}
	return s
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s (%s)", d.Label, d.UUID)
}

var index = orderedmap.New[string, Descriptor]()

func init() {
	for _, d := range entries {
		canonical := uuid.MustParse(d.UUID).String()
		if canonical != d.UUID {
			panic(fmt.Sprintf("catalog: UUID %q is not canonical (want %q)", d.UUID, canonical))
		}
		if _, err := uuid.Parse(d.Service); err != nil {
			panic(fmt.Sprintf("catalog: invalid service UUID %q for %s: %v", d.Service, d.Label, err))
		}
		if _, dup := index.Set(d.UUID, d); dup {
			panic(fmt.Sprintf("catalog: duplicate entry %s", d.UUID))
		}
	}
}

// Canonical returns the lowercase dashed form of a 128-bit UUID.
// Dashless, uppercase and braced forms are accepted.
func Canonical(s string) (string, error) {
	u, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("invalid UUID %q: %w", s, err)
	}
	return u.String(), nil
}

// Lookup returns the descriptor for a characteristic UUID in any accepted form.
func Lookup(s string) (Descriptor, bool) {
	c, err := Canonical(s)
	if err != nil {
		return Descriptor{}, false
	}
	return index.Get(c)
}

// MustLookup is Lookup for UUIDs known at compile time.
func MustLookup(s string) Descriptor {
	d, ok := Lookup(s)
	if !ok {
		panic("catalog: unknown characteristic " + s)
	}
	return d
}

// All returns every entry in catalog order.
func All() []Descriptor {
	out := make([]Descriptor, 0, index.Len())
	for p := index.Oldest(); p != nil; p = p.Next() {
		out = append(out, p.Value)
	}
	return out
}

// InService returns the entries owned by service in catalog order.
func InService(service string) []Descriptor {
	var out []Descriptor
	for p := index.Oldest(); p != nil; p = p.Next() {
		if p.Value.Service == service {
			out = append(out, p.Value)
		}
	}
	return out
}

// Extras returns the generic (non-core) entries of the metadata and miscellaneous services
// to resolve on connect. Without detailed only the battery subgroup is returned.
func Extras(detailed bool) []Descriptor {
	var out []Descriptor
	for p := index.Oldest(); p != nil; p = p.Next() {
		d := p.Value
		if d.Group == GroupCore || d.Service == DataService {
			continue
		}
		if d.Group == GroupBattery || detailed {
			out = append(out, d)
		}
	}
	return out
}

// Notifying returns every entry flagged for change notifications.
func Notifying() []Descriptor {
	var out []Descriptor
	for p := index.Oldest(); p != nil; p = p.Next() {
		if p.Value.Notify {
			out = append(out, p.Value)
		}
	}
	return out
}

// Mandatory returns the entries whose absence fails a connect.
func Mandatory() []Descriptor {
	var out []Descriptor
	for p := index.Oldest(); p != nil; p = p.Next() {
		if p.Value.Mandatory {
			out = append(out, p.Value)
		}
	}
	return out
}
