// Package pathcache defines the serialized path cache stored on owner rows.
//
// The column maps a host partition to a slot map, a slot to its variant map
// and a variant ("" for the original file) to a public path:
//
//	{"*": {"photo": {"": "/files/0000/0001/me.jpg", "thumb": "/files/0000/0001/me_thumb.jpg"}, "logo": null}}
//
// A slot mapped to null means the owner has no attachment in that slot. A slot
// missing from the map has not been computed yet.
package pathcache

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
)

// AnyHost is the partition key used when caches are not partitioned by host.
const AnyHost = "*"

// Variants maps a thumbnail variant to its public path.
type Variants map[string]string

// Slots maps a slot name to its variants. A nil Variants marks the slot as empty.
type Slots map[string]Variants

// Column is the owner attribute holding the cache for every host partition.
// Empty columns are stored as NULL.
type Column map[string]Slots

// Value implements driver.Valuer
func (c Column) Value() (driver.Value, error) {
	if len(c) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode path cache: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (c *Column) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*c = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported path cache value of type %T", src)
	}
	if len(raw) == 0 || string(raw) == "null" {
		*c = nil
		return nil
	}

	var decoded Column
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("failed to decode path cache: %w", err)
	}
	*c = decoded
	return nil
}

// GormDataType keeps the column portable between sqlite and postgres
func (Column) GormDataType() string {
	return "text"
}

// Partition returns the slots cached for host, or nil.
func (c Column) Partition(host string) Slots {
	return c[host]
}

// WithPartition returns a copy of c where host maps to slots. An empty slots
// map removes the partition; a column without partitions is nil.
func (c Column) WithPartition(host string, slots Slots) Column {
	out := c.Clone()
	if len(slots) == 0 {
		delete(out, host)
	} else {
		if out == nil {
			out = Column{}
		}
		out[host] = slots.Clone()
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Clone returns a deep copy of c.
func (c Column) Clone() Column {
	if c == nil {
		return nil
	}
	out := make(Column, len(c))
	for host, slots := range c {
		out[host] = slots.Clone()
	}
	return out
}

// Equal reports whether both columns hold the same entries, treating nil and
// empty columns alike.
func (c Column) Equal(other Column) bool {
	if len(c) == 0 && len(other) == 0 {
		return true
	}
	return reflect.DeepEqual(c, other)
}

// Lookup returns the cached variants for slot and whether the slot is cached
// at all. A cached slot with nil variants has no attachment.
func (s Slots) Lookup(slot string) (Variants, bool) {
	v, ok := s[slot]
	return v, ok
}

// Clone returns a deep copy of s, preserving nil slot markers.
func (s Slots) Clone() Slots {
	if s == nil {
		return nil
	}
	out := make(Slots, len(s))
	for slot, variants := range s {
		if variants == nil {
			out[slot] = nil
			continue
		}
		out[slot] = maps.Clone(variants)
	}
	return out
}
