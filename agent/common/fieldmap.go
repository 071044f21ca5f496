package common

import (
	"sort"
	"strconv"

	"github.com/jetrmm/sysprobe/shared"
)

// FieldMap is one WMI result row: property name to its formatted value.
// Null properties are present with an empty value.
type FieldMap map[string]string

// QueryResult holds the rows of one query in the order they were returned.
type QueryResult []FieldMap

// Required returns the named field or a *shared.MissingFieldError.
func (m FieldMap) Required(name string) (string, error) {
	v, ok := m[name]
	if !ok {
		return "", &shared.MissingFieldError{Field: name}
	}
	return v, nil
}

// Optional reports a field only when it is present and non-empty.
func (m FieldMap) Optional(name string) (string, bool) {
	v, ok := m[name]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Uint parses a required unsigned field of the given bit size.
func (m FieldMap) Uint(name string, bits int) (uint64, error) {
	v, err := m.Required(name)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(v, 10, bits)
	if err != nil {
		return 0, shared.Tag(shared.ErrDecode, err, "field %s", name)
	}
	return n, nil
}

// OptionalUint is Uint for a field that may be null. It still fails when the
// field is missing from the row entirely.
func (m FieldMap) OptionalUint(name string, bits int) (*uint64, error) {
	v, err := m.Required(name)
	if err != nil {
		return nil, err
	}
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseUint(v, 10, bits)
	if err != nil {
		return nil, shared.Tag(shared.ErrDecode, err, "field %s", name)
	}
	return &n, nil
}

// Timestamp decodes a required CIM_DATETIME field to unix seconds.
func (m FieldMap) Timestamp(name string) (int64, error) {
	v, err := m.Required(name)
	if err != nil {
		return 0, err
	}
	return ParseDMTF(v)
}

// Names returns the field names in sorted order.
func (m FieldMap) Names() []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
