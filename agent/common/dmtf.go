package common

import (
	"strconv"
	"time"

	"github.com/jetrmm/sysprobe/shared"
)

// DMTF_MIN_LEN is the shortest CIM_DATETIME value that still carries an
// offset: yyyymmddHHMMSS.ffffff plus a sign and at least one digit.
const (
	DMTF_MIN_LEN     = 22
	DMTF_MAX_OFFSET  = 24*60 - 1 // minutes
	dmtfFractionFrom = 15
	dmtfFractionTo   = 21
)

// ParseDMTF converts a WMI CIM_DATETIME string (yyyymmddHHMMSS.ffffff±UUU)
// to unix seconds. The fraction is validated but dropped.
func ParseDMTF(s string) (int64, error) {
	t, err := ParseDMTFTime(s)
	if err != nil {
		return 0, err
	}
	return t.Unix(), nil
}

// ParseDMTFTime is ParseDMTF returning the instant in the encoded zone.
func ParseDMTFTime(s string) (time.Time, error) {
	if len(s) < DMTF_MIN_LEN {
		return time.Time{}, shared.Tag(shared.ErrDecode, strconv.ErrSyntax, "dmtf %q: need at least %d characters", s, DMTF_MIN_LEN)
	}

	var f [6]int
	spans := [6][2]int{{0, 4}, {4, 6}, {6, 8}, {8, 10}, {10, 12}, {12, 14}}
	for i, sp := range spans {
		v, err := atoiDigits(s[sp[0]:sp[1]])
		if err != nil {
			return time.Time{}, shared.Tag(shared.ErrDecode, err, "dmtf %q: field %d", s, i)
		}
		f[i] = v
	}
	if _, err := atoiDigits(s[dmtfFractionFrom:dmtfFractionTo]); err != nil {
		return time.Time{}, shared.Tag(shared.ErrDecode, err, "dmtf %q: fraction", s)
	}

	offset, err := strconv.Atoi(s[dmtfFractionTo:])
	if err != nil {
		return time.Time{}, shared.Tag(shared.ErrDecode, err, "dmtf %q: offset", s)
	}
	if offset < -DMTF_MAX_OFFSET || offset > DMTF_MAX_OFFSET {
		return time.Time{}, shared.Tag(shared.ErrDecode, strconv.ErrRange, "dmtf %q: offset %d minutes", s, offset)
	}

	year, month, day, hour, minute, sec := f[0], f[1], f[2], f[3], f[4], f[5]
	if month < 1 || month > 12 || day < 1 || day > daysIn(time.Month(month), year) ||
		hour > 23 || minute > 59 || sec > 59 {
		return time.Time{}, shared.Tag(shared.ErrDecode, strconv.ErrRange, "dmtf %q: date out of range", s)
	}

	zone := time.FixedZone("", offset*60)
	return time.Date(year, time.Month(month), day, hour, minute, sec, 0, zone), nil
}

// atoiDigits accepts only ASCII digits, so "+1" or " 1" in a fixed-width
// field is rejected.
func atoiDigits(s string) (int, error) {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, strconv.ErrSyntax
		}
	}
	return strconv.Atoi(s)
}

func daysIn(m time.Month, year int) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
