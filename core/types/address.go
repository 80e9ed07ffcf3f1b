package types

import "strings"

// Address identifies an account on the host ledger. The lending engine treats
// addresses as opaque identifiers supplied by the transaction layer; it never
// derives or verifies them.
type Address string

// IsZero reports whether the address is empty after trimming whitespace.
func (a Address) IsZero() bool {
	return strings.TrimSpace(string(a)) == ""
}

func (a Address) String() string {
	return string(a)
}
