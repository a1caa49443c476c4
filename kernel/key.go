package kernel

import "fmt"

// SearchKey identifies one search run for memoization. Two runs with
// equal keys may reuse each other's cached result.
type SearchKey struct {
	AST    string // kernel identity hash
	Amt    int    // requested iteration budget
	Device string // target device identifier
	Suffix string // backend-specific suffix
}

// String renders the key with a fixed field order so equal keys always
// produce equal cache keys.
func (k SearchKey) String() string {
	return fmt.Sprintf("ast=%s amt=%d device=%s suffix=%s", k.AST, k.Amt, k.Device, k.Suffix)
}
