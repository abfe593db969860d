package storage

import "fmt"

// Pebble key schema. Prefixes keep the four record families in disjoint,
// prefix-scannable ranges:
//
//	ord:<orderID>                 → Order
//	fill:<orderID>:<%06d seq>     → Fill (seq zero-padded for ordering)
//	pfs:<orderID>                 → PartialFillState
//	exp:<%012d hour>:<orderID>    → ExpirationRecord (hour bucket scans)
const (
	prefixOrder       = "ord:"
	prefixFill        = "fill:"
	prefixPartialFill = "pfs:"
	prefixExpiration  = "exp:"
)

func orderKey(orderID string) []byte {
	return []byte(prefixOrder + orderID)
}

func fillKey(orderID string, seq int) []byte {
	return []byte(fmt.Sprintf("%s%s:%06d", prefixFill, orderID, seq))
}

func fillPrefix(orderID string) []byte {
	return []byte(prefixFill + orderID + ":")
}

func partialFillKey(orderID string) []byte {
	return []byte(prefixPartialFill + orderID)
}

func expirationKey(hour int64, orderID string) []byte {
	return []byte(fmt.Sprintf("%s%012d:%s", prefixExpiration, hour, orderID))
}

func expirationBucketPrefix(hour int64) []byte {
	return []byte(fmt.Sprintf("%s%012d:", prefixExpiration, hour))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
