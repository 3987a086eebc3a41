package storage

import "fmt"

// Pebble key schema. Trade keys zero-pad the ID so lexicographic order
// matches insertion order and a prefix scan replays the book in order.
const (
	prefixTrade = "trade:"
	keyState    = "state"
)

func tradeKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixTrade, id))
}

// keyUpperBound returns the smallest key greater than every key with the
// given prefix, for iterator bounds.
func keyUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
