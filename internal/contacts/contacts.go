// Package contacts produces the placeholder contact list shown on the
// unlocked screen.
package contacts

import (
	"fmt"
	"sync/atomic"
)

type Contact struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Online bool   `json:"online"`
}

var lastID atomic.Int64

// CreateList returns n contacts named "Person <id>". Ids keep counting
// across calls for the life of the process. The first n/2 are online.
func CreateList(n int) []Contact {
	if n <= 0 {
		return []Contact{}
	}
	out := make([]Contact, 0, n)
	for i := 1; i <= n; i++ {
		id := lastID.Add(1)
		out = append(out, Contact{
			ID:     id,
			Name:   fmt.Sprintf("Person %d", id),
			Online: i <= n/2,
		})
	}
	return out
}
