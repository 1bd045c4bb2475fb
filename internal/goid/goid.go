// Package goid extracts the id of the calling goroutine.
//
// The registry needs to tell a re-entrant resolution (a component factory
// resolving its own name again on the same goroutine — a constructor cycle)
// apart from a concurrent resolution of the same name by another goroutine.
// Factories resolve their dependencies synchronously, so the goroutine id is
// exactly that distinction.
package goid

import "runtime"

const header = len("goroutine ")

// ID returns the id of the calling goroutine, parsed from the first line of
// the runtime stack header ("goroutine 123 [running]:").
func ID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := header; i < n && buf[i] >= '0' && buf[i] <= '9'; i++ {
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}
