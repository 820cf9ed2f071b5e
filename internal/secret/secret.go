// Package secret provides non-elidable zeroing for key material.
package secret

import "runtime"

// Wipe overwrites b with zeros. The KeepAlive fence keeps the compiler from
// eliding the stores when b is about to become unreachable.
func Wipe(b []byte) {
	if len(b) == 0 {
		return
	}

	for i := range b {
		b[i] = 0
	}

	runtime.KeepAlive(&b[0])
}
