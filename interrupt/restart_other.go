//go:build !linux

package interrupt

import (
	"relix.lol/log"
)

// Restart is only implemented on linux.
func Restart() {
	log.W.Ln("restart not implemented on this platform")
}
