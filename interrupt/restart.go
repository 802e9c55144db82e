//go:build linux

package interrupt

import (
	"os"
	"syscall"

	"github.com/kardianos/osext"

	"relix.lol/log"
)

// Restart uses syscall.Exec to replace the process with a fresh copy of its
// own executable. MacOS and Windows are not implemented, currently.
func Restart() {
	log.D.Ln("restarting")
	file, err := osext.Executable()
	if err != nil {
		log.E.Ln(err)
		return
	}
	err = syscall.Exec(file, os.Args, os.Environ())
	if err != nil {
		log.F.Ln(err)
	}
}
