// Package env loads KEY=value files as a configuration source for
// go-simpler.org/env.
package env

import (
	"os"
	"strings"

	"relix.lol/chk"
)

// Env is a key/value map representing environment variables.
type Env map[string]string

// GetEnv reads a file of KEY=value lines in shell environment format. Blank
// lines and lines starting with # are skipped; values keep everything after
// the first equals sign.
func GetEnv(path string) (env Env, err error) {
	var s []byte
	env = make(Env)
	if s, err = os.ReadFile(path); chk.T(err) {
		return
	}
	lines := strings.Split(string(s), "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if len(line) == 0 || strings.HasPrefix(line, "#") {
			continue
		}
		split := strings.SplitN(line, "=", 2)
		if len(split) != 2 {
			continue
		}
		env[strings.TrimSpace(split[0])] = strings.TrimSpace(split[1])
	}
	return
}

// LookupEnv returns the value associated with a key, satisfying the source
// interface of go-simpler.org/env so a file can stand in for the process
// environment.
func (env Env) LookupEnv(key string) (value string, ok bool) {
	value, ok = env[key]
	return
}
