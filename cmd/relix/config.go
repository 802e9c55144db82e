package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"go-simpler.org/env"

	"relix.lol/appdata"
	"relix.lol/chk"
	envfile "relix.lol/env"
)

type C struct {
	AppName   string   `env:"APP_NAME" default:"relix"`
	Profile   string   `env:"PROFILE" usage:"root path for the .env file and client state (OS specific location based on APP_NAME when unset)"`
	Relays    []string `env:"RELAYS" usage:"websocket urls of the relays commands talk to"`
	SecretKey string   `env:"SECRET_KEY" usage:"client identity, nsec or 64 character hex"`
	LogLevel  string   `env:"LOG_LEVEL" default:"info" usage:"debug level: fatal error warn info debug trace"`
	Timeout   int      `env:"TIMEOUT" default:"15" usage:"seconds to wait on relays before giving up"`
	Pprof     bool     `env:"PPROF" default:"false" usage:"write a memory profile under the profile path"`
}

// NewConfig loads the configuration from the process environment, then
// overlays a .env file from the profile directory when one exists.
func NewConfig() (cfg *C, err error) {
	cfg = &C{}
	opts := &env.Options{SliceSep: ","}
	if err = env.Load(cfg, opts); chk.T(err) {
		return
	}
	if cfg.Profile == "" {
		cfg.Profile = appdata.Dir(cfg.AppName, true)
	}
	envPath := filepath.Join(cfg.Profile, ".env")
	if fileExists(envPath) {
		var e envfile.Env
		if e, err = envfile.GetEnv(envPath); chk.T(err) {
			return
		}
		if err = env.Load(cfg, &env.Options{Source: e,
			SliceSep: ","}); chk.E(err) {
			return
		}
	}
	return
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

type KV struct{ Key, Value string }

type KVSlice []KV

func (kv KVSlice) Len() int           { return len(kv) }
func (kv KVSlice) Less(i, j int) bool { return kv[i].Key < kv[j].Key }
func (kv KVSlice) Swap(i, j int)      { kv[i], kv[j] = kv[j], kv[i] }

// EnvKV turns a struct with `env` tags into a key/value pair list, one per
// variable, in .env format order. Pass the struct dereferenced.
func EnvKV(cfg any) (m KVSlice) {
	t := reflect.TypeOf(cfg)
	v := reflect.ValueOf(cfg)
	for i := 0; i < t.NumField(); i++ {
		k := t.Field(i).Tag.Get("env")
		// embedded structs have no tag of their own
		if k == "" {
			continue
		}
		field := v.Field(i).Interface()
		var val string
		switch fv := field.(type) {
		case string:
			val = fv
		case int, bool:
			val = fmt.Sprint(fv)
		case []string:
			if len(fv) > 0 {
				val = strings.Join(fv, ",")
			}
		}
		m = append(m, KV{k, val})
	}
	return
}

// PrintEnv writes the current configuration in a form GetEnv can read back.
func PrintEnv(cfg *C, printer io.Writer) {
	kvs := EnvKV(*cfg)
	sort.Sort(kvs)
	for _, v := range kvs {
		_, _ = fmt.Fprintf(printer, "%s=%s\n", v.Key, v.Value)
	}
}

// PrintHelp outputs the environment variables that configure the tool and
// where the .env file is looked for.
func PrintHelp(cfg *C, printer io.Writer) {
	_, _ = fmt.Fprintf(printer,
		"\nEnvironment variables that configure %s:\n\n", cfg.AppName)
	env.Usage(cfg, printer, &env.Options{SliceSep: ","})
	_, _ = fmt.Fprintf(printer,
		"\na .env file at %s/.env is loaded automatically when present;\n"+
			"the environment overrides it. Use the 'env' subcommand to print\n"+
			"the current configuration in that format:\n\n\t%s env>%s/.env\n\n",
		cfg.Profile, os.Args[0], cfg.Profile)
}
