// Package flagx contains helpers for sharing os.Args between several
// independent flag sets (config file lookup, config overrides, sub-commands).
package flagx

import (
	"flag"
	"os"
	"strings"
)

// ConfigFileEnv is consulted by ConfigFile when no -c/-config flag is given.
const ConfigFileEnv = "BILLSYNC_CONFIG"

// FilterArgs keeps only the flags named in allowed together with their
// values. Both "-f value" and "-f=value" forms are recognised; a following
// token that starts with "-" is never taken as a value.
func FilterArgs(args []string, allowed []string) []string {
	names := make(map[string]struct{}, len(allowed))
	for _, f := range allowed {
		names[f] = struct{}{}
	}

	filtered := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]

		if name, _, ok := strings.Cut(arg, "="); ok && strings.HasPrefix(arg, "-") {
			if _, keep := names[name]; keep {
				filtered = append(filtered, arg)
			}
			continue
		}

		if _, keep := names[arg]; !keep {
			continue
		}
		filtered = append(filtered, arg)
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			filtered = append(filtered, args[i+1])
			i++
		}
	}

	return filtered
}

// ConfigFile returns the JSON config path given with -c or -config in args,
// falling back to the BILLSYNC_CONFIG environment variable.
func ConfigFile(args []string) string {
	var path string

	fs := flag.NewFlagSet("config-file", flag.ContinueOnError)
	fs.StringVar(&path, "config", "", "path to config file")
	fs.StringVar(&path, "c", "", "path to config file (short)")
	_ = fs.Parse(FilterArgs(args, []string{"-c", "-config"}))

	if path == "" {
		path = os.Getenv(ConfigFileEnv)
	}
	return path
}

// Positional returns the arguments after the leading flags. Every flag is
// assumed to take a value, so "-f value" pairs are skipped as a whole.
func Positional(args []string) []string {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return args[i+1:]
		}
		if len(arg) < 2 || !strings.HasPrefix(arg, "-") {
			return args[i:]
		}
		if !strings.Contains(arg, "=") {
			i++
		}
	}
	return nil
}
