// Package flagx lets several configuration layers share os.Args without
// tripping over each other's flags.
package flagx

import (
	"flag"
	"os"
	"strings"
)

// ConfigEnvVar names the environment variable consulted when no -c/-config
// flag is given.
const ConfigEnvVar = "BIZKEEPER_CONFIG"

// FilterArgs keeps only the flags listed in allowedFlags, together with their
// values. Both "-c conf.json" and "--config=conf.json" forms are recognised.
// A token that starts with "-" is never consumed as a value.
//
// The result is never nil.
func FilterArgs(args []string, allowedFlags []string) []string {
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = struct{}{}
	}

	filtered := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if name, _, ok := strings.Cut(arg, "="); ok && strings.HasPrefix(arg, "-") {
			if _, keep := allowed[name]; keep {
				filtered = append(filtered, arg)
			}
			continue
		}

		if _, keep := allowed[arg]; !keep {
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

// JsonConfigFlags returns the config file path given via -c or -config. When
// neither flag is present it falls back to $BIZKEEPER_CONFIG, and to "" when
// that is unset too.
func JsonConfigFlags() string {
	var config string

	args := FilterArgs(os.Args[1:], []string{"-c", "-config"})

	fs := flag.NewFlagSet("json", flag.ContinueOnError)
	fs.StringVar(&config, "config", "", "Path to config file")
	fs.StringVar(&config, "c", "", "Path to config file (short)")
	_ = fs.Parse(args)

	if config == "" {
		config = os.Getenv(ConfigEnvVar)
	}
	return config
}
