// Package config loads the dmctl YAML configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// ErrUnsetVariable is returned for a ${VAR:?message} reference whose
// variable is unset or empty.
var ErrUnsetVariable = errors.New("required environment variable not set")

// reference matches ${NAME}, ${NAME:-default} and ${NAME:?message}.
var reference = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?:(:-|:\?)([^}]*))?\}`)

// ExpandEnv substitutes environment references in a config file.
//
//	${NAME}            value of NAME, empty when unset
//	${NAME:-default}   default when NAME is unset or empty
//	${NAME:?message}   error naming NAME and message when unset or empty
//
// Every missing required variable is reported, not only the first.
func ExpandEnv(input string) (string, error) {
	var (
		out     strings.Builder
		missing []error
		last    int
	)

	for _, m := range reference.FindAllStringSubmatchIndex(input, -1) {
		out.WriteString(input[last:m[0]])
		last = m[1]

		name := input[m[2]:m[3]]
		value := os.Getenv(name)
		if value != "" {
			out.WriteString(value)
			continue
		}
		if m[4] < 0 {
			continue
		}

		arg := input[m[6]:m[7]]
		switch input[m[4]:m[5]] {
		case ":-":
			out.WriteString(arg)
		case ":?":
			if arg == "" {
				missing = append(missing, fmt.Errorf("%w: %s", ErrUnsetVariable, name))
			} else {
				missing = append(missing, fmt.Errorf("%w: %s (%s)", ErrUnsetVariable, name, arg))
			}
		}
	}
	out.WriteString(input[last:])

	return out.String(), errors.Join(missing...)
}
