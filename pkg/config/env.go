package config

import "strings"

// Environment variables that carry extra JVM options, in the order the
// launcher reads them.
var OptionEnvVars = []string{"JAVA_TOOL_OPTIONS", "_JAVA_OPTIONS", "JDK_JAVA_OPTIONS"}

// MergeEnvOptions returns the effective argument list: the whitespace
// separated options from each variable in OptionEnvVars, followed by args.
func MergeEnvOptions(args []string, getenv func(string) string) []string {
	var out []string
	for _, name := range OptionEnvVars {
		out = append(out, strings.Fields(getenv(name))...)
	}
	return append(out, args...)
}
