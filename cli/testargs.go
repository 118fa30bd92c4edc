package cli

// This file contains argument processing utilities for separating
// build-time and runtime arguments of a Go test package.

import (
	"strings"
)

// Flags only understood by 'go test -c'
var buildOnlyFlags = map[string]bool{
	"-tags":       true,
	"-race":       true,
	"-msan":       true,
	"-asan":       true,
	"-cover":      true,
	"-covermode":  true,
	"-coverpkg":   true,
	"-gcflags":    true,
	"-ldflags":    true,
	"-asmflags":   true,
	"-gccgoflags": true,
	"-mod":        true,
	"-modfile":    true,
	"-overlay":    true,
	"-pkgdir":     true,
	"-toolexec":   true,
	"-work":       true,
}

// Build flags that never take a separate value
var buildBoolFlags = map[string]bool{
	"-race":  true,
	"-msan":  true,
	"-asan":  true,
	"-cover": true,
	"-work":  true,
}

// separateTestArgs splits the extra arguments of a --package run into
// flags for 'go test -c' and flags for every attempt of the binary.
func separateTestArgs(args []string) (buildArgs, runtimeArgs []string) {
	buildArgs = []string{}
	runtimeArgs = []string{}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if buildOnlyFlags[arg] {
			buildArgs = append(buildArgs, arg)
			if !buildBoolFlags[arg] && i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				i++
				buildArgs = append(buildArgs, args[i])
			}
			continue
		}

		// -tags=foo
		flagName := arg
		if idx := strings.Index(arg, "="); idx > 0 {
			flagName = arg[:idx]
		}
		if buildOnlyFlags[flagName] {
			buildArgs = append(buildArgs, arg)
			continue
		}

		runtimeArgs = append(runtimeArgs, arg)
	}

	return buildArgs, runtimeArgs
}
