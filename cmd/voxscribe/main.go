package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fmueller/voxscribe/internal/cli"
	"github.com/spf13/cobra"
)

func main() {
	cmd := cli.NewRootCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(exitCode(cmd, err))
	}
}

// exitCode reports err on stderr and returns the process exit status. A
// failed transcription has already printed its status line.
func exitCode(root *cobra.Command, err error) int {
	if errors.Is(err, cli.ErrTranscriptionFailed) {
		return 1
	}

	fmt.Fprintln(os.Stderr, err)
	if shouldPrintUsageHint(err) {
		fmt.Fprintf(os.Stderr, "Run '%s --help' for usage.\n", helpHintTarget(root, os.Args[1:]))
	}
	return 1
}

func shouldPrintUsageHint(err error) bool {
	if err == nil {
		return false
	}

	message := strings.ToLower(strings.TrimSpace(err.Error()))
	patterns := []string{
		"unknown command",
		"unknown flag",
		"unknown shorthand flag",
		"accepts ",
		"requires at least",
		"requires at most",
		"requires between",
		"required flag",
		"missing required",
		"invalid argument",
	}

	for _, pattern := range patterns {
		if strings.Contains(message, pattern) {
			return true
		}
	}

	return false
}

func helpHintTarget(root *cobra.Command, args []string) string {
	if root == nil {
		return "voxscribe"
	}

	target := root.CommandPath()
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return target
	}

	found, _, err := root.Find(args)
	if err == nil && found != nil {
		return found.CommandPath()
	}

	return target
}
