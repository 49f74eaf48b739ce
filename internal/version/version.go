// Package version reports the build of the running binary. Version, Commit
// and Date are set with -ldflags at release time.
package version

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

var (
	Version = "0.1.0"
	Commit  = "unknown"
	Date    = "unknown"
)

type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
}

// Current describes this build, resolving a git suffix for dev builds.
func Current() Info {
	return Info{
		Version:   Resolve(),
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
	}
}

func (i Info) String() string {
	var details []string
	if i.Commit != "" && i.Commit != "unknown" {
		details = append(details, "commit "+i.Commit)
	}
	if i.Date != "" && i.Date != "unknown" {
		details = append(details, "built "+i.Date)
	}
	if i.GoVersion != "" {
		details = append(details, i.GoVersion)
	}

	if len(details) == 0 {
		return fmt.Sprintf("voxscribe v%s", i.Version)
	}
	return fmt.Sprintf("voxscribe v%s (%s)", i.Version, strings.Join(details, ", "))
}

// Resolve returns the full version string, appending a git-derived suffix
// when the binary is run from inside a git repository whose HEAD is not on
// a release tag.
func Resolve() string {
	return resolveVersion(Version, runGit)
}

func resolveVersion(base string, git func(...string) (string, error)) string {
	if base == "" {
		base = "0.0.0"
	}

	suffix := computeGitSuffix(base, git)
	if suffix == "" {
		return base
	}
	return base + "-" + suffix
}

func computeGitSuffix(base string, git func(...string) (string, error)) string {
	if _, err := git("rev-parse", "--git-dir"); err != nil {
		return ""
	}

	if _, err := git("describe", "--tags", "--exact-match"); err == nil {
		return ""
	}

	desc, err := git("describe", "--tags", "--dirty", "--always")
	if err != nil {
		return ""
	}

	return strings.TrimPrefix(desc, "v"+base+"-")
}

func runGit(args ...string) (string, error) {
	out, err := exec.Command("git", args...).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
