package deps

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// Requirement names an executable a configured command line starts with.
type Requirement struct {
	Name        string
	CommandLine string
	Optional    bool
}

// Status reports whether a requirement's executable resolves.
type Status struct {
	Name      string
	Command   string
	Optional  bool
	Available bool
	Detail    string
}

// CommandName returns the executable of a shell command line: the first word
// that is not a VAR=value assignment.
func CommandName(commandLine string) string {
	for _, field := range strings.Fields(commandLine) {
		if name, _, ok := strings.Cut(field, "="); ok && name != "" && !strings.ContainsAny(name, "/$") {
			continue
		}
		return strings.Trim(field, `"'`)
	}
	return ""
}

// CheckCommands resolves each requirement's executable. Relative names are
// looked up in PATH; paths are checked as given.
func CheckCommands(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := CommandName(req.CommandLine)
		status := Status{Name: req.Name, Command: cmd, Optional: req.Optional}
		switch {
		case cmd == "":
			status.Detail = "command not configured"
		case isShellBuiltin(cmd):
			status.Available = true
			status.Detail = "shell builtin"
		default:
			resolved, err := exec.LookPath(cmd)
			if err != nil {
				status.Detail = fmt.Sprintf("executable %q not found", cmd)
				break
			}
			status.Available = true
			if !filepath.IsAbs(cmd) {
				status.Detail = resolved
			}
		}
		results = append(results, status)
	}
	return results
}

func isShellBuiltin(name string) bool {
	switch name {
	case "cd", "exec", "exit", "export", "set", "test", "[", ":", "true", "false", ".", "source":
		return true
	}
	return false
}
