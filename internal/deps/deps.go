package deps

import (
	"fmt"
	"os/exec"
	"strings"
)

// Requirement defines an external command quire relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description,omitempty"`
	Optional    bool   `json:"optional,omitempty"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		switch {
		case cmd == "":
			status.Detail = "command not configured"
		default:
			if path, err := exec.LookPath(cmd); err != nil {
				status.Detail = fmt.Sprintf("binary %q not found", cmd)
			} else {
				status.Available = true
				if path != cmd {
					status.Detail = path
				}
			}
		}
		results = append(results, status)
	}
	return results
}

// RestartBinary extracts the program name from a restart shell command. Leading
// VAR=value assignments and sudo/env wrappers are skipped.
func RestartBinary(command string) string {
	for _, field := range strings.Fields(command) {
		switch {
		case strings.Contains(field, "=") && !strings.HasPrefix(field, "/"):
			continue
		case field == "sudo" || field == "env" || field == "exec":
			continue
		case strings.HasPrefix(field, "-"):
			continue
		}
		return field
	}
	return ""
}

// Missing returns required dependencies that are unavailable.
func Missing(statuses []Status) []Status {
	var missing []Status
	for _, s := range statuses {
		if !s.Available && !s.Optional {
			missing = append(missing, s)
		}
	}
	return missing
}
