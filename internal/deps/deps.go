package deps

import (
	"fmt"
	"os/exec"
	"strings"
)

// Requirement names an external binary and what it is used for.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status is a Requirement after resolution. Path is the resolved executable
// and is empty when the lookup failed; Detail then says why.
type Status struct {
	Requirement
	Available bool
	Path      string
	Detail    string
}

// Resolve looks the requirement's command up on PATH.
func Resolve(req Requirement) Status {
	req.Command = strings.TrimSpace(req.Command)
	req.Description = strings.TrimSpace(req.Description)
	status := Status{Requirement: req}
	if req.Command == "" {
		status.Detail = "command not configured"
		return status
	}
	resolved, err := exec.LookPath(req.Command)
	if err != nil {
		status.Detail = fmt.Sprintf("binary %q not found", req.Command)
		return status
	}
	status.Available = true
	status.Path = resolved
	return status
}

// CheckBinaries resolves every requirement in order.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, len(requirements))
	for i, req := range requirements {
		results[i] = Resolve(req)
	}
	return results
}
