package models

// ShellErrorKind classifies why the Linux shell host could not be used.
type ShellErrorKind string

const (
	ShellErrorNone         ShellErrorKind = ""
	ShellErrorNotInstalled ShellErrorKind = "not_installed"
	ShellErrorNotRunning   ShellErrorKind = "not_running"
	ShellErrorTimeout      ShellErrorKind = "timeout"
	ShellErrorOther        ShellErrorKind = "other"
)

// ShellStatus is the result of probing the shell host (WSL on Windows).
type ShellStatus struct {
	Message   string         `json:"message,omitempty"`
	ErrorKind ShellErrorKind `json:"errorKind,omitempty"`
	Installed bool           `json:"installed"`
	Running   bool           `json:"running"`
}

// SetupStep is the next action a user has to take before usage can be fetched.
type SetupStep int

const (
	SetupInstallShell SetupStep = iota
	SetupStartShell
	SetupFixShell
	SetupInstallDistro
	SetupInstallTool
	SetupReady
)

// String returns the display name for a setup step.
func (s SetupStep) String() string {
	switch s {
	case SetupInstallShell:
		return "Install WSL"
	case SetupStartShell:
		return "Start WSL"
	case SetupFixShell:
		return "Fix WSL"
	case SetupInstallDistro:
		return "Install a Linux distribution"
	case SetupInstallTool:
		return "Install codexbar"
	case SetupReady:
		return "Ready"
	default:
		return "Unknown"
	}
}

// SetupStatus aggregates every readiness probe.
type SetupStatus struct {
	ToolVersion string         `json:"toolVersion,omitempty"`
	ToolError   string         `json:"toolError,omitempty"`
	ShellError  ShellErrorKind `json:"shellError,omitempty"`
	Distros     []string       `json:"distros"`
	ShellOK     bool           `json:"shellInstalled"`
	ShellUp     bool           `json:"shellRunning"`
	ToolOK      bool           `json:"toolInstalled"`
	IsReady     bool           `json:"isReady"`
}

// DefaultDistro returns the first listed distribution, if any.
func (s SetupStatus) DefaultDistro() string {
	if len(s.Distros) == 0 {
		return ""
	}
	return s.Distros[0]
}

// CurrentStep derives the next required action. Shell errors take precedence.
func (s SetupStatus) CurrentStep() SetupStep {
	switch s.ShellError {
	case ShellErrorNotInstalled:
		return SetupInstallShell
	case ShellErrorNotRunning:
		return SetupStartShell
	case ShellErrorNone:
	default:
		return SetupFixShell
	}

	switch {
	case !s.ShellOK:
		return SetupInstallShell
	case len(s.Distros) == 0:
		return SetupInstallDistro
	case !s.ToolOK:
		return SetupInstallTool
	default:
		return SetupReady
	}
}
