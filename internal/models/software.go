package models

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// StarCCMSoftware is the launcher software name for STAR-CCM+ jobs.
const StarCCMSoftware = "StarccmFlex"

// StarCCM is the software artifact of a job: every staged input file plus the
// designated simulation-state file and main macro.
type StarCCM struct {
	Files FileSet

	software string
	sim      string
	macro    string
}

// NewStarCCM creates an artifact driven by the given main macro.
func NewStarCCM(macro string) (*StarCCM, error) {
	s := &StarCCM{software: StarCCMSoftware}
	if err := s.SetMacro(macro); err != nil {
		return nil, err
	}
	return s, nil
}

// Software returns the launcher software name.
func (s *StarCCM) Software() string {
	return s.software
}

// Sim returns the simulation-state file, empty while unresolved.
func (s *StarCCM) Sim() string {
	return s.sim
}

// Macro returns the main macro path.
func (s *StarCCM) Macro() string {
	return s.macro
}

// SetSim designates the simulation-state file. The path must exist.
func (s *StarCCM) SetSim(path string) error {
	if path == "" {
		return fmt.Errorf("missing sim file")
	}
	if _, err := os.Lstat(path); err != nil {
		return fmt.Errorf("file %s does not exist", path)
	}
	s.sim = path
	return nil
}

// ExpectSim designates a simulation-state file that is produced later by the
// upstream step, typically through a link registered with the job-state helper.
func (s *StarCCM) ExpectSim(path string) {
	s.sim = path
}

// SetMacro designates the main macro. The path must exist.
func (s *StarCCM) SetMacro(path string) error {
	if path == "" {
		return fmt.Errorf("missing macro file")
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("file %s does not exist", path)
	}
	s.macro = path
	return nil
}

// TrackedNames returns the base names that must stay live in a job folder:
// staged files, the main macro and the sim file.
func (s *StarCCM) TrackedNames() []string {
	names := s.Files.Basenames()
	if s.macro != "" {
		names = append(names, filepath.Base(s.macro))
	}
	if s.sim != "" {
		names = append(names, filepath.Base(s.sim))
	}
	return names
}

func (s *StarCCM) String() string {
	var sb strings.Builder
	sb.WriteString("Files: ")
	sb.WriteString(strings.Join(s.Files.Paths(), "\n"))
	sb.WriteString("\nsoftware: " + s.software)
	sb.WriteString(fmt.Sprintf("\nsim: %s", s.sim))
	sb.WriteString(fmt.Sprintf("\nmacro: %s", s.macro))
	return sb.String()
}
