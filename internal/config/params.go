package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/aerox/simflow/internal/failure"
)

// InputDataFileName is the per-invocation manifest of user files.
const InputDataFileName = "input_data_file.txt"

// Parameter keys read from the submission parameter file.
const (
	KeyProjectCode   = "PROJECT_CODE"
	KeyTaskCode      = "TASK_CODE"
	KeyRunNumber     = "RUN_NUMBER"
	KeyDescription   = "DESCRIPTION"
	KeySolverVersion = "SOLVER_VERSION"
	KeyWalltime      = "WALLTIME"
	KeyQueue         = "QUEUE"
	KeyWorkflowSteps = "WORKFLOW_STEPS"
	KeyIterator      = "ITERATOR"
	KeyTemplate      = "TEMPLATE"
	KeySimFile       = "SIM_FILE"
)

var loadOptions = ini.LoadOptions{
	AllowBooleanKeys:         true,
	SpaceBeforeInlineComment: true,
	KeyValueDelimiters:       "=:",
}

// ReadParameterFile parses a section-less `KEY: value` submission file.
// Empty values are returned as "" so callers can tell them from absent keys.
func ReadParameterFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, failure.Configuration("parameter_file", path, "cannot read parameter file").Wrap(err)
	}
	return ParseParameters(data)
}

// ParseParameters parses parameter file content.
func ParseParameters(data []byte) (map[string]string, error) {
	// Lines starting with '*' are comments in historical parameter files.
	var cleaned bytes.Buffer
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "*") {
			continue
		}
		cleaned.WriteString(line)
		cleaned.WriteByte('\n')
	}

	iniFile, err := ini.LoadSources(loadOptions, cleaned.Bytes())
	if err != nil {
		return nil, failure.Configuration("parameter_file", "", "cannot parse parameter file").Wrap(err)
	}
	params := make(map[string]string)
	for _, key := range iniFile.Section(ini.DefaultSection).Keys() {
		params[key.Name()] = strings.TrimSpace(key.Value())
	}
	return params, nil
}

// WriteParameterFile writes params as a section-less parameter file, keys in the given order.
func WriteParameterFile(path string, order []string, params map[string]string) error {
	iniFile := ini.Empty(loadOptions)
	section := iniFile.Section(ini.DefaultSection)
	for _, key := range order {
		value, ok := params[key]
		if !ok {
			continue
		}
		if _, err := section.NewKey(key, value); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	}
	if err := iniFile.SaveTo(path); err != nil {
		return fmt.Errorf("failed to write parameter file %s: %w", path, err)
	}
	return nil
}

// InputData is the content of input_data_file.txt: template-referenced files
// ([TEMPLATE] keys) and part files ([PARTS] values).
type InputData struct {
	TemplateFiles []string
	PartFiles     []string
}

// ReadInputDataFile parses input_data_file.txt. The [PARTS] section is required.
func ReadInputDataFile(path string) (*InputData, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, failure.State("input data file %s does not exist", path).Wrap(err)
	}
	iniFile, err := ini.LoadSources(loadOptions, path)
	if err != nil {
		return nil, failure.Configuration("input_data_file", path, "cannot read input data file").Wrap(err)
	}
	if !iniFile.HasSection("PARTS") {
		return nil, failure.Configuration("PARTS", path, "missing [PARTS] section in input data file")
	}

	data := &InputData{}
	if iniFile.HasSection("TEMPLATE") {
		for _, key := range iniFile.Section("TEMPLATE").Keys() {
			data.TemplateFiles = append(data.TemplateFiles, key.Name())
		}
	}
	for _, key := range iniFile.Section("PARTS").Keys() {
		if v := strings.TrimSpace(key.Value()); v != "" {
			data.PartFiles = append(data.PartFiles, v)
		}
	}
	return data, nil
}
