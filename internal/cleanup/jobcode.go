package cleanup

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/aerox/simflow/internal/failure"
)

var jobCodePattern = regexp.MustCompile(`([a-zA-Z0-9_\-]+)-([0-9]+)`)

// MaxRangeSpan caps the number of job codes one range selection may expand to.
const MaxRangeSpan = 10000

// ExpandRange lists the job codes from begin to end inclusive, e.g.
// ALO-001..ALO-003 gives ALO-001, ALO-002, ALO-003. Both codes must share
// their prefix and the width of their number.
func ExpandRange(begin, end string) ([]string, error) {
	prefixBegin, numBegin, err := splitJobCode(begin)
	if err != nil {
		return nil, err
	}
	prefixEnd, numEnd, err := splitJobCode(end)
	if err != nil {
		return nil, err
	}
	if prefixBegin != prefixEnd {
		return nil, failure.Validation("range", begin+" "+end, "range cleanup but the given job codes do not come from the same project")
	}
	if len(numBegin) != len(numEnd) {
		return nil, failure.Validation("range", begin+" "+end, "job code lengths differ, cannot rebuild zero padding")
	}
	from, err := strconv.Atoi(numBegin)
	if err != nil {
		return nil, failure.Validation("job_code", begin, "job number out of range").Wrap(err)
	}
	to, err := strconv.Atoi(numEnd)
	if err != nil {
		return nil, failure.Validation("job_code", end, "job number out of range").Wrap(err)
	}
	if from > to {
		return nil, failure.Validation("range", begin+" "+end, "the begin code must not be greater than the end code")
	}
	if to-from >= MaxRangeSpan {
		return nil, failure.Validation("range", begin+" "+end, "range spans %d job codes, at most %d are allowed", to-from+1, MaxRangeSpan)
	}

	codes := make([]string, 0, to-from+1)
	for i := from; i <= to; i++ {
		codes = append(codes, fmt.Sprintf("%s-%0*d", prefixBegin, len(numEnd), i))
	}
	return codes, nil
}

func splitJobCode(code string) (prefix, number string, err error) {
	m := jobCodePattern.FindStringSubmatch(code)
	if m == nil {
		return "", "", failure.Validation("job_code", code, "cannot decode job code")
	}
	return m[1], m[2], nil
}

// DecodeJobCode splits a job code at its last '-' into task code and run
// number. A code without '-' is a bare run number under defaultTask.
func DecodeJobCode(code, defaultTask string) (task, run string) {
	i := strings.LastIndex(code, "-")
	if i < 0 {
		return defaultTask, code
	}
	return code[:i], code[i+1:]
}

// ListJobCodes returns the job codes of the run folders of project that the
// current user owns and can modify, sorted by name.
func ListJobCodes(projectRoot, project string) ([]string, error) {
	dir := filepath.Join(projectRoot, project)
	if !isEditableDir(dir) {
		return nil, failure.State("cannot read project folder %s, verify its permissions", dir)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, failure.State("cannot read project folder %s", dir).Wrap(err)
	}

	var codes []string
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if !e.IsDir() || !strings.HasPrefix(e.Name(), project+"-") {
			continue
		}
		if !ownedByUser(path) || !isEditableDir(path) {
			continue
		}
		codes = append(codes, strings.TrimPrefix(e.Name(), project+"-"))
	}
	sort.Strings(codes)
	return codes, nil
}

func isEditableDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir() && hasAccess(path, modeDir)
}

func isEditableFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && ownedByUser(path) && hasAccess(path, modeWrite)
}
