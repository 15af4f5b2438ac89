package batch

import (
	"context"
	"strings"
)

// DefaultSolver is the product name passed to the solver-version script.
const DefaultSolver = "Starccm"

// DefaultQueueAliases are queue names injected on top of the site catalog.
var DefaultQueueAliases = map[string]string{
	"aerox-india": "aeroxindia.q",
}

// QueueCatalog maps lower-cased queue names to queue codes.
type QueueCatalog struct {
	byName map[string]string
	codes  map[string]struct{}
}

// ParseQueueCatalog reads `code;name` lines and adds aliases (name -> code).
// Lines with an empty code or name are ignored.
func ParseQueueCatalog(output string, aliases map[string]string) *QueueCatalog {
	c := &QueueCatalog{
		byName: make(map[string]string),
		codes:  make(map[string]struct{}),
	}
	for _, line := range strings.Split(output, "\n") {
		code, name, ok := strings.Cut(strings.TrimRight(line, "\r"), ";")
		if !ok || code == "" || name == "" {
			continue
		}
		c.add(name, code)
	}
	for name, code := range aliases {
		c.add(name, code)
	}
	return c
}

func (c *QueueCatalog) add(name, code string) {
	c.byName[strings.ToLower(name)] = code
	c.codes[code] = struct{}{}
}

// Resolve maps a user queue value to a queue code. The value is lower-cased
// and looked up by name first, then matched against the known codes.
func (c *QueueCatalog) Resolve(value string) (string, bool) {
	v := strings.ToLower(strings.TrimSpace(value))
	if code, ok := c.byName[v]; ok {
		return code, true
	}
	if _, ok := c.codes[v]; ok {
		return v, true
	}
	return "", false
}

// Len returns the number of known queue names.
func (c *QueueCatalog) Len() int {
	return len(c.byName)
}

// LoadQueueCatalog runs the list_queues script and parses its output.
func LoadQueueCatalog(ctx context.Context, r Runner, script string, aliases map[string]string) (*QueueCatalog, error) {
	out, err := r.Run(ctx, Command{Name: script})
	if err != nil {
		return nil, err
	}
	return ParseQueueCatalog(out, aliases), nil
}

// VersionCatalog is the set of installed solver versions.
type VersionCatalog struct {
	versions map[string]struct{}
}

// ParseVersionCatalog splits output on newlines and semicolons.
func ParseVersionCatalog(output string) *VersionCatalog {
	c := &VersionCatalog{versions: make(map[string]struct{})}
	for _, line := range strings.Split(output, "\n") {
		for _, v := range strings.Split(strings.TrimRight(line, "\r"), ";") {
			if v != "" {
				c.versions[v] = struct{}{}
			}
		}
	}
	return c
}

// Contains reports an exact match.
func (c *VersionCatalog) Contains(version string) bool {
	_, ok := c.versions[version]
	return ok
}

// Len returns the number of versions.
func (c *VersionCatalog) Len() int {
	return len(c.versions)
}

// LoadVersionCatalog runs `<script> <solver>` and parses its output.
func LoadVersionCatalog(ctx context.Context, r Runner, script, solver string) (*VersionCatalog, error) {
	out, err := r.Run(ctx, Command{Name: script, Args: []string{solver}})
	if err != nil {
		return nil, err
	}
	return ParseVersionCatalog(out), nil
}
