package batch

import (
	"context"
	"fmt"
	"strings"
)

// LoadEnvironment sources script in a shell and returns the resulting
// environment. Lines without '=' are skipped.
func LoadEnvironment(ctx context.Context, r Runner, script string) (map[string]string, error) {
	out, err := r.Run(ctx, Command{Name: "bash", Args: []string{"-c", fmt.Sprintf(". %q && env", script)}})
	if err != nil {
		return nil, err
	}
	env := make(map[string]string)
	for _, line := range strings.Split(out, "\n") {
		key, value, ok := strings.Cut(line, "=")
		if !ok || key == "" {
			continue
		}
		env[key] = value
	}
	return env, nil
}
