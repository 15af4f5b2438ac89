package failure

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
)

func TestError_Format(t *testing.T) {
	cause := errors.New("permission denied")
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "validation with field and value",
			err:  Validation("walltime", "25h", "walltime must look like HH:MM:SS"),
			want: `validation error: walltime must look like HH:MM:SS (walltime="25h")`,
		},
		{
			name: "configuration field without value",
			err:  Configuration("project_root_dir", "", "missing key"),
			want: "configuration error: missing key (project_root_dir)",
		},
		{
			name: "state with cause",
			err:  State("cannot create folder %s", "/runs/RUN").Wrap(cause),
			want: "state error: cannot create folder /runs/RUN: permission denied",
		},
		{
			name: "external tool",
			err:  ExternalTool("previous job error"),
			want: "external tool error: previous job error",
		},
		{
			name: "unknown kind",
			err:  &Error{Msg: "raw"},
			want: "error: raw",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIs(t *testing.T) {
	state := State("folder exists")
	tests := []struct {
		name string
		err  error
		kind Kind
		want bool
	}{
		{"direct", state, KindState, true},
		{"other kind", state, KindValidation, false},
		{"wrapped by fmt", fmt.Errorf("step RUN: %w", state), KindState, true},
		{"plain error", errors.New("boom"), KindState, false},
		{"nil", nil, KindState, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.kind); got != tt.want {
				t.Errorf("Is(%v, %v) = %v, want %v", tt.err, tt.kind, got, tt.want)
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	err := State("cannot read %s", "/runs").Wrap(os.ErrNotExist)
	if !errors.Is(err, os.ErrNotExist) {
		t.Error("cause not reachable through Unwrap")
	}
	if State("no cause").Unwrap() != nil {
		t.Error("Unwrap without cause must be nil")
	}
}

func TestKindOf(t *testing.T) {
	if got := KindOf(fmt.Errorf("ctx: %w", ExternalTool("x"))); got != KindExternalTool {
		t.Errorf("KindOf = %v", got)
	}
	if got := KindOf(errors.New("plain")); got != 0 {
		t.Errorf("KindOf(plain) = %v", got)
	}
}

func TestWrapExternalTool(t *testing.T) {
	classified := Validation("queue", "x", "unknown queue")
	err := WrapExternalTool(classified, "submission of step %s failed", "RUN")
	if !Is(err, KindValidation) {
		t.Errorf("classified cause lost its kind: %v", err)
	}
	if !strings.HasPrefix(err.Error(), "submission of step RUN failed: validation error") {
		t.Errorf("unexpected message: %v", err)
	}

	launcher := ExternalTool("launcher rejected job AB12-ALO-7: ERROR: queue closed")
	err = WrapExternalTool(launcher, "submission of step %s failed", "RUN")
	if n := strings.Count(err.Error(), KindExternalTool.String()); n != 1 {
		t.Errorf("external tool error repeated %d times: %v", n, err)
	}

	err = WrapExternalTool(errors.New("exit status 2"), "cannot load global environment")
	if !Is(err, KindExternalTool) {
		t.Errorf("plain cause not classified: %v", err)
	}
	if !strings.Contains(err.Error(), "exit status 2") {
		t.Errorf("cause missing: %v", err)
	}
}
