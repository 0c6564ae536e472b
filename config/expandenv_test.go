package config

import (
	"errors"
	"strings"
	"testing"
)

func TestExpandEnvStrict(t *testing.T) {
	t.Setenv("CORE_NAME", "gateway")
	t.Setenv("CORE_EMPTY", "")

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"braced", "name: ${CORE_NAME}", "name: gateway", false},
		{"bare", "name: $CORE_NAME", "name: gateway", false},
		{"set but empty", "v=${CORE_EMPTY}", "v=", false},
		{"dollar escape", "price: $$5 ${CORE_NAME}", "price: $5 gateway", false},
		{"escape before ref", "$$${CORE_NAME}", "$gateway", false},
		{"missing", "${CORE_MISSING_B} ${CORE_MISSING_A}", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandEnvStrict(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ExpandEnvStrict(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ExpandEnvStrict(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestExpandEnvStrict_NamesAllMissing(t *testing.T) {
	_, err := ExpandEnvStrict("${CORE_MISSING_B} ${CORE_MISSING_A} ${CORE_MISSING_B}")
	if !errors.Is(err, ErrMissingEnv) {
		t.Fatalf("error = %v, want ErrMissingEnv", err)
	}
	if !strings.HasSuffix(err.Error(), "CORE_MISSING_A, CORE_MISSING_B") {
		t.Errorf("error = %q, want sorted unique names", err)
	}
}
