package validation

import (
	"errors"
	"testing"
)

func TestValidateName(t *testing.T) {
	testCases := []struct {
		name        string
		input       string
		expectValid bool
	}{
		{"simple", "iris.csv", true},
		{"with_dash", "my-data.csv", true},
		{"with_dots", "sales.v1.2.xlsx", true},
		{"double_dot_inside", "data..v2.csv", true},
		{"hidden", ".hidden", true},
		{"spaces", "my data.csv", true},
		{"folder", "experiments", true},

		{"empty", "", false},
		{"whitespace", "   ", false},
		{"dot", ".", false},
		{"dotdot", "..", false},
		{"slash", "raw/iris.csv", false},
		{"backslash", `raw\iris.csv`, false},
		{"traversal", "../etc", false},
		{"null_byte", "iris\x00.csv", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateName(tc.input)
			if tc.expectValid && err != nil {
				t.Errorf("ValidateName(%q) returned error: %v", tc.input, err)
			}
			if !tc.expectValid {
				if err == nil {
					t.Errorf("ValidateName(%q) should have failed", tc.input)
				} else if !errors.Is(err, ErrInvalidName) {
					t.Errorf("ValidateName(%q) error %v does not wrap ErrInvalidName", tc.input, err)
				}
			}
		})
	}
}

func TestValidateFolderPath(t *testing.T) {
	valid := []string{"", "/", "raw", "raw/2024", "/raw/2024/", "a/b/c"}
	for _, p := range valid {
		if err := ValidateFolderPath(p); err != nil {
			t.Errorf("ValidateFolderPath(%q) returned error: %v", p, err)
		}
	}

	invalid := []string{"raw/../etc", "raw//2024", "./raw", `raw\2024`, "raw/ /x"}
	for _, p := range invalid {
		if err := ValidateFolderPath(p); !errors.Is(err, ErrInvalidName) {
			t.Errorf("ValidateFolderPath(%q) = %v, want ErrInvalidName", p, err)
		}
	}
}
