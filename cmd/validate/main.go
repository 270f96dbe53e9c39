package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jwebster45206/enlisted/pkg/enlistment"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <policy.json|policies_dir>...\n", os.Args[0])
		os.Exit(1)
	}

	files, err := collect(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	failed := false
	for _, filename := range files {
		validator := &PolicyValidator{}
		if err := validator.validateFile(filename); err != nil {
			fmt.Fprintf(os.Stderr, "Validation failed: %v\n", err)
			failed = true
			continue
		}
		for _, w := range validator.warnings {
			fmt.Printf("  warning: %s\n", w)
		}
	}
	if failed {
		os.Exit(1)
	}

	fmt.Printf("%d policy file(s) valid!\n", len(files))
}

// collect expands directories into the .json files they hold
func collect(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		matches, err := filepath.Glob(filepath.Join(arg, "*.json"))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no policy files found")
	}
	return files, nil
}

type PolicyValidator struct {
	errors   []string
	warnings []string
}

func (v *PolicyValidator) validateFile(filename string) error {
	fmt.Printf("Validating %s...\n", filename)

	baseName := filepath.Base(filename)
	if !strings.HasSuffix(baseName, ".json") {
		return fmt.Errorf("policy file must have .json extension: %s", baseName)
	}

	nameWithoutExt := strings.TrimSuffix(baseName, ".json")
	if !isValidPolicyFilename(nameWithoutExt) {
		return fmt.Errorf("policy filename '%s' must be lowercase snake_case (e.g., hardcore.json, not Hard-Core.json)", baseName)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", filename, err)
	}
	return v.validate(data, nameWithoutExt)
}

func (v *PolicyValidator) validate(data []byte, name string) error {
	v.errors = nil
	v.warnings = nil

	if !json.Valid(data) {
		return fmt.Errorf("%s contains invalid JSON", name)
	}

	// Decode over the defaults, as the service does, but reject unknown keys
	p := enlistment.DefaultPolicy()
	p.Name = ""
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(p); err != nil {
		return fmt.Errorf("%s failed strict JSON unmarshaling: %w", name, err)
	}

	if p.Name == "" {
		p.Name = name
	} else if p.Name != name {
		v.addError(fmt.Sprintf("name '%s' does not match filename '%s'", p.Name, name))
	}

	if err := p.Validate(); err != nil {
		v.addError(err.Error())
	}
	v.checkBalance(p)

	if len(v.errors) > 0 {
		return fmt.Errorf("validation errors in %s:\n%s", name, strings.Join(v.errors, "\n"))
	}
	return nil
}

// checkBalance flags legal but suspicious values
func (v *PolicyValidator) checkBalance(p *enlistment.Policy) {
	for i := 1; i < len(p.WageByTier); i++ {
		if p.WageByTier[i] < p.WageByTier[i-1] {
			v.warnings = append(v.warnings, fmt.Sprintf("wage for tier %d is lower than tier %d", i+1, i))
		}
	}
	if p.RetentionWindow == 0 {
		v.warnings = append(v.warnings, "retention_window is 0; re-enlisting always starts at tier 1")
	}
	hasFloor := false
	for _, b := range p.Treasury {
		if b.MinGold <= 0 {
			hasFloor = true
		}
	}
	if len(p.Treasury) > 0 && !hasFloor {
		v.warnings = append(v.warnings, "no treasury band starts at 0 gold; the poorest band applies below its minimum")
	}
}

func (v *PolicyValidator) addError(msg string) {
	v.errors = append(v.errors, "  - "+msg)
}

var validFilenameRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*[a-z0-9]$|^[a-z]$`)

func isValidPolicyFilename(name string) bool {
	// Allow 'x.' prefix for experimental policies
	name = strings.TrimPrefix(name, "x.")
	return validFilenameRegex.MatchString(name)
}
