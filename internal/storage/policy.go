package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jwebster45206/enlisted/pkg/enlistment"
	"github.com/jwebster45206/enlisted/pkg/storage"
)

// policyFiles loads balance policies from <dataDir>/policies/*.json. It is
// shared by every backend.
type policyFiles struct {
	dataDir string
	logger  *slog.Logger
}

// Policy operations (filesystem-backed)

func (p policyFiles) ListPolicies(ctx context.Context) ([]string, error) {
	dir := filepath.Join(p.dataDir, "policies")

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read policies directory: %w", err)
	}

	names := []string{}
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".json" {
			names = append(names, strings.TrimSuffix(entry.Name(), ".json"))
		}
	}
	sort.Strings(names)
	return names, nil
}

// GetPolicy loads and validates a policy. An empty name, or "default" when
// no such file exists, yields the built-in defaults.
func (p policyFiles) GetPolicy(ctx context.Context, name string) (*enlistment.Policy, error) {
	def := enlistment.DefaultPolicy()
	if name == "" {
		return def, nil
	}
	if strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return nil, fmt.Errorf("invalid policy name %q", name)
	}

	path := filepath.Join(p.dataDir, "policies", name+".json")
	p.logger.Debug("Loading policy", "name", name, "full_path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if name == def.Name {
				return def, nil
			}
			return nil, fmt.Errorf("%w: %s", storage.ErrPolicyNotFound, name)
		}
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	return ParsePolicy(data, name)
}

// ParsePolicy decodes a policy file over the defaults, so a file only needs
// the values it changes, and validates the result.
func ParsePolicy(data []byte, name string) (*enlistment.Policy, error) {
	pol := enlistment.DefaultPolicy()
	if err := json.Unmarshal(data, pol); err != nil {
		return nil, fmt.Errorf("failed to parse policy %s: %w", name, err)
	}
	if pol.Name == "" {
		pol.Name = name
	}
	if err := pol.Validate(); err != nil {
		return nil, err
	}
	return pol, nil
}
