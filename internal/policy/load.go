package policy

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/f7las/gatekeeper/internal/document"
)

//go:embed schema/policy.schema.json
var policySchemaJSON []byte

var policySchema = document.MustCompile("policy.schema.json", policySchemaJSON)

// Bundle is every policy set loaded from one directory, in evaluation order.
type Bundle struct {
	Dir    string
	Sets   []Set
	Digest string
}

// IsPolicyFile reports whether name has an extension LoadDir reads.
func IsPolicyFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml", ".pkl":
		return true
	}
	return false
}

// LoadDir loads every policy document directly under dir, ordered by path.
// A missing directory yields an empty bundle, which denies everything.
func LoadDir(dir string) (Bundle, error) {
	bundle := Bundle{Dir: dir}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			bundle.Digest = digestOf(nil)
			return bundle, nil
		}
		return Bundle{}, &ConfigurationError{Path: dir, Err: err}
	}

	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !IsPolicyFile(entry.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)

	var (
		errs     []error
		contents [][]byte
		seen     = make(map[string]string, len(paths))
	)
	for _, path := range paths {
		set, raw, err := LoadFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if prev, dup := seen[set.PolicyID]; dup {
			errs = append(errs, &ConfigurationError{Path: path, Err: fmt.Errorf("policy_id %q already defined in %s", set.PolicyID, prev)})
			continue
		}
		seen[set.PolicyID] = path
		bundle.Sets = append(bundle.Sets, set)
		contents = append(contents, []byte(path), raw)
	}
	if err := errors.Join(errs...); err != nil {
		return Bundle{}, err
	}
	bundle.Digest = digestOf(contents)
	return bundle, nil
}

// LoadFile loads one policy document. It returns the set and the canonical
// bytes it was decoded from.
func LoadFile(path string) (Set, []byte, error) {
	var (
		data []byte
		err  error
	)
	decodePath := path
	if strings.EqualFold(filepath.Ext(path), ".pkl") {
		data, err = evaluatePkl(path)
		decodePath = strings.TrimSuffix(path, filepath.Ext(path)) + ".json"
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return Set{}, nil, &ConfigurationError{Path: path, Err: err}
	}

	set, err := Parse(decodePath, data)
	if err != nil {
		return Set{}, nil, &ConfigurationError{Path: path, Err: err}
	}
	set.Source = path
	return set, data, nil
}

// Parse decodes and validates one policy document. path only selects the
// decoder by extension.
func Parse(path string, data []byte) (Set, error) {
	var set Set
	if err := document.Load(path, data, policySchema, &set); err != nil {
		return Set{}, err
	}
	if err := normalizeSet(&set); err != nil {
		return Set{}, err
	}
	return set, nil
}

// normalizeSet canonicalizes effects and rejects what the schema cannot.
func normalizeSet(set *Set) error {
	set.PolicyID = strings.TrimSpace(set.PolicyID)
	if set.PolicyID == "" {
		return fmt.Errorf("policy_id is required")
	}

	var errs []error
	ids := make(map[string]bool, len(set.Rules))
	for i := range set.Rules {
		rule := &set.Rules[i]
		rule.ID = strings.TrimSpace(rule.ID)
		if ids[rule.ID] {
			errs = append(errs, fmt.Errorf("rules[%d]: duplicate rule id %q", i, rule.ID))
		}
		ids[rule.ID] = true

		effect, err := ParseEffect(string(rule.Effect))
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %s: %w", rule.ID, err))
			continue
		}
		rule.Effect = effect
	}
	return errors.Join(errs...)
}

func digestOf(parts [][]byte) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
