// Package manifest parses the project manifest file and populates a
// project.Project from it. The manifest decodes in two steps: encoding/json
// produces an untyped tree, and github.com/mitchellh/mapstructure lifts the
// envelope fields (including the testsuites array) into their typed shapes.
// The free-form "value" block stays untyped and is walked into the
// project's attribute store.
package manifest

import (
	"encoding/json"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/forgebuild/forgebuild/internal/attr"
	"github.com/forgebuild/forgebuild/internal/errs"
	"github.com/forgebuild/forgebuild/internal/project"
)

// FileName is the well-known manifest file name the crawler looks for in
// each candidate project directory.
const FileName = "project.json"

// raw mirrors the manifest's envelope shape before being lifted into a
// project.Project.
type raw struct {
	ID         string                 `mapstructure:"id"`
	Type       string                 `mapstructure:"type"`
	Language   string                 `mapstructure:"language"`
	Version    string                 `mapstructure:"version"`
	Use        []string               `mapstructure:"use"`
	UsePrivate []string               `mapstructure:"use_private"`
	UseBuild   []string               `mapstructure:"use_build"`
	Recursive  bool                   `mapstructure:"recursive"`
	Value      map[string]interface{} `mapstructure:"value"`
	TestSuites []project.TestSuite    `mapstructure:"testsuites"`
}

// Parse reads and decodes the manifest at path and returns a Project rooted
// at dir (the manifest's containing directory).
func Parse(path, dir string) (*project.Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.WithStackTrace(err)
	}

	var tree map[string]interface{}
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, errs.Errorf("manifest: %s: invalid JSON: %w", path, err)
	}

	var r raw
	if err := mapstructure.Decode(tree, &r); err != nil {
		return nil, errs.Errorf("manifest: %s: %w", path, err)
	}

	if r.ID == "" {
		return nil, errs.Errorf("manifest: %s: missing required field \"id\"", path)
	}

	kind, ok := project.ParseKind(r.Type)
	if !ok {
		return nil, errs.Errorf("manifest: %s: unknown project type %q", path, r.Type)
	}

	p := project.New(r.ID, kind, dir, r.Language)
	p.Use = r.Use
	p.UsePrivate = r.UsePrivate
	p.UseBuild = r.UseBuild
	p.Recursive = r.Recursive
	p.TestSuites = r.TestSuites

	if r.Version != "" {
		v, err := parseVersion(r.Version)
		if err != nil {
			return nil, errs.Errorf("manifest: %s: %w", path, err)
		}

		p.Version = v
	}

	if err := decodeAttributes(p.Attributes, r.Value); err != nil {
		return nil, errs.Errorf("manifest: %s: %w", path, err)
	}

	return p, nil
}

// decodeAttributes walks the freeform value block into the project's
// attribute store.
func decodeAttributes(store *attr.Store, value map[string]interface{}) error {
	for name, raw := range value {
		a, err := toAttribute(name, raw)
		if err != nil {
			return err
		}

		store.Set(a)
	}

	return nil
}

func toAttribute(name string, raw interface{}) (attr.Attribute, error) {
	switch v := raw.(type) {
	case bool:
		return attr.NewBool(name, v), nil
	case string:
		return attr.NewString(name, v), nil
	case float64:
		return attr.NewNumber(name, v), nil
	case []interface{}:
		elems := make([]attr.Attribute, 0, len(v))

		for i, elem := range v {
			a, err := toAttribute("", elem)
			if err != nil {
				return attr.Attribute{}, errs.Errorf("attribute %q[%d]: %w", name, i, err)
			}

			elems = append(elems, a)
		}

		return attr.NewArray(name, elems), nil
	case map[string]interface{}:
		// A nested object becomes an array of named child attributes,
		// sorted by name so decoding is deterministic.
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}

		sort.Strings(keys)

		elems := make([]attr.Attribute, 0, len(keys))

		for _, key := range keys {
			a, err := toAttribute(key, v[key])
			if err != nil {
				return attr.Attribute{}, errs.Errorf("attribute %q.%s: %w", name, key, err)
			}

			elems = append(elems, a)
		}

		return attr.NewArray(name, elems), nil
	default:
		return attr.Attribute{}, errs.Errorf("attribute %q: unsupported value %v", name, v)
	}
}

// parseVersion splits a dotted "major[.minor[.patch]]" string; each field
// is optional as it descends, but a patch without a minor is invalid.
func parseVersion(s string) (project.Version, error) {
	parts := strings.Split(s, ".")
	if len(parts) > 3 {
		return project.Version{}, errs.Errorf("invalid version %q: too many components", s)
	}

	nums := make([]int, len(parts))

	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return project.Version{}, errs.Errorf("invalid version %q: %w", s, err)
		}

		nums[i] = n
	}

	v := project.Version{}
	if len(nums) >= 1 {
		v.Major = &nums[0]
	}

	if len(nums) >= 2 {
		v.Minor = &nums[1]
	}

	if len(nums) >= 3 {
		v.Patch = &nums[2]
	}

	return v, nil
}
