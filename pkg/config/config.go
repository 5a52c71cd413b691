package config

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/klog/v2"
	"sigs.k8s.io/yaml"

	"github.com/pmlproject9/lbset/pkg/ipset"
)

// SetSpec describes one set in a restore file.
type SetSpec struct {
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Family   string   `json:"family,omitempty"`
	HashSize int      `json:"hashSize,omitempty"`
	MaxElem  int      `json:"maxElem,omitempty"`
	Comment  bool     `json:"comment,omitempty"`
	Entries  []string `json:"entries,omitempty"`
}

type Config struct {
	Sets []SetSpec `json:"sets"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read restore file %s", path)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "restore file %s", path)
	}
	return cfg, nil
}

// Parse decodes and validates a restore file.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every set and entry and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error
	seen := map[string]bool{}

	for i, s := range c.Sets {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("sets[%d]: name is required", i))
			continue
		}
		if seen[s.Name] {
			errs = append(errs, fmt.Errorf("sets[%d]: duplicate set %s", i, s.Name))
		}
		seen[s.Name] = true

		family, err := ipset.ParseFamily(s.Family)
		if err != nil {
			errs = append(errs, errors.Wrapf(err, "set %s", s.Name))
			continue
		}
		if s.HashSize < 0 || s.MaxElem < 0 {
			errs = append(errs, fmt.Errorf("set %s: hashSize and maxElem must not be negative", s.Name))
		}
		if s.Type == "" {
			s.Type = ipset.DefaultSetType
		}
		if !ipset.IsValidType(s.Type) {
			errs = append(errs, fmt.Errorf("set %s: unsupported type %q", s.Name, s.Type))
			continue
		}

		for _, entry := range s.Entries {
			p, err := ipset.ParseEntry(s.Type, entry)
			if err != nil {
				errs = append(errs, errors.Wrapf(err, "set %s", s.Name))
				continue
			}
			if p.Family != family {
				errs = append(errs, fmt.Errorf("set %s: %s entry %q in %s set", s.Name, p.Family, entry, family))
			}
		}
	}
	return utilerrors.NewAggregate(errs)
}

// Apply creates every set on exec and loads its entries, replacing the
// contents of sets that already exist.
func (c *Config) Apply(exec *ipset.Executor) error {
	for _, spec := range c.Sets {
		setType := spec.Type
		if setType == "" {
			setType = ipset.DefaultSetType
		}
		s, err := ipset.New(spec.Name, setType, &ipset.Params{
			HashFamily: spec.Family,
			HashSize:   spec.HashSize,
			MaxElem:    spec.MaxElem,
			Comment:    spec.Comment,
		})
		if err != nil {
			return err
		}
		if existing, err := exec.Get(spec.Name); err == nil {
			if existing.HashType != s.HashType || existing.Family() != s.Family() {
				return errors.Wrapf(ipset.ErrExists, "set %s exists as %s %s", spec.Name, existing.HashType, existing.Family())
			}
			s = existing
		}
		if err := exec.ReFlush(s, spec.Entries); err != nil {
			return errors.Wrapf(err, "restore set %s", spec.Name)
		}
		klog.V(2).Infof("restored ipset %s with %d entries", spec.Name, len(spec.Entries))
	}
	return nil
}
