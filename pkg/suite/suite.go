package suite

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/tidewater-io/datavet/pkg/verrors"
)

// Suite is an ordered, immutable bundle of checks.
type Suite struct {
	name             string
	description      string
	checks           []Check
	optimizerEnabled bool
}

// Name returns the suite name.
func (s *Suite) Name() string {
	return s.name
}

// Description returns the optional description.
func (s *Suite) Description() string {
	return s.description
}

// Checks returns the checks in declared order.
func (s *Suite) Checks() []Check {
	out := make([]Check, len(s.checks))
	copy(out, s.checks)

	return out
}

// OptimizerEnabled reports whether shared-scan grouping is requested.
func (s *Suite) OptimizerEnabled() bool {
	return s.optimizerEnabled
}

// Fingerprint returns a stable identity over the suite structure: its name
// and the ordered check and constraint names.
func (s *Suite) Fingerprint() string {
	h := sha256.New()
	h.Write([]byte(s.name))
	h.Write([]byte{0})

	for _, check := range s.checks {
		h.Write([]byte(check.name))
		h.Write([]byte{1})

		for _, constraint := range check.constraints {
			h.Write([]byte(constraint.name))
			h.Write([]byte{2})
		}
	}

	return hex.EncodeToString(h.Sum(nil)[:16])
}

// Builder assembles a suite.
type Builder struct {
	suite Suite
	err   error
}

// New starts a suite with the given name. The optimizer defaults to enabled.
func New(name string) *Builder {
	return &Builder{suite: Suite{name: name, optimizerEnabled: true}}
}

// Description sets the suite description.
func (b *Builder) Description(description string) *Builder {
	b.suite.description = description

	return b
}

// OptimizerEnabled toggles shared-scan grouping.
func (b *Builder) OptimizerEnabled(enabled bool) *Builder {
	b.suite.optimizerEnabled = enabled

	return b
}

// Check appends a built check.
func (b *Builder) Check(check Check) *Builder {
	b.suite.checks = append(b.suite.checks, check)

	return b
}

// CheckE appends the result of a CheckBuilder.Build call, keeping the first
// error for Build.
func (b *Builder) CheckE(check Check, err error) *Builder {
	if err != nil {
		if b.err == nil {
			b.err = err
		}

		return b
	}

	return b.Check(check)
}

// Build finalizes the suite. A suite must hold at least one check.
func (b *Builder) Build() (*Suite, error) {
	if b.err != nil {
		return nil, b.err
	}

	if len(b.suite.checks) == 0 {
		return nil, fmt.Errorf("%w: suite %q has no checks", verrors.ErrInvalidConfiguration, b.suite.name)
	}

	built := b.suite
	built.checks = make([]Check, len(b.suite.checks))
	copy(built.checks, b.suite.checks)

	return &built, nil
}
