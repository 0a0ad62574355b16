// Package compileroptions implements the compiler's own configuration file:
// a YAML document naming which optional passes run and how the emitted
// module targets its host runtime. It has nothing to do with module
// resolution or host-language interop — that concern belongs to a
// different ecosystem entirely and is out of scope here.
package compileroptions

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/sharpts/compiler/internal/module"
)

// Strategy names a concurrency policy for methods compiled from an async
// function that the source marks as mutually exclusive (SharpTS has no
// such surface today, but the runtime contract reserves the field so a
// future `synchronized` modifier has somewhere to land).
type Strategy string

const (
	// StrategyNone emits no synchronisation; concurrent Resume calls on
	// the same state machine race, as they do for ordinary async methods.
	StrategyNone Strategy = "none"

	// StrategySemaphore wraps the Resume body in an acquire/release pair
	// against a per-instance semaphore handle, serialising re-entrant
	// calls instead of rejecting or queuing them.
	StrategySemaphore Strategy = "semaphore"

	// StrategyMonitor uses a runtime monitor (lock) instead of a counting
	// semaphore — mutual exclusion only, no concurrent-entry budget.
	StrategyMonitor Strategy = "monitor"
)

// RuntimeAssembly names one assembly the emitted module's AssemblyRef
// table may point into, mirroring internal/module.AssemblyRef but in a
// YAML-friendly shape (a hex string instead of a byte array).
type RuntimeAssembly struct {
	Name           string `yaml:"name"`
	Version        string `yaml:"version,omitempty"`
	PublicKeyToken string `yaml:"public_key_token,omitempty"`
}

// ToAssemblyRef converts the YAML-friendly form to the module package's
// wire representation. A malformed or wrong-length public key token is
// returned as an error from here (validation calls this for every
// target); Version is not carried over.
func (r RuntimeAssembly) ToAssemblyRef() (module.AssemblyRef, error) {
	ref := module.AssemblyRef{Name: r.Name}
	if r.PublicKeyToken != "" {
		tok, err := hex.DecodeString(r.PublicKeyToken)
		if err != nil {
			return module.AssemblyRef{}, fmt.Errorf("public_key_token %q: %w", r.PublicKeyToken, err)
		}
		if len(tok) != 8 {
			return module.AssemblyRef{}, fmt.Errorf("public_key_token %q: want 8 bytes, got %d", r.PublicKeyToken, len(tok))
		}
		copy(ref.PublicKeyToken[:], tok)
	}
	return ref, nil
}

// CompilerOptions is the top-level sharptsc.yaml configuration.
type CompilerOptions struct {
	// ValidatingBuilder turns on the internal/ilvalidate pass: the driver
	// checks every finished method body for stack-depth, label,
	// exception-nesting, and box/unbox soundness and collects each
	// failure in its result's ValidationErrors; the individual emit calls
	// are not checked as they happen. Defaults to on;
	// set false only once the emitters are trusted, per spec.md's own
	// framing of the pass as elidable once stable.
	ValidatingBuilder *bool `yaml:"validating_builder,omitempty"`

	// MonomorphizationDepthLimit is parsed, checked to be non-negative,
	// and defaulted (zero means "use the built-in default" of 8). No
	// other package reads it: overload forwarder synthesis is not bounded
	// by it.
	MonomorphizationDepthLimit int `yaml:"monomorphization_depth_limit,omitempty"`

	// TargetRuntimeAssemblies lists the minimum assembly set the rewriter
	// retargets a module image onto. Empty means "infer from the module's
	// existing AssemblyRefs", the rewriter's own default behaviour.
	TargetRuntimeAssemblies []RuntimeAssembly `yaml:"target_runtime_assemblies,omitempty"`

	// SynchronizedMethodStrategy picks how a future `synchronized` async
	// method is lowered. Defaults to StrategyNone.
	SynchronizedMethodStrategy Strategy `yaml:"synchronized_method_strategy,omitempty"`
}

// IsValidatingBuilderEnabled reports the effective validating-builder
// setting, applying the documented "on by default" behaviour when the
// YAML document omits the field entirely.
func (o *CompilerOptions) IsValidatingBuilderEnabled() bool {
	if o.ValidatingBuilder == nil {
		return true
	}
	return *o.ValidatingBuilder
}

// LoadOptions reads and parses a sharptsc.yaml file.
func LoadOptions(path string) (*CompilerOptions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading compiler options %s: %w", path, err)
	}
	return ParseOptions(data, path)
}

// ParseOptions parses sharptsc.yaml content from bytes. path is used only
// for error messages.
func ParseOptions(data []byte, path string) (*CompilerOptions, error) {
	var o CompilerOptions
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := o.validate(path); err != nil {
		return nil, err
	}
	o.setDefaults()
	return &o, nil
}

// FindOptions searches for sharptsc.yaml starting from dir and walking up
// to parent directories, the same way FindConfig discovers funxy.yaml.
// Returns the empty string and a nil error when nothing is found.
func FindOptions(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving directory: %w", err)
	}

	for {
		for _, name := range []string{"sharptsc.yaml", "sharptsc.yml"} {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// validate checks the configuration for semantic errors.
func (o *CompilerOptions) validate(path string) error {
	if o.MonomorphizationDepthLimit < 0 {
		return fmt.Errorf("%s: monomorphization_depth_limit must not be negative, got %d", path, o.MonomorphizationDepthLimit)
	}

	switch o.SynchronizedMethodStrategy {
	case "", StrategyNone, StrategySemaphore, StrategyMonitor:
	default:
		return fmt.Errorf("%s: synchronized_method_strategy: unknown strategy %q", path, o.SynchronizedMethodStrategy)
	}

	for i, ra := range o.TargetRuntimeAssemblies {
		if ra.Name == "" {
			return fmt.Errorf("%s: target_runtime_assemblies[%d]: name is required", path, i)
		}
		if _, err := ra.ToAssemblyRef(); err != nil {
			return fmt.Errorf("%s: target_runtime_assemblies[%d] (%s): %w", path, i, ra.Name, err)
		}
	}

	return nil
}

// setDefaults fills in default values for omitted fields.
func (o *CompilerOptions) setDefaults() {
	if o.MonomorphizationDepthLimit == 0 {
		o.MonomorphizationDepthLimit = 8
	}
	if o.SynchronizedMethodStrategy == "" {
		o.SynchronizedMethodStrategy = StrategyNone
	}
}
