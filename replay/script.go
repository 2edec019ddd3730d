// Package replay drives a field from a YAML script in virtual time.
package replay

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidScript is returned for scripts that cannot be replayed.
var ErrInvalidScript = errors.New("invalid replay script")

// Op is the operation of a step.
type Op string

// Supported operations.
const (
	OpEdit    Op = "edit"
	OpExit    Op = "exit"
	OpSource  Op = "source"
	OpAck     Op = "ack"
	OpDispose Op = "dispose"
)

// Step is one operation applied at a given offset from the start of the
// replay.
type Step struct {
	At       time.Duration `yaml:"at"`
	Op       Op            `yaml:"op"`
	Identity string        `yaml:"identity,omitempty"`
	Value    string        `yaml:"value,omitempty"`
}

// Script describes a field and what happens to it.
type Script struct {
	Quiescence time.Duration `yaml:"quiescence,omitempty"`
	Identity   string        `yaml:"identity"`
	Source     string        `yaml:"source"`
	Steps      []Step        `yaml:"steps"`
}

// Load reads and parses the script at path.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}

	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return s, nil
}

// Parse decodes and validates a script.
func Parse(data []byte) (*Script, error) {
	s := &Script{}

	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidScript, err)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}

	return s, nil
}

// Validate checks the quiescence window, the operations and the step order.
func (s *Script) Validate() error {
	if s.Quiescence < 0 {
		return fmt.Errorf("%w: negative quiescence %v", ErrInvalidScript, s.Quiescence)
	}

	var last time.Duration

	for i, step := range s.Steps {
		if step.At < last {
			return fmt.Errorf("%w: step %d at %v is before %v",
				ErrInvalidScript, i, step.At, last)
		}

		last = step.At

		switch step.Op {
		case OpEdit, OpExit, OpAck, OpDispose:
		case OpSource:
			if step.Identity == "" {
				return fmt.Errorf("%w: step %d: source needs an identity",
					ErrInvalidScript, i)
			}
		default:
			return fmt.Errorf("%w: step %d: unknown op %q",
				ErrInvalidScript, i, step.Op)
		}
	}

	return nil
}

// Marshal encodes the script as YAML.
func (s *Script) Marshal() ([]byte, error) {
	return yaml.Marshal(s)
}
