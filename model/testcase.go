package model

import "errors"

// ErrEmptyFullName is returned by TestCase.Validate when the test case
// cannot be addressed by a filter expression.
var ErrEmptyFullName = errors.New("test case has an empty full name")

// TestCase identifies one runnable test inside a test binary.
// All fields are plain values so a copy (or a JSON round trip) rebuilds it
// exactly on the other side of a process boundary.
type TestCase struct {
	// Short test name (e.g. "IsEven/0")
	Name string `json:"name"`
	// Qualified identifier passed to the binary's filter (e.g. "Suite.IsEven/0")
	FullName string `json:"full_name"`
	// Suite the test belongs to
	SuiteName string `json:"suite_name"`
	// Set for value-parameterized tests
	IsParameterized bool   `json:"is_parameterized,omitempty"`
	ParameterValue  string `json:"parameter_value,omitempty"`
	// Set for typed tests
	IsTyped  bool   `json:"is_typed,omitempty"`
	TypeInfo string `json:"type_info,omitempty"`
}

// Validate checks that the test case can be handed to an executor.
func (tc TestCase) Validate() error {
	if tc.FullName == "" {
		return ErrEmptyFullName
	}
	return nil
}

func (tc TestCase) String() string {
	return tc.FullName
}

// Suite is an ordered group of test cases as reported by the binary.
type Suite struct {
	Name  string     `json:"name"`
	Cases []TestCase `json:"cases"`
}

// IsTyped reports whether any case in the suite is a typed test.
func (s Suite) IsTyped() bool {
	for _, c := range s.Cases {
		if c.IsTyped {
			return true
		}
	}
	return false
}

// IsParameterized reports whether any case in the suite is parameterized.
func (s Suite) IsParameterized() bool {
	for _, c := range s.Cases {
		if c.IsParameterized {
			return true
		}
	}
	return false
}
