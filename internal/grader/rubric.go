package grader

import (
	"fmt"

	"github.com/noah-isme/scorestream-api/pkg/sandbox"
)

// Rubric checks the outcome of running a submission for one exercise.
type Rubric interface {
	// Probes lists the hidden function calls the runner performs after the module ran.
	Probes() []sandbox.Probe
	// Check evaluates the execution result. It is only called for results that did not fail.
	Check(result sandbox.Result) (bool, []string)
}

// Shape is the expected type of a required binding.
type Shape int

const (
	ShapeNumberList Shape = iota + 1
	ShapeNumber
	ShapeString
	ShapeFunction
)

// Matches reports whether v has this shape.
func (s Shape) Matches(v sandbox.Value) bool {
	switch s {
	case ShapeNumberList:
		return v.IsNumberList()
	case ShapeNumber:
		return v.IsNumber()
	case ShapeString:
		return v.Kind == sandbox.KindString
	case ShapeFunction:
		return v.IsCallable()
	default:
		return false
	}
}

func (s Shape) String() string {
	switch s {
	case ShapeNumberList:
		return "list of numbers"
	case ShapeNumber:
		return "number"
	case ShapeString:
		return "string"
	case ShapeFunction:
		return "function"
	default:
		return "unknown"
	}
}

// Requirement names a binding the submission must define.
type Requirement struct {
	Name       string
	Shape      Shape
	Missing    string
	WrongShape string
}

// HiddenTest re-invokes a submitted function on an input the exercise never shows.
type HiddenTest struct {
	Function string
	Args     []sandbox.Value
	Want     sandbox.Value
	// Failure is formatted with the call expression, the returned value and the expected value.
	Failure string
	// Raised is formatted with the call expression and the error message.
	Raised string
}

// TableRubric is the data-driven rubric shared by every exercise.
type TableRubric struct {
	Requirements []Requirement
	// Target is the binding compared against Expect.
	Target string
	// Expect computes the expected target value from the submission's bindings.
	Expect func(bindings map[string]sandbox.Value) sandbox.Value
	// Mismatch is formatted with the actual and expected values.
	Mismatch    string
	HiddenTests []HiddenTest
	Success     string
}

// Probes implements Rubric.
func (r TableRubric) Probes() []sandbox.Probe {
	probes := make([]sandbox.Probe, 0, len(r.HiddenTests))
	for _, test := range r.HiddenTests {
		probes = append(probes, test.probe())
	}
	return probes
}

// Check implements Rubric. Checks run in priority order: missing bindings,
// wrong shapes, then the expected value together with the hidden tests.
func (r TableRubric) Check(result sandbox.Result) (bool, []string) {
	var feedback []string

	for _, req := range r.Requirements {
		if _, ok := result.Binding(req.Name); !ok {
			feedback = append(feedback, req.Missing)
		}
	}
	if len(feedback) > 0 {
		return false, feedback
	}

	for _, req := range r.Requirements {
		value, _ := result.Binding(req.Name)
		if !req.Shape.Matches(value) {
			feedback = append(feedback, req.WrongShape)
		}
	}
	if len(feedback) > 0 {
		return false, feedback
	}

	if r.Target != "" && r.Expect != nil {
		got, _ := result.Binding(r.Target)
		want := r.Expect(result.Bindings)
		if !got.Equal(want) {
			feedback = append(feedback, fmt.Sprintf(r.Mismatch, got, want))
		}
	}

	for i, test := range r.HiddenTests {
		call := test.probe().String()
		outcome, ok := result.Call(i)
		switch {
		case !ok:
			feedback = append(feedback, fmt.Sprintf(test.Raised, call, "the function was not called"))
		case outcome.Error != "":
			feedback = append(feedback, fmt.Sprintf(test.Raised, call, outcome.Error))
		case !outcome.Value.Equal(test.Want):
			feedback = append(feedback, fmt.Sprintf(test.Failure, call, outcome.Value, test.Want))
		}
	}

	if len(feedback) > 0 {
		return false, feedback
	}
	return true, []string{r.Success}
}

func (t HiddenTest) probe() sandbox.Probe {
	return sandbox.Probe{Function: t.Function, Args: t.Args}
}
