package grader

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/scorestream-api/pkg/sandbox"
)

func rubricFor(t *testing.T, id int) Rubric {
	t.Helper()
	exercise, ok := DefaultCatalogue().Lookup(id)
	require.True(t, ok)
	return exercise.Rubric
}

func fn(name string) sandbox.Value {
	return sandbox.Value{Kind: sandbox.KindFunction, Type: name}
}

func TestTableRubricProbesFollowHiddenTests(t *testing.T) {
	require.Empty(t, rubricFor(t, 1).Probes())

	probes := rubricFor(t, 4).Probes()
	require.Len(t, probes, 1)
	require.Equal(t, "count_vowels('aeiou')", probes[0].String())
}

func TestTableRubricAcceptsFloatsAndTuples(t *testing.T) {
	rubric := rubricFor(t, 1)

	passed, feedback := rubric.Check(sandbox.Result{Bindings: map[string]sandbox.Value{
		"numbers":   {Kind: sandbox.KindList, Type: "tuple", Items: []sandbox.Value{sandbox.Int(1), sandbox.Float(1.5)}},
		"total_sum": sandbox.Float(2.5),
	}})
	require.True(t, passed)
	require.Len(t, feedback, 1)
}

func TestTableRubricRejectsBooleansAsNumbers(t *testing.T) {
	rubric := rubricFor(t, 2)

	passed, feedback := rubric.Check(sandbox.Result{
		Bindings: map[string]sandbox.Value{
			"find_max": fn("find_max"),
			"max_val":  sandbox.Bool(true),
		},
		Calls: []sandbox.CallResult{{Value: sandbox.Int(100)}},
	})
	require.False(t, passed)
	require.Equal(t, []string{"Coach: 'max_val' should be a number."}, feedback)
}

func TestTableRubricStopsAfterMissingBindings(t *testing.T) {
	rubric := rubricFor(t, 3)

	passed, feedback := rubric.Check(sandbox.Result{Bindings: map[string]sandbox.Value{
		"even_total": sandbox.String("twelve"),
	}})
	require.False(t, passed)
	require.Equal(t, []string{
		"Coach: We couldn't find a function named 'sum_evens'. Define it with def, e.g., def sum_evens(values):.",
	}, feedback)
}

func TestTableRubricReportsValueAndHiddenTestTogether(t *testing.T) {
	rubric := rubricFor(t, 5)

	passed, feedback := rubric.Check(sandbox.Result{
		Bindings: map[string]sandbox.Value{
			"reverse_string": fn("reverse_string"),
			"reversed_str":   sandbox.String("python"),
		},
		Calls: []sandbox.CallResult{{Value: sandbox.String("abc")}},
	})
	require.False(t, passed)
	require.Equal(t, []string{
		"Coach: 'reversed_str' was 'python', but we expected 'nohtyp'. Build the result from the last character to the first.",
		"Coach: reverse_string('abc') returned 'abc', but we expected 'cba'. Make sure your function works for any input, not just the example.",
	}, feedback)
}

func TestTableRubricReportsRaisingHiddenTest(t *testing.T) {
	rubric := rubricFor(t, 3)

	passed, feedback := rubric.Check(sandbox.Result{
		Bindings: map[string]sandbox.Value{
			"sum_evens":  fn("sum_evens"),
			"even_total": sandbox.Int(12),
		},
		Calls: []sandbox.CallResult{{Error: "index out of range"}},
	})
	require.False(t, passed)
	require.Equal(t, []string{
		"Coach: Calling sum_evens([10, 11, 12]) caused an error: index out of range. Make sure your function handles any input.",
	}, feedback)
}

func TestTableRubricReportsMissingProbeResult(t *testing.T) {
	rubric := rubricFor(t, 4)

	passed, feedback := rubric.Check(sandbox.Result{Bindings: map[string]sandbox.Value{
		"count_vowels": fn("count_vowels"),
		"vowel_count":  sandbox.Int(3),
	}})
	require.False(t, passed)
	require.Len(t, feedback, 1)
	require.Contains(t, feedback[0], "the function was not called")
}

func TestShapeMatches(t *testing.T) {
	require.True(t, ShapeNumber.Matches(sandbox.Float(1)))
	require.False(t, ShapeNumber.Matches(sandbox.String("1")))
	require.True(t, ShapeString.Matches(sandbox.String("")))
	require.True(t, ShapeFunction.Matches(fn("f")))
	require.False(t, ShapeFunction.Matches(sandbox.Int(1)))
	require.True(t, ShapeNumberList.Matches(sandbox.Ints(1, 2)))
	require.False(t, Shape(0).Matches(sandbox.Int(1)))
}

func TestCatalogueNavigation(t *testing.T) {
	catalogue := DefaultCatalogue()
	require.Equal(t, 5, catalogue.Len())

	next, ok := catalogue.Next(1)
	require.True(t, ok)
	require.Equal(t, 2, next)

	_, ok = catalogue.Next(5)
	require.False(t, ok)

	_, ok = catalogue.Next(42)
	require.False(t, ok)

	require.Equal(t, DefaultExerciseID, catalogue.Resolve(0).ID)
	require.Equal(t, DefaultExerciseID, catalogue.Resolve(-3).ID)
	require.Equal(t, 4, catalogue.Resolve(4).ID)

	all := catalogue.All()
	all[0].Title = "mutated"
	first, _ := catalogue.Lookup(1)
	require.Equal(t, "Sum a List", first.Title)
}

func TestNewCatalogueValidatesIDs(t *testing.T) {
	_, err := NewCatalogue()
	require.Error(t, err)

	exercises := DefaultExercises()
	exercises[1].ID = 7
	_, err = NewCatalogue(exercises...)
	require.Error(t, err)

	exercises = DefaultExercises()
	exercises[0].Rubric = nil
	_, err = NewCatalogue(exercises...)
	require.Error(t, err)
}

func TestUsesLoop(t *testing.T) {
	require.True(t, usesLoop("for n in numbers:"))
	require.True(t, usesLoop("while x:"))
	require.True(t, usesLoop("# for later"))
	require.False(t, usesLoop("total = sum(numbers)"))
	require.False(t, usesLoop("format(x)"))
}
