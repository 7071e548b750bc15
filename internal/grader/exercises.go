package grader

import (
	"github.com/noah-isme/scorestream-api/pkg/sandbox"
)

const (
	hiddenTestFailure = "Coach: %s returned %s, but we expected %s. Make sure your function works for any input, not just the example."
	hiddenTestRaised  = "Coach: Calling %s caused an error: %s. Make sure your function handles any input."
)

func constant(v sandbox.Value) func(map[string]sandbox.Value) sandbox.Value {
	return func(map[string]sandbox.Value) sandbox.Value { return v }
}

func hidden(function string, want sandbox.Value, args ...sandbox.Value) HiddenTest {
	return HiddenTest{
		Function: function,
		Args:     args,
		Want:     want,
		Failure:  hiddenTestFailure,
		Raised:   hiddenTestRaised,
	}
}

func functionBinding(name, example string) Requirement {
	return Requirement{
		Name:       name,
		Shape:      ShapeFunction,
		Missing:    "Coach: We couldn't find a function named '" + name + "'. Define it with def, e.g., " + example + ".",
		WrongShape: "Coach: '" + name + "' should be a function defined with def.",
	}
}

func resultBinding(name string, shape Shape, call string) Requirement {
	return Requirement{
		Name:       name,
		Shape:      shape,
		Missing:    "Coach: Please store the result of " + call + " in a variable named '" + name + "'.",
		WrongShape: "Coach: '" + name + "' should be a " + shape.String() + ".",
	}
}

// DefaultExercises is the built-in exercise set.
func DefaultExercises() []Exercise {
	return []Exercise{
		{
			ID:    1,
			Title: "Sum a List",
			Description: "Create a list called 'numbers' with at least 3 integers. " +
				"Iterate over the list and calculate the sum, storing it in 'total_sum'.",
			StarterCode:  "numbers = [4, 8, 15]\ntotal_sum = 0\n",
			RequiresLoop: true,
			Rubric: TableRubric{
				Requirements: []Requirement{
					{
						Name:       "numbers",
						Shape:      ShapeNumberList,
						Missing:    "Coach: We couldn't find a list named 'numbers'. Please define one, e.g., numbers = [1, 2, 3].",
						WrongShape: "Coach: 'numbers' should be a list.",
					},
					{
						Name:       "total_sum",
						Shape:      ShapeNumber,
						Missing:    "Coach: Please store the final sum in a variable named 'total_sum'.",
						WrongShape: "Coach: 'total_sum' should be a number.",
					},
				},
				Target: "total_sum",
				Expect: func(bindings map[string]sandbox.Value) sandbox.Value {
					return bindings["numbers"].Sum()
				},
				Mismatch: "Coach: The calculated sum was %s, but we expected %s. Check your addition logic inside the loop.",
				Success:  "Success! You've correctly iterated over the list and found the sum.",
			},
		},
		{
			ID:    2,
			Title: "Find the Maximum",
			Description: "Write a function 'find_max' that takes a list of numbers and returns the largest one. " +
				"Call it with [10, 5, 20, 3] and store the result in 'max_val'.",
			StarterCode: "def find_max(values):\n    # your code here\n    return 0\n\nmax_val = find_max([10, 5, 20, 3])\n",
			Rubric: TableRubric{
				Requirements: []Requirement{
					functionBinding("find_max", "def find_max(values):"),
					resultBinding("max_val", ShapeNumber, "find_max([10, 5, 20, 3])"),
				},
				Target:      "max_val",
				Expect:      constant(sandbox.Int(20)),
				Mismatch:    "Coach: 'max_val' was %s, but we expected %s. Compare each number with the largest one seen so far.",
				HiddenTests: []HiddenTest{hidden("find_max", sandbox.Int(100), sandbox.Ints(1, 100, -5))},
				Success:     "Success! Your find_max function returns the largest number in any list.",
			},
		},
		{
			ID:    3,
			Title: "Sum the Even Numbers",
			Description: "Write a function 'sum_evens' that returns the sum of the even numbers in a list. " +
				"Call it with [1, 2, 3, 4, 5, 6] and store the result in 'even_total'.",
			StarterCode: "def sum_evens(values):\n    # your code here\n    return 0\n\neven_total = sum_evens([1, 2, 3, 4, 5, 6])\n",
			Rubric: TableRubric{
				Requirements: []Requirement{
					functionBinding("sum_evens", "def sum_evens(values):"),
					resultBinding("even_total", ShapeNumber, "sum_evens([1, 2, 3, 4, 5, 6])"),
				},
				Target:      "even_total",
				Expect:      constant(sandbox.Int(12)),
				Mismatch:    "Coach: 'even_total' was %s, but we expected %s. A number is even when number %% 2 == 0.",
				HiddenTests: []HiddenTest{hidden("sum_evens", sandbox.Int(22), sandbox.Ints(10, 11, 12))},
				Success:     "Success! Your sum_evens function adds up only the even numbers.",
			},
		},
		{
			ID:    4,
			Title: "Count the Vowels",
			Description: "Write a function 'count_vowels' that returns how many vowels (a, e, i, o, u) a string contains. " +
				"Call it with \"hello world\" and store the result in 'vowel_count'.",
			StarterCode: "def count_vowels(text):\n    # your code here\n    return 0\n\nvowel_count = count_vowels(\"hello world\")\n",
			Rubric: TableRubric{
				Requirements: []Requirement{
					functionBinding("count_vowels", "def count_vowels(text):"),
					resultBinding("vowel_count", ShapeNumber, "count_vowels(\"hello world\")"),
				},
				Target:      "vowel_count",
				Expect:      constant(sandbox.Int(3)),
				Mismatch:    "Coach: 'vowel_count' was %s, but we expected %s. Check each character against \"aeiou\".",
				HiddenTests: []HiddenTest{hidden("count_vowels", sandbox.Int(5), sandbox.String("aeiou"))},
				Success:     "Success! Your count_vowels function counts every vowel.",
			},
		},
		{
			ID:    5,
			Title: "Reverse a String",
			Description: "Write a function 'reverse_string' that returns its input reversed. " +
				"Call it with \"python\" and store the result in 'reversed_str'.",
			StarterCode: "def reverse_string(text):\n    # your code here\n    return text\n\nreversed_str = reverse_string(\"python\")\n",
			Rubric: TableRubric{
				Requirements: []Requirement{
					functionBinding("reverse_string", "def reverse_string(text):"),
					resultBinding("reversed_str", ShapeString, "reverse_string(\"python\")"),
				},
				Target:      "reversed_str",
				Expect:      constant(sandbox.String("nohtyp")),
				Mismatch:    "Coach: 'reversed_str' was %s, but we expected %s. Build the result from the last character to the first.",
				HiddenTests: []HiddenTest{hidden("reverse_string", sandbox.String("cba"), sandbox.String("abc"))},
				Success:     "Success! Your reverse_string function reverses any string.",
			},
		},
	}
}

// DefaultCatalogue builds the catalogue of built-in exercises.
func DefaultCatalogue() *Catalogue {
	catalogue, err := NewCatalogue(DefaultExercises()...)
	if err != nil {
		panic(err)
	}
	return catalogue
}
