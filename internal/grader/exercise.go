package grader

import (
	"errors"
	"fmt"
)

// DefaultExerciseID is used whenever a requested exercise does not exist.
const DefaultExerciseID = 1

// Exercise is one statically defined programming challenge.
type Exercise struct {
	ID           int
	Title        string
	Description  string
	StarterCode  string
	RequiresLoop bool
	Rubric       Rubric
}

// Catalogue is the immutable, ordered set of exercises.
type Catalogue struct {
	exercises []Exercise
	byID      map[int]int
}

// NewCatalogue validates that ids are sequential from 1 and every exercise has a rubric.
func NewCatalogue(exercises ...Exercise) (*Catalogue, error) {
	if len(exercises) == 0 {
		return nil, errors.New("catalogue needs at least one exercise")
	}

	byID := make(map[int]int, len(exercises))
	for i, exercise := range exercises {
		if exercise.ID != i+1 {
			return nil, fmt.Errorf("exercise at position %d has id %d, want %d", i, exercise.ID, i+1)
		}
		if exercise.Rubric == nil {
			return nil, fmt.Errorf("exercise %d has no rubric", exercise.ID)
		}
		byID[exercise.ID] = i
	}

	return &Catalogue{
		exercises: append([]Exercise(nil), exercises...),
		byID:      byID,
	}, nil
}

// Lookup returns the exercise with the given id.
func (c *Catalogue) Lookup(id int) (Exercise, bool) {
	idx, ok := c.byID[id]
	if !ok {
		return Exercise{}, false
	}
	return c.exercises[idx], true
}

// Resolve returns the requested exercise, or the default one for unknown ids.
func (c *Catalogue) Resolve(id int) Exercise {
	if exercise, ok := c.Lookup(id); ok {
		return exercise
	}
	exercise, _ := c.Lookup(DefaultExerciseID)
	return exercise
}

// Next returns the id following id, or false for the last exercise.
func (c *Catalogue) Next(id int) (int, bool) {
	if _, ok := c.byID[id]; !ok {
		return 0, false
	}
	if _, ok := c.byID[id+1]; !ok {
		return 0, false
	}
	return id + 1, true
}

// All returns the exercises in id order.
func (c *Catalogue) All() []Exercise {
	return append([]Exercise(nil), c.exercises...)
}

// Len reports the number of exercises.
func (c *Catalogue) Len() int {
	return len(c.exercises)
}
