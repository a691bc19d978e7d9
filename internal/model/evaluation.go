package model

import (
	"path"
	"sort"
)

// Method is a video-generation technique under evaluation ("paper" in configuration)
type Method struct {
	ID          string `json:"id" validate:"required"`
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	Directory   string `json:"directory" validate:"required"`
}

// Section is one evaluation dimension of the segment-review phase
type Section struct {
	ID          string         `json:"id" validate:"required"`
	Name        string         `json:"name" validate:"required"`
	Description string         `json:"description"`
	Order       int            `json:"order"`
	StarLabels  map[int]string `json:"star_labels"`
}

// Criterion is one rated dimension of a wholistic method review
type Criterion struct {
	ID          string         `json:"id" validate:"required"`
	Name        string         `json:"name" validate:"required"`
	Description string         `json:"description"`
	StarLabels  map[int]string `json:"star_labels"`
}

// EvaluationConfig is the static study definition fetched once at start-up
type EvaluationConfig struct {
	Papers             []Method    `json:"papers" validate:"required,min=1,dive"`
	EvaluationClips    []string    `json:"evaluation_clips" validate:"required,min=1,dive,required"`
	EvaluationSections []Section   `json:"evaluation_sections,omitempty" validate:"omitempty,dive"`
	ClipsPerSection    int         `json:"clips_per_section,omitempty" validate:"omitempty,min=1"`
	WholisticCriteria  []Criterion `json:"wholistic_criteria,omitempty" validate:"omitempty,dive"`
}

// DefaultClipsPerSection applies when the configuration leaves clips_per_section unset
const DefaultClipsPerSection = 4

// Paper looks up a method by id
func (c *EvaluationConfig) Paper(id string) (Method, bool) {
	for _, p := range c.Papers {
		if p.ID == id {
			return p, true
		}
	}
	return Method{}, false
}

// SortedSections returns the sections ordered by their order field, ascending.
// Sections sharing an order keep their configuration order.
func (c *EvaluationConfig) SortedSections() []Section {
	sections := make([]Section, len(c.EvaluationSections))
	copy(sections, c.EvaluationSections)
	sort.SliceStable(sections, func(i, j int) bool {
		return sections[i].Order < sections[j].Order
	})
	return sections
}

// SectionClips returns the clips used for every section
func (c *EvaluationConfig) SectionClips() []string {
	n := c.ClipsPerSection
	if n <= 0 {
		n = DefaultClipsPerSection
	}
	return firstN(c.EvaluationClips, n)
}

// Clips returns at most n clips from the front of the clip list
func (c *EvaluationConfig) Clips(n int) []string {
	return firstN(c.EvaluationClips, n)
}

func firstN(clips []string, n int) []string {
	if n > len(clips) {
		n = len(clips)
	}
	out := make([]string, n)
	copy(out, clips[:n])
	return out
}

// MediaPath returns the location of a method's clip below base
func MediaPath(base string, m Method, clip string) string {
	return path.Join(base, m.Directory, clip)
}
