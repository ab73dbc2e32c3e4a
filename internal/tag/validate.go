package tag

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// aspectPattern matches a "W:H" aspect ratio with integer terms.
var aspectPattern = regexp.MustCompile(`^(\d+):(\d+)$`)

// Validate checks the tag's invariants and returns all violations found.
// Violations are collected, never raised — callers decide whether to proceed
// with a partially invalid tag set.
//
// Checked: id and prompt non-empty; aspect matches W:H with positive
// integers; guidance in [0, 20]; strength in [0, 1].
func Validate(t ImageTag) []error {
	var errs []error

	if strings.TrimSpace(t.ID) == "" {
		errs = append(errs, fmt.Errorf("tag: id must not be empty"))
	}
	if strings.TrimSpace(t.Prompt) == "" {
		errs = append(errs, fmt.Errorf("tag %s: prompt must not be empty", t.ID))
	}

	if t.AspectRatio != "" {
		m := aspectPattern.FindStringSubmatch(t.AspectRatio)
		if m == nil {
			errs = append(errs, fmt.Errorf("tag %s: aspect %q must match W:H", t.ID, t.AspectRatio))
		} else {
			w, _ := strconv.Atoi(m[1])
			h, _ := strconv.Atoi(m[2])
			if w <= 0 || h <= 0 {
				errs = append(errs, fmt.Errorf("tag %s: aspect %q terms must be positive", t.ID, t.AspectRatio))
			}
		}
	}

	if t.GuidanceScale < 0 || t.GuidanceScale > 20 {
		errs = append(errs, fmt.Errorf("tag %s: guidance %.3g outside [0, 20]", t.ID, t.GuidanceScale))
	}
	if t.Strength < 0 || t.Strength > 1 {
		errs = append(errs, fmt.Errorf("tag %s: strength %.3g outside [0, 1]", t.ID, t.Strength))
	}

	return errs
}

// ValidateAll validates every tag in order, concatenating the violations.
func ValidateAll(tags []ImageTag) []error {
	var errs []error
	for _, t := range tags {
		errs = append(errs, Validate(t)...)
	}
	return errs
}
