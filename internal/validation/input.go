package validation

import (
	"fmt"
	"regexp"
)

var slugPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateSlug validates an experiment slug from a URL.
func ValidateSlug(slug string) error {
	if len(slug) == 0 || len(slug) > 64 {
		return fmt.Errorf("slug must be 1-64 characters")
	}

	if !slugPattern.MatchString(slug) {
		return fmt.Errorf("slug can only contain alphanumeric characters, hyphens, and underscores")
	}

	return nil
}

// ValidateAgentID validates an agent id from a URL or query string.
func ValidateAgentID(id string) error {
	if len(id) == 0 || len(id) > 128 {
		return fmt.Errorf("agent ID must be 1-128 characters")
	}

	if !slugPattern.MatchString(id) {
		return fmt.Errorf("agent ID can only contain alphanumeric characters, hyphens, and underscores")
	}

	return nil
}

// ValidateAgentCount bounds population size for experiment creation.
func ValidateAgentCount(count int) error {
	if count < 1 || count > 200 {
		return fmt.Errorf("agent count must be between 1 and 200")
	}
	return nil
}

// ValidateRelationInfluence bounds the admission blend factor.
func ValidateRelationInfluence(alpha float64) error {
	if alpha < 0 || alpha > 1 {
		return fmt.Errorf("relation influence must be between 0 and 1")
	}
	return nil
}

// ValidateInteractionImpact bounds a custom interaction impact.
func ValidateInteractionImpact(impact float64) error {
	if impact < -1 || impact > 1 {
		return fmt.Errorf("impact must be between -1 and 1")
	}
	return nil
}
