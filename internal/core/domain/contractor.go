package domain

import (
	"time"
)

// Contractor represents a service contractor available for maintenance work
type Contractor struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	Skills              []string  `json:"skills"`
	ServiceArea         string    `json:"serviceArea"`
	Rating              float64   `json:"rating"`
	JobsCompleted       int       `json:"jobsCompleted"`
	Available           bool      `json:"available"`
	HourlyRate          float64   `json:"hourlyRate"`
	PreferredProperties []string  `json:"preferredProperties"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// HasSkill reports whether the contractor lists the given skill.
func (c *Contractor) HasSkill(skill string) bool {
	for _, s := range c.Skills {
		if s == skill {
			return true
		}
	}
	return false
}

// HasAnySkill reports whether any requested skill is in the contractor's set.
func (c *Contractor) HasAnySkill(skills []string) bool {
	for _, s := range skills {
		if c.HasSkill(s) {
			return true
		}
	}
	return false
}
