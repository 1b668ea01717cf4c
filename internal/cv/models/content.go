package models

import (
	"fmt"
	"strings"
	"time"
)

// FieldExperienceEntry is a single dated field engagement attached to an
// experience entry.
type FieldExperienceEntry struct {
	Type         string `json:"type"`
	Date         string `json:"date"`
	Organization string `json:"organization,omitempty"`
}

// FieldExperienceCount tracks engagement totals for one field activity.
type FieldExperienceCount struct {
	Total   int `json:"total"`
	Last12M int `json:"last_12m"`
}

// FieldExperienceCounts breaks down field engagements by activity type.
type FieldExperienceCounts struct {
	Assessment *FieldExperienceCount `json:"assessment,omitempty"`
	Sampling   *FieldExperienceCount `json:"sampling,omitempty"`
	Training   *FieldExperienceCount `json:"training,omitempty"`
}

type ExperienceEntry struct {
	Title                 string                 `json:"title"`
	Company               string                 `json:"company"`
	Location              string                 `json:"location,omitempty"`
	StartDate             string                 `json:"start_date"`
	EndDate               string                 `json:"end_date,omitempty"`
	Current               bool                   `json:"current"`
	Description           string                 `json:"description,omitempty"`
	FieldExperience       []FieldExperienceEntry `json:"field_experience,omitempty"`
	FieldExperienceCounts *FieldExperienceCounts `json:"field_experience_counts,omitempty"`
	LockedForReview       bool                   `json:"locked_for_review,omitempty"`
}

type EducationEntry struct {
	School          string `json:"school"`
	Degree          string `json:"degree"`
	Field           string `json:"field"`
	StartDate       string `json:"start_date"`
	EndDate         string `json:"end_date"`
	Description     string `json:"description,omitempty"`
	LockedForReview bool   `json:"locked_for_review,omitempty"`
}

type TrainingQualificationEntry struct {
	QualificationName    string `json:"qualification_name"`
	TrainingOrganisation string `json:"training_organisation"`
	TrainingContent      string `json:"training_content,omitempty"`
	DateIssued           string `json:"date_issued"`
	ExpireDate           string `json:"expire_date,omitempty"`
	Description          string `json:"description,omitempty"`
	LockedForReview      bool   `json:"locked_for_review,omitempty"`
}

// Content is the editable body of a CV version.
type Content struct {
	Experience             []ExperienceEntry            `json:"experience"`
	Education              []EducationEntry             `json:"education"`
	TrainingQualifications []TrainingQualificationEntry `json:"training_qualifications,omitempty"`
	Notes                  string                       `json:"notes,omitempty"`
}

// Clone deep-copies the content so a new CV version does not alias the
// slices of the version it was copied from.
func (c Content) Clone() Content {
	out := Content{Notes: c.Notes}
	if c.Experience != nil {
		out.Experience = make([]ExperienceEntry, len(c.Experience))
		copy(out.Experience, c.Experience)
		for i := range out.Experience {
			if fe := c.Experience[i].FieldExperience; fe != nil {
				out.Experience[i].FieldExperience = append([]FieldExperienceEntry(nil), fe...)
			}
			if counts := c.Experience[i].FieldExperienceCounts; counts != nil {
				cloned := *counts
				if counts.Assessment != nil {
					v := *counts.Assessment
					cloned.Assessment = &v
				}
				if counts.Sampling != nil {
					v := *counts.Sampling
					cloned.Sampling = &v
				}
				if counts.Training != nil {
					v := *counts.Training
					cloned.Training = &v
				}
				out.Experience[i].FieldExperienceCounts = &cloned
			}
		}
	}
	if c.Education != nil {
		out.Education = append([]EducationEntry(nil), c.Education...)
	}
	if c.TrainingQualifications != nil {
		out.TrainingQualifications = append([]TrainingQualificationEntry(nil), c.TrainingQualifications...)
	}
	return out
}

// stripReviewLocks clears every per-entry review lock. The flags belong to
// the item-lock operation; content payloads cannot set or clear them.
func (c *Content) stripReviewLocks() {
	for i := range c.Experience {
		c.Experience[i].LockedForReview = false
	}
	for i := range c.Education {
		c.Education[i].LockedForReview = false
	}
	for i := range c.TrainingQualifications {
		c.TrainingQualifications[i].LockedForReview = false
	}
}

// restoreLockedEntries copies every entry locked in prior back into this
// content at its position, appending when the update shortened the section,
// so a wholesale update cannot replace or drop a locked entry.
func (c *Content) restoreLockedEntries(prior Content) {
	for i := range prior.Experience {
		if !prior.Experience[i].LockedForReview {
			continue
		}
		if i < len(c.Experience) {
			c.Experience[i] = prior.Experience[i]
		} else {
			c.Experience = append(c.Experience, prior.Experience[i])
		}
	}
	for i := range prior.Education {
		if !prior.Education[i].LockedForReview {
			continue
		}
		if i < len(c.Education) {
			c.Education[i] = prior.Education[i]
		} else {
			c.Education = append(c.Education, prior.Education[i])
		}
	}
	for i := range prior.TrainingQualifications {
		if !prior.TrainingQualifications[i].LockedForReview {
			continue
		}
		if i < len(c.TrainingQualifications) {
			c.TrainingQualifications[i] = prior.TrainingQualifications[i]
		} else {
			c.TrainingQualifications = append(c.TrainingQualifications, prior.TrainingQualifications[i])
		}
	}
}

func (e ExperienceEntry) Validate() []string {
	var errs []string
	if strings.TrimSpace(e.Title) == "" {
		errs = append(errs, "job title is required")
	}
	if strings.TrimSpace(e.Company) == "" {
		errs = append(errs, "company name is required")
	}
	if strings.TrimSpace(e.StartDate) == "" {
		errs = append(errs, "start date is required")
	}
	if !e.Current && strings.TrimSpace(e.EndDate) == "" {
		errs = append(errs, "end date is required for non-current positions")
	}
	if e.StartDate != "" && !isValidDate(e.StartDate) {
		errs = append(errs, "invalid start date format")
	}
	if e.EndDate != "" && !isValidDate(e.EndDate) {
		errs = append(errs, "invalid end date format")
	}
	if e.FieldExperienceCounts != nil {
		errs = append(errs, e.FieldExperienceCounts.validate()...)
	}
	return errs
}

func (c FieldExperienceCounts) validate() []string {
	var errs []string
	check := func(name string, count *FieldExperienceCount) {
		if count == nil {
			return
		}
		if count.Total < 0 {
			errs = append(errs, name+" total must be a non-negative number")
		}
		if count.Last12M < 0 {
			errs = append(errs, name+" last 12 months must be a non-negative number")
		}
		if count.Last12M > count.Total {
			errs = append(errs, name+" last 12 months cannot exceed total")
		}
	}
	check("assessment", c.Assessment)
	check("sampling", c.Sampling)
	check("training", c.Training)
	return errs
}

func (e EducationEntry) Validate() []string {
	var errs []string
	if strings.TrimSpace(e.School) == "" {
		errs = append(errs, "school name is required")
	}
	if strings.TrimSpace(e.Degree) == "" {
		errs = append(errs, "degree is required")
	}
	if strings.TrimSpace(e.Field) == "" {
		errs = append(errs, "field of study is required")
	}
	if strings.TrimSpace(e.StartDate) == "" {
		errs = append(errs, "start date is required")
	}
	if strings.TrimSpace(e.EndDate) == "" {
		errs = append(errs, "end date is required")
	}
	if e.StartDate != "" && !isValidDate(e.StartDate) {
		errs = append(errs, "invalid start date format")
	}
	if e.EndDate != "" && !isValidDate(e.EndDate) {
		errs = append(errs, "invalid end date format")
	}
	return errs
}

// ValidateForSubmission checks the structural rules a CV must satisfy before
// it can leave draft. Returns the full list of problems so the caller can
// surface them all at once.
func (c Content) ValidateForSubmission() []string {
	var errs []string
	if len(c.Experience) == 0 {
		errs = append(errs, "at least one experience entry is required")
	}
	if len(c.Education) == 0 {
		errs = append(errs, "at least one education entry is required")
	}
	for i, entry := range c.Experience {
		for _, msg := range entry.Validate() {
			errs = append(errs, fmt.Sprintf("experience %d: %s", i+1, msg))
		}
	}
	for i, entry := range c.Education {
		for _, msg := range entry.Validate() {
			errs = append(errs, fmt.Sprintf("education %d: %s", i+1, msg))
		}
	}
	return errs
}

var dateLayouts = []string{"2006-01-02", "2006-01", time.RFC3339, "01/2006", "2006"}

func isValidDate(raw string) bool {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, raw); err == nil {
			return true
		}
	}
	return false
}
