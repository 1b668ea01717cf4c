package models

import (
	id "experthub/pkg/domain"
)

// ListFilter narrows assignment listings. Zero fields match everything.
type ListFilter struct {
	CVID         *id.CVID
	UserID       *id.UserID
	OrgID        *id.OrgID
	OfferingID   *id.OfferingID
	ReviewStatus *ReviewStatus
}

// Matches reports whether an assignment satisfies every set field.
func (f ListFilter) Matches(a *Assignment) bool {
	if f.CVID != nil && a.CVID != *f.CVID {
		return false
	}
	if f.UserID != nil && a.UserID != *f.UserID {
		return false
	}
	if f.OrgID != nil && a.OrgID != *f.OrgID {
		return false
	}
	if f.OfferingID != nil && (!a.Offering.IsAssigned() || a.Offering.ID() != *f.OfferingID) {
		return false
	}
	if f.ReviewStatus != nil && a.ReviewStatus != *f.ReviewStatus {
		return false
	}
	return true
}
