// Package domain provides typed identifiers shared across modules.
//
// IDs are distinct Go types over uuid.UUID so a CVID can never be passed
// where an AssignmentID is expected. Parse functions enforce the trust
// boundary invariant: IDs must be valid, non-empty, non-nil UUIDs.
package domain

import (
	"github.com/google/uuid"

	dErrors "experthub/pkg/domain-errors"
)

// Typed identifiers for every aggregate the engine touches.
type (
	// UserID identifies a natural person acting as an expert.
	UserID uuid.UUID

	// OrgID identifies a tenant organization.
	OrgID uuid.UUID

	// OfferingID identifies one immutable service version (e.g. "Assessment V2").
	OfferingID uuid.UUID

	// ParentID identifies the grouping a service offering belongs to.
	ParentID uuid.UUID

	// CVID identifies one versioned CV snapshot.
	CVID uuid.UUID

	// AssignmentID identifies one (CV, offering) service assignment.
	AssignmentID uuid.UUID

	// RequirementID identifies one immutable checklist requirement.
	RequirementID uuid.UUID

	// QualificationID identifies a global user x offering qualification.
	QualificationID uuid.UUID

	// ApprovalID identifies an organization service approval record.
	ApprovalID uuid.UUID
)

func (id UserID) String() string          { return uuid.UUID(id).String() }
func (id OrgID) String() string           { return uuid.UUID(id).String() }
func (id OfferingID) String() string      { return uuid.UUID(id).String() }
func (id ParentID) String() string        { return uuid.UUID(id).String() }
func (id CVID) String() string            { return uuid.UUID(id).String() }
func (id AssignmentID) String() string    { return uuid.UUID(id).String() }
func (id RequirementID) String() string   { return uuid.UUID(id).String() }
func (id QualificationID) String() string { return uuid.UUID(id).String() }
func (id ApprovalID) String() string      { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool          { return uuid.UUID(id) == uuid.Nil }
func (id OrgID) IsNil() bool           { return uuid.UUID(id) == uuid.Nil }
func (id OfferingID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id ParentID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id CVID) IsNil() bool            { return uuid.UUID(id) == uuid.Nil }
func (id AssignmentID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id RequirementID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id QualificationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ApprovalID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }

// Defined types do not inherit uuid.UUID's encoding methods, so each ID
// carries its own text marshalling for JSON payloads.
func (id UserID) MarshalText() ([]byte, error)          { return []byte(id.String()), nil }
func (id OrgID) MarshalText() ([]byte, error)           { return []byte(id.String()), nil }
func (id OfferingID) MarshalText() ([]byte, error)      { return []byte(id.String()), nil }
func (id ParentID) MarshalText() ([]byte, error)        { return []byte(id.String()), nil }
func (id CVID) MarshalText() ([]byte, error)            { return []byte(id.String()), nil }
func (id AssignmentID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }
func (id RequirementID) MarshalText() ([]byte, error)   { return []byte(id.String()), nil }
func (id QualificationID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id ApprovalID) MarshalText() ([]byte, error)      { return []byte(id.String()), nil }

func (id *UserID) UnmarshalText(b []byte) error {
	parsed, err := ParseUserID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *OrgID) UnmarshalText(b []byte) error {
	parsed, err := ParseOrgID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *OfferingID) UnmarshalText(b []byte) error {
	parsed, err := ParseOfferingID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *ParentID) UnmarshalText(b []byte) error {
	parsed, err := ParseParentID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *CVID) UnmarshalText(b []byte) error {
	parsed, err := ParseCVID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *AssignmentID) UnmarshalText(b []byte) error {
	parsed, err := ParseAssignmentID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *RequirementID) UnmarshalText(b []byte) error {
	parsed, err := ParseRequirementID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *QualificationID) UnmarshalText(b []byte) error {
	parsed, err := ParseQualificationID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *ApprovalID) UnmarshalText(b []byte) error {
	parsed, err := ParseApprovalID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// parseUUID rejects empty, malformed and nil UUIDs at trust boundaries.
func parseUUID(raw, kind string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" id is required")
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+kind+" id")
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" id must not be nil")
	}
	return parsed, nil
}

func ParseUserID(raw string) (UserID, error) {
	u, err := parseUUID(raw, "user")
	return UserID(u), err
}

func ParseOrgID(raw string) (OrgID, error) {
	u, err := parseUUID(raw, "organization")
	return OrgID(u), err
}

func ParseOfferingID(raw string) (OfferingID, error) {
	u, err := parseUUID(raw, "service offering")
	return OfferingID(u), err
}

func ParseParentID(raw string) (ParentID, error) {
	u, err := parseUUID(raw, "service parent")
	return ParentID(u), err
}

func ParseCVID(raw string) (CVID, error) {
	u, err := parseUUID(raw, "cv")
	return CVID(u), err
}

func ParseAssignmentID(raw string) (AssignmentID, error) {
	u, err := parseUUID(raw, "assignment")
	return AssignmentID(u), err
}

func ParseRequirementID(raw string) (RequirementID, error) {
	u, err := parseUUID(raw, "requirement")
	return RequirementID(u), err
}

func ParseQualificationID(raw string) (QualificationID, error) {
	u, err := parseUUID(raw, "qualification")
	return QualificationID(u), err
}

func ParseApprovalID(raw string) (ApprovalID, error) {
	u, err := parseUUID(raw, "approval")
	return ApprovalID(u), err
}
