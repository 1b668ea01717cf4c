package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "experthub/pkg/domain-errors"
)

// TestParseUUID_Invariants validates the parsing invariant:
// "IDs must be valid, non-empty, non-nil UUIDs"
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseUserID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseCVID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseAssignmentID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		valid := uuid.New()
		id, err := ParseOfferingID(valid.String())
		require.NoError(t, err)
		assert.Equal(t, OfferingID(valid), id)
	})
}

// TestTypeDistinction documents the compile-time invariant: typed IDs
// prevent cross-type assignment. If the types become aliases these
// comparisons stop being meaningful.
func TestTypeDistinction(t *testing.T) {
	userID := UserID(uuid.New())
	cvID := CVID(uuid.New())

	// var _ UserID = cvID  // compile error, by construction

	assert.NotEqual(t, uuid.UUID(userID), uuid.UUID(cvID))
}

// TestParseID_RejectsAttackVectors validates trust-boundary parsing rules.
func TestParseID_RejectsAttackVectors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"SQL injection attempt", "'; DROP TABLE expert_cvs;--", true},
		{"Path traversal", "../../../etc/passwd", true},
		{"Null byte injection", "550e8400\x00-e29b-41d4-a716-446655440000", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Empty string", "", true},
		{"Nil UUID", uuid.Nil.String(), true},
		{"Whitespace only", "   ", true},
		{"Uppercase valid UUID", "550E8400-E29B-41D4-A716-446655440000", false},
		{"Valid UUID lowercase", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseQualificationID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

// TestAllIDTypes_ConsistentBehavior ensures every ID type parses identically.
func TestAllIDTypes_ConsistentBehavior(t *testing.T) {
	validUUID := uuid.New().String()

	t.Run("all accept valid UUID", func(t *testing.T) {
		_, errUser := ParseUserID(validUUID)
		_, errOrg := ParseOrgID(validUUID)
		_, errOffering := ParseOfferingID(validUUID)
		_, errCV := ParseCVID(validUUID)
		_, errAssignment := ParseAssignmentID(validUUID)
		_, errRequirement := ParseRequirementID(validUUID)
		_, errQualification := ParseQualificationID(validUUID)
		_, errApproval := ParseApprovalID(validUUID)

		for _, err := range []error{errUser, errOrg, errOffering, errCV, errAssignment, errRequirement, errQualification, errApproval} {
			require.NoError(t, err)
		}
	})

	t.Run("all reject nil UUID", func(t *testing.T) {
		nilStr := uuid.Nil.String()
		_, errUser := ParseUserID(nilStr)
		_, errCV := ParseCVID(nilStr)
		_, errRequirement := ParseRequirementID(nilStr)

		for _, err := range []error{errUser, errCV, errRequirement} {
			require.Error(t, err)
		}
	})
}
