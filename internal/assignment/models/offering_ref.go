package models

import (
	"encoding/json"

	id "experthub/pkg/domain"
)

// OfferingRef points an assignment at a service offering, or is explicitly
// unassigned for shell records created before the offering is chosen. The
// tagged form forces callers to handle the unassigned case instead of
// falling back to an arbitrary offering.
type OfferingRef struct {
	offeringID id.OfferingID
	assigned   bool
}

func NewOfferingRef(offeringID id.OfferingID) OfferingRef {
	return OfferingRef{offeringID: offeringID, assigned: !offeringID.IsNil()}
}

func UnassignedOffering() OfferingRef {
	return OfferingRef{}
}

func (r OfferingRef) IsAssigned() bool {
	return r.assigned
}

// ID returns the referenced offering id. Only meaningful when IsAssigned.
func (r OfferingRef) ID() id.OfferingID {
	return r.offeringID
}

func (r OfferingRef) MarshalJSON() ([]byte, error) {
	if !r.assigned {
		return []byte("null"), nil
	}
	return json.Marshal(r.offeringID)
}

func (r *OfferingRef) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = UnassignedOffering()
		return nil
	}
	var offeringID id.OfferingID
	if err := json.Unmarshal(data, &offeringID); err != nil {
		return err
	}
	*r = NewOfferingRef(offeringID)
	return nil
}
