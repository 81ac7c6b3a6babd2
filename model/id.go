package model

import (
	"fmt"
	"strings"
)

// ID is an agency-qualified identifier. The string form joins agency
// and id with an underscore.
type ID struct {
	Agency string
	ID     string
}

func NewID(agency, id string) ID {
	return ID{Agency: agency, ID: id}
}

func (id ID) String() string {
	if id.Agency == "" {
		return id.ID
	}
	return id.Agency + "_" + id.ID
}

func (id ID) IsZero() bool {
	return id.Agency == "" && id.ID == ""
}

// Splits on the first underscore. Ids without an underscore are
// rejected, since the agency part can't be recovered.
func ParseID(s string) (ID, error) {
	agency, id, found := strings.Cut(s, "_")
	if !found || agency == "" || id == "" {
		return ID{}, fmt.Errorf("invalid id '%s'", s)
	}
	return ID{Agency: agency, ID: id}, nil
}

func CompareIDs(a, b ID) int {
	if c := strings.Compare(a.Agency, b.Agency); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}
