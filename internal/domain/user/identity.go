package user

import "github.com/google/uuid"

// Identity addresses exactly one directory user. It is a closed set of variants:
// ByUPNOrObjectID, ByUserPrincipalName, ByObjectID and ByRecord.
type Identity interface {
	identity()
}

// ByUPNOrObjectID addresses a user by a value the directory accepts as either a
// user principal name or an object ID.
type ByUPNOrObjectID struct {
	Value string
}

// ByUserPrincipalName addresses a user by user principal name.
type ByUserPrincipalName struct {
	UPN string
}

// ByObjectID addresses a user by object ID.
type ByObjectID struct {
	ID uuid.UUID
}

// ByRecord addresses a user through a previously fetched record.
type ByRecord struct {
	Record *User
}

func (ByUPNOrObjectID) identity()     {}
func (ByUserPrincipalName) identity() {}
func (ByObjectID) identity()          {}
func (ByRecord) identity()            {}

// Resolve returns the key used to address the user in the directory.
// A record resolves to its user principal name, or to its object ID when the
// principal name is empty.
func Resolve(id Identity) string {
	switch v := id.(type) {
	case ByRecord:
		if v.Record == nil {
			return ""
		}
		if v.Record.UserPrincipalName != "" {
			return v.Record.UserPrincipalName
		}
		return v.Record.ID.String()
	case ByUserPrincipalName:
		return v.UPN
	case ByObjectID:
		return v.ID.String()
	case ByUPNOrObjectID:
		return v.Value
	default:
		return ""
	}
}

// ParseIdentity turns a free-form identity string into an Identity. GUIDs become
// ByObjectID, everything else ByUPNOrObjectID.
func ParseIdentity(s string) Identity {
	if id, err := uuid.Parse(s); err == nil {
		return ByObjectID{ID: id}
	}
	return ByUPNOrObjectID{Value: s}
}
