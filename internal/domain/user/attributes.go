package user

// Attribute names as used in logs and audit entries.
const (
	AttrImmutableID    = "immutableId"
	AttrUsageLocation  = "usageLocation"
	AttrGivenName      = "givenName"
	AttrSurname        = "surname"
	AttrUserType       = "userType"
	AttrMailNickname   = "mailNickname"
	AttrDisplayName    = "displayName"
	AttrAccountEnabled = "accountEnabled"
	AttrPassword       = "passwordProfile"
)

// Attributes is the sparse set of optional user attributes an update may change.
type Attributes struct {
	ImmutableID   Optional[string]
	UsageLocation Optional[string]
	GivenName     Optional[string]
	Surname       Optional[string]
	UserType      Optional[string]
	MailNickname  Optional[string]
}

// SuppliedNames returns the names of supplied attributes in a fixed order.
func (a Attributes) SuppliedNames() []string {
	fields := []struct {
		name string
		set  bool
	}{
		{AttrImmutableID, a.ImmutableID.IsSet()},
		{AttrUsageLocation, a.UsageLocation.IsSet()},
		{AttrGivenName, a.GivenName.IsSet()},
		{AttrSurname, a.Surname.IsSet()},
		{AttrUserType, a.UserType.IsSet()},
		{AttrMailNickname, a.MailNickname.IsSet()},
	}

	names := make([]string, 0, len(fields))
	for _, f := range fields {
		if f.set {
			names = append(names, f.name)
		}
	}
	return names
}
