package user

import (
	"strings"
)

// redactedPassword replaces the plaintext password in log output.
const redactedPassword = "[REDACTED]"

// SecretSource is a protected secret that can be decoded into plaintext once.
type SecretSource interface {
	// Len returns the secret length without decoding it.
	Len() int

	// Reveal decodes the secret into plaintext.
	Reveal() (string, error)
}

// PasswordChange asks for a password rotation.
type PasswordChange struct {
	Secret      SecretSource
	ForceChange bool
}

// PasswordProfile is the password section of an update.
type PasswordProfile struct {
	Password                     string `json:"password"`
	ForceChangePasswordNextLogin bool   `json:"forceChangePasswordNextLogin"`
}

// UpdatePayload is a partial user update. AccountEnabled and DisplayName are part of
// every update; a nil value there means "unset". The remaining pointers are nil
// when the attribute was not supplied and must not be sent.
type UpdatePayload struct {
	AccountEnabled  *bool
	DisplayName     *string
	ImmutableID     *string
	UsageLocation   *string
	GivenName       *string
	Surname         *string
	UserType        *string
	MailNickname    *string
	PasswordProfile *PasswordProfile
}

// BuildPayload assembles an update carrying only the supplied attributes.
// The force-change flag is dropped when no secret is given. The secret is decoded
// at most once; a decoding error is returned unchanged.
func BuildPayload(
	enabled *bool,
	displayName *string,
	attrs Attributes,
	password *PasswordChange,
) (*UpdatePayload, error) {
	payload := &UpdatePayload{
		AccountEnabled: enabled,
		DisplayName:    displayName,
		ImmutableID:    attrs.ImmutableID.Ptr(),
		UsageLocation:  attrs.UsageLocation.Ptr(),
		GivenName:      attrs.GivenName.Ptr(),
		Surname:        attrs.Surname.Ptr(),
		UserType:       attrs.UserType.Ptr(),
		MailNickname:   attrs.MailNickname.Ptr(),
	}

	if password == nil || password.Secret == nil || password.Secret.Len() == 0 {
		return payload, nil
	}

	plaintext, err := password.Secret.Reveal()
	if err != nil {
		return nil, err
	}

	payload.PasswordProfile = &PasswordProfile{
		Password:                     plaintext,
		ForceChangePasswordNextLogin: password.ForceChange,
	}

	return payload, nil
}

// HasPassword reports whether the update rotates the password.
func (p *UpdatePayload) HasPassword() bool {
	return p != nil && p.PasswordProfile != nil
}

// Redacted returns a copy safe to log.
func (p *UpdatePayload) Redacted() UpdatePayload {
	cp := *p
	if p.PasswordProfile != nil {
		cp.PasswordProfile = &PasswordProfile{
			Password:                     redactedPassword,
			ForceChangePasswordNextLogin: p.PasswordProfile.ForceChangePasswordNextLogin,
		}
	}
	return cp
}

// Fields returns the names of the attributes the payload carries, always
// including accountEnabled and displayName.
func (p *UpdatePayload) Fields() []string {
	fields := []string{AttrAccountEnabled, AttrDisplayName}
	optional := []struct {
		name  string
		value *string
	}{
		{AttrImmutableID, p.ImmutableID},
		{AttrUsageLocation, p.UsageLocation},
		{AttrGivenName, p.GivenName},
		{AttrSurname, p.Surname},
		{AttrUserType, p.UserType},
		{AttrMailNickname, p.MailNickname},
	}
	for _, f := range optional {
		if f.value != nil {
			fields = append(fields, f.name)
		}
	}
	if p.PasswordProfile != nil {
		fields = append(fields, AttrPassword)
	}
	return fields
}

// String implements fmt.Stringer without exposing the password.
func (p *UpdatePayload) String() string {
	return "UpdatePayload{" + strings.Join(p.Fields(), ", ") + "}"
}

// Wipe drops the plaintext password from the payload.
func (p *UpdatePayload) Wipe() {
	if p == nil || p.PasswordProfile == nil {
		return
	}
	p.PasswordProfile.Password = ""
	p.PasswordProfile = nil
}
