package user

import (
	domainuser "github.com/lllypuk/aduser/internal/domain/user"
)

// UpdateUserCommand - update of an existing directory user
type UpdateUserCommand struct {
	Identity domainuser.Identity

	AccountEnabled *bool   // sent as-is, nil means unset
	DisplayName    *string // sent as-is, nil means unset
	Attributes     domainuser.Attributes

	Password            domainuser.SecretSource // optional
	ForceChangePassword bool                    // ignored without Password

	// WhatIf describes the update without confirming or submitting it.
	WhatIf bool

	// Actor and Source label the audit entry (e.g. token subject, "cli").
	Actor  string
	Source string
}

func (c UpdateUserCommand) passwordChange() *domainuser.PasswordChange {
	if c.Password == nil {
		return nil
	}
	return &domainuser.PasswordChange{
		Secret:      c.Password,
		ForceChange: c.ForceChangePassword,
	}
}
