// Package user holds the directory user model and the logic that turns an
// identity plus a sparse set of changes into an update request.
package user

import "github.com/google/uuid"

// User is a directory user record as returned by the directory service.
type User struct {
	ID                uuid.UUID `json:"id" yaml:"id"`
	UserPrincipalName string    `json:"userPrincipalName,omitempty" yaml:"userPrincipalName,omitempty"`
	DisplayName       string    `json:"displayName,omitempty" yaml:"displayName,omitempty"`
	GivenName         string    `json:"givenName,omitempty" yaml:"givenName,omitempty"`
	Surname           string    `json:"surname,omitempty" yaml:"surname,omitempty"`
	Mail              string    `json:"mail,omitempty" yaml:"mail,omitempty"`
	MailNickname      string    `json:"mailNickname,omitempty" yaml:"mailNickname,omitempty"`
	UsageLocation     string    `json:"usageLocation,omitempty" yaml:"usageLocation,omitempty"`
	UserType          string    `json:"userType,omitempty" yaml:"userType,omitempty"`
	ImmutableID       string    `json:"immutableId,omitempty" yaml:"immutableId,omitempty"`
	AccountEnabled    *bool     `json:"accountEnabled,omitempty" yaml:"accountEnabled,omitempty"`
	Type              string    `json:"type,omitempty" yaml:"type,omitempty"`
}
