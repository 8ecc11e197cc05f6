package auth

import (
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// RoleAdmin grants access to the approval workflow.
	RoleAdmin = "admin"
	// RoleNone is reported when the token carries no recognised role.
	RoleNone = "No Role"

	defaultDisplayName = "Unknown User"
	defaultEmail       = "No Email"
	subjectDelimiter   = ":"
)

// Claims is the identity derived from a verified or decoded bearer token.
type Claims struct {
	Subject string
	Name    string
	Email   string
	Role    string
}

// IsAdmin reports whether the identity carries the admin role.
func (c Claims) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// HasEmail reports whether the token carried a usable email address.
func (c Claims) HasEmail() bool {
	return c.Email != "" && c.Email != defaultEmail
}

// KeycloakClaims mirrors the access token payload issued by Keycloak.
type KeycloakClaims struct {
	PreferredUsername string                    `json:"preferred_username,omitempty"`
	Email             string                    `json:"email,omitempty"`
	AuthorizedParty   string                    `json:"azp,omitempty"`
	ResourceAccess    map[string]ResourceAccess `json:"resource_access,omitempty"`
	jwt.RegisteredClaims
}

// ResourceAccess lists the client roles granted to a subject.
type ResourceAccess struct {
	Roles []string `json:"roles"`
}

// Identity reduces the raw token payload to the claims the application uses.
// Roles are read from the resource access entry of clientID.
func (k KeycloakClaims) Identity(clientID string) Claims {
	name := strings.TrimSpace(k.PreferredUsername)
	if name == "" {
		name = defaultDisplayName
	}
	email := strings.TrimSpace(k.Email)
	if email == "" {
		email = defaultEmail
	}
	role := RoleNone
	if access, ok := k.ResourceAccess[clientID]; ok && slices.Contains(access.Roles, RoleAdmin) {
		role = RoleAdmin
	}
	return Claims{
		Subject: SubjectSuffix(k.Subject),
		Name:    name,
		Email:   email,
		Role:    role,
	}
}

// SubjectSuffix keeps only the part of a subject after its last delimiter.
// Federated Keycloak subjects look like "f:<provider>:<id>".
func SubjectSuffix(subject string) string {
	trimmed := strings.TrimSpace(subject)
	if index := strings.LastIndex(trimmed, subjectDelimiter); index >= 0 {
		return trimmed[index+len(subjectDelimiter):]
	}
	return trimmed
}

// DecodeUnverified parses a token payload without checking its signature.
// Clients use it to read their own identity and expiry; servers must verify.
func DecodeUnverified(rawToken string) (KeycloakClaims, error) {
	claims := KeycloakClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(strings.TrimSpace(rawToken), &claims); err != nil {
		return KeycloakClaims{}, err
	}
	return claims, nil
}
