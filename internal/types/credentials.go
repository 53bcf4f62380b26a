package types

// Credentials are the HTTP Basic credentials used for every remote call
type Credentials struct {
	Username string `json:"username"`
	Token    string `json:"token"`
}

// Complete reports whether both parts are present
func (c Credentials) Complete() bool {
	return c.Username != "" && c.Token != ""
}

// CredentialSource names where a run's credentials came from
type CredentialSource string

const (
	CredentialSourceFlags   CredentialSource = "flags"
	CredentialSourceEnv     CredentialSource = "environment"
	CredentialSourceStored  CredentialSource = "stored"
	CredentialSourceMissing CredentialSource = "none"
)
