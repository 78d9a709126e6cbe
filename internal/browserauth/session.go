package browserauth

// LoginState is carried through the identity provider round-trip inside the
// signed state parameter. The nonce is mirrored in the state cookie.
type LoginState struct {
	Nonce      string `json:"nonce"`
	ReturnPath string `json:"return_path"`
}

// SessionView is the public projection of a browser session returned by the
// session API
type SessionView struct {
	State         string `json:"state"`
	Name          string `json:"name,omitempty"`
	Authenticated bool   `json:"authenticated"`
}
