package flow

// State is the page-level position in the login and download flow
type State string

const (
	StateLoggedOut       State = "loggedOut"
	StateTokenPending    State = "tokenPending"
	StateAuthenticated   State = "authenticated"
	StateDownloadPending State = "downloadPending"
)

func (s State) String() string {
	return string(s)
}

// Authenticated reports whether the state carries a usable identity token
func (s State) Authenticated() bool {
	return s == StateAuthenticated || s == StateDownloadPending
}

// View is what the page renders for a session
type View struct {
	State       State
	DisplayName string
}

func loggedOut() View {
	return View{State: StateLoggedOut}
}
