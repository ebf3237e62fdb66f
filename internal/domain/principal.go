package domain

// Principal is the identity the view is scoped to.
type Principal struct {
	ID            string `json:"principal_id"`
	Authenticated bool   `json:"authenticated"`
}

// Anonymous is the unauthenticated principal.
func Anonymous() Principal {
	return Principal{}
}

// Authenticated returns an authenticated principal for id.
// An empty id yields Anonymous.
func Authenticated(id string) Principal {
	if id == "" {
		return Anonymous()
	}
	return Principal{ID: id, Authenticated: true}
}

// Known reports whether the principal can be used to filter records.
func (p Principal) Known() bool {
	return p.Authenticated && p.ID != ""
}
