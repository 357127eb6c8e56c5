package model

// SessionCookie is one cookie of a user's remote network session.
type SessionCookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain,omitempty"`
	Path   string `json:"path,omitempty"`
}

// RemoteSession bundles everything the snapshot fetcher needs to act as the
// user against the remote network: the cookie jar contents and the user's
// profile URL.
type RemoteSession struct {
	UserID string `json:"user_id"`
	// RemoteUserID is the account's numeric id on the remote network, used
	// to address friendship endpoints.
	RemoteUserID string          `json:"remote_user_id"`
	Cookies      []SessionCookie `json:"cookies"`
	ProfileURL   string          `json:"profile_url"`
}
