package cookies

import "time"

// FlowState carries an in-flight authorization code flow between the
// redirect to the provider and its callback.
type FlowState struct {
	ProviderName string    `json:"providerName"`
	Mode         string    `json:"mode"`
	ReturnTo     string    `json:"returnTo"`
	State        string    `json:"state"`
	Nonce        string    `json:"nonce"`
	CodeVerifier string    `json:"codeVerifier"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (f FlowState) IssuedTime() time.Time { return f.CreatedAt }
func (f FlowState) ExpiryTime() time.Time { return time.Time{} }

// SessionState wraps the access token a provider issued to the browser
type SessionState struct {
	AccessToken  string    `json:"accessToken"`
	ProviderName string    `json:"providerName"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

func (s SessionState) IssuedTime() time.Time { return time.Time{} }
func (s SessionState) ExpiryTime() time.Time { return s.ExpiresAt }

// AdminSession is the local administrator session
type AdminSession struct {
	Username           string    `json:"username"`
	MustChangePassword bool      `json:"mustChangePassword"`
	IssuedAt           time.Time `json:"issuedAt"`
	ExpiresAt          time.Time `json:"expiresAt"`
}

func (a AdminSession) IssuedTime() time.Time { return a.IssuedAt }
func (a AdminSession) ExpiryTime() time.Time { return a.ExpiresAt }
