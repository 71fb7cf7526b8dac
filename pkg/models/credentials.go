package models

// Credentials is the authentication material issued by a successful login.
// The JSON field names match the on-disk session cache document.
type Credentials struct {
	UserID       string `json:"user_id"`
	ServiceToken string `json:"service_token"`
	SSecurity    string `json:"ssecurity"`
	CUserID      string `json:"cuser_id"`
	PassToken    string `json:"pass_token"`
	Timestamp    int64  `json:"timestamp"` // epoch seconds, set at save time
	Username     string `json:"username"`
}

// Complete reports whether the bundle carries enough material to sign requests.
func (c Credentials) Complete() bool {
	return c.UserID != "" && c.ServiceToken != "" && c.SSecurity != ""
}
