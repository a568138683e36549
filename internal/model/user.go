package model

// User is an account referenced by source issues. Name is the login name and
// identifies the user on both instances.
type User struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Active      bool   `json:"active"`
}
