package dto

// HasUsernameRequest asks whether a username is still available.
type HasUsernameRequest struct {
	Username string `json:"username"`
}

// HasEmailRequest asks whether an email is still available.
type HasEmailRequest struct {
	Email string `json:"email"`
}

// SendStatusResponse reports the verification email request outcome.
type SendStatusResponse struct {
	Status string `json:"status"`
}
