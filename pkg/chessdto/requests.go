package chessdto

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
}

type MoveRequest struct {
	Notation string `json:"notation"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
