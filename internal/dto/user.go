package dto

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type UpdateUserRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

type UserResponse struct {
	ID        string `json:"_id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	CreatedAt int64  `json:"created_at"`
}

type LoginResponse struct {
	Message     string       `json:"message"`
	User        UserResponse `json:"user"`
	AccessToken string       `json:"access_token"`
	ExpiresIn   int64        `json:"expires_in"`
}

type UserStatsResponse struct {
	TotalUsers   int64 `json:"totalUsers"`
	AdminCount   int64 `json:"adminCount"`
	EndUserCount int64 `json:"endUserCount"`
}
