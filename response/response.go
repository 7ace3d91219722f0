package response

// Response 统一响应结构，失败时 Msg 为错误描述
type Response struct {
	Msg  string `json:"msg,omitempty"`
	Data any    `json:"data,omitempty"`
}

type UserAuthResponse struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	BusinessName string `json:"business_name"`
	Token        string `json:"token"`
}

type UserResponse struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	BusinessName string `json:"business_name"`
}

type VerifyUserResponse struct {
	User UserResponse `json:"user"`
}
