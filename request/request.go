package request

type UserRegisterRequest struct {
	Email        string `json:"email" binding:"required,email"`
	Password     string `json:"password" binding:"required,min=8"`
	BusinessName string `json:"business_name"`
}

type UserLoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type CreateBotRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// AttachDocumentsRequest 将已有文档关联到机器人
type AttachDocumentsRequest struct {
	DocumentIDs []string `json:"document_ids" binding:"required,min=1"`
}

type ChatRequest struct {
	Message string `json:"message" binding:"required"`
}
