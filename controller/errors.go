package controller

import "errors"

var (
	ErrParseRequest = errors.New("failed to parse request")

	ErrUserRegister  = errors.New("failed to register user")
	ErrGenerateToken = errors.New("failed to generate token")
	ErrUserLogin     = errors.New("failed to login")
	ErrVerifyUser    = errors.New("failed to verify user")

	ErrGetBots         = errors.New("failed to get bots")
	ErrCreateBot       = errors.New("failed to create bot")
	ErrDeleteBot       = errors.New("failed to delete bot")
	ErrInitializeBot   = errors.New("failed to initialize bot session")
	ErrDisconnectBot   = errors.New("failed to disconnect bot session")
	ErrGetBotStatus    = errors.New("failed to get bot status")
	ErrConnectBot      = errors.New("failed to connect bot session")
	ErrBotChat         = errors.New("failed to answer message")
	ErrReadUploadFile  = errors.New("failed to read upload file")
	ErrGetDocuments    = errors.New("failed to get bot documents")
	ErrAttachDocuments = errors.New("failed to attach documents")
	ErrUploadDocument  = errors.New("failed to upload document")
	ErrDeleteDocument  = errors.New("failed to delete document")
	ErrGetPreSignedURL = errors.New("failed to get presigned url")
)
