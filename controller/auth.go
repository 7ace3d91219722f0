package controller

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"bot-rag-backend/middleware"
	"bot-rag-backend/model"
	"bot-rag-backend/request"
	"bot-rag-backend/response"
	"bot-rag-backend/service/auth"

	"github.com/gin-gonic/gin"
)

type AuthService interface {
	UserRegister(ctx context.Context, req request.UserRegisterRequest) (*model.User, error)
	UserLogin(ctx context.Context, req request.UserLoginRequest) (*model.User, error)
	VerifyUser(ctx context.Context, userID string) (*model.User, error)
}

type AuthHandler struct {
	auth AuthService
}

func NewAuthHandler(auth AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

func (h *AuthHandler) UserRegister(c *gin.Context) {
	var req request.UserRegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.Error(ErrParseRequest.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, response.Response{
			Msg: ErrParseRequest.Error(),
		})
		return
	}

	user, err := h.auth.UserRegister(c.Request.Context(), req)
	if err != nil {
		slog.Error(ErrUserRegister.Error(), "err", err)
		if errors.Is(err, auth.ErrEmailTaken) {
			c.AbortWithStatusJSON(http.StatusConflict, response.Response{
				Msg: auth.ErrEmailTaken.Error(),
			})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
			Msg: ErrUserRegister.Error(),
		})
		return
	}

	token, err := middleware.GenerateToken(user.ID, user.Email)
	if err != nil {
		slog.Error(ErrGenerateToken.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
			Msg: ErrGenerateToken.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, response.Response{
		Data: userAuthResponse(user, token),
	})
}

func (h *AuthHandler) UserLogin(c *gin.Context) {
	var req request.UserLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.Error(ErrParseRequest.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, response.Response{
			Msg: ErrParseRequest.Error(),
		})
		return
	}

	user, err := h.auth.UserLogin(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			slog.Info(ErrUserLogin.Error(), "email", req.Email)
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Response{
				Msg: auth.ErrInvalidCredentials.Error(),
			})
			return
		}
		slog.Error(ErrUserLogin.Error(),
			"email", req.Email,
			"err", err,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
			Msg: ErrUserLogin.Error(),
		})
		return
	}

	token, err := middleware.GenerateToken(user.ID, user.Email)
	if err != nil {
		slog.Error(ErrGenerateToken.Error(),
			"user_id", user.ID,
			"err", err,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
			Msg: ErrGenerateToken.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, response.Response{
		Data: userAuthResponse(user, token),
	})
}

// VerifyUser 返回令牌对应的用户，用户已不存在时返回 401
func (h *AuthHandler) VerifyUser(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)

	user, err := h.auth.VerifyUser(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			slog.Info(ErrVerifyUser.Error(), "user_id", userID)
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Response{
				Msg: auth.ErrUserNotFound.Error(),
			})
			return
		}
		slog.Error(ErrVerifyUser.Error(),
			"user_id", userID,
			"err", err,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
			Msg: ErrVerifyUser.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, response.Response{
		Data: response.VerifyUserResponse{
			User: response.UserResponse{
				ID:           user.ID,
				Email:        user.Email,
				BusinessName: user.BusinessName,
			},
		},
	})
}

func userAuthResponse(user *model.User, token string) response.UserAuthResponse {
	return response.UserAuthResponse{
		ID:           user.ID,
		Email:        user.Email,
		BusinessName: user.BusinessName,
		Token:        token,
	}
}
