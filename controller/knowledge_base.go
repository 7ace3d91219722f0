package controller

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"

	"bot-rag-backend/middleware"
	"bot-rag-backend/model"
	"bot-rag-backend/request"
	"bot-rag-backend/response"
	knowledgebase "bot-rag-backend/service/knowledge-base"
	"bot-rag-backend/service/knowledge-base/etl"

	"github.com/gin-gonic/gin"
)

// multipart 表单除文件外的额外开销
const multipartOverhead = 1 << 20

type DocumentService interface {
	IndexDocument(ctx context.Context, userID, botID string, upload knowledgebase.Upload) (string, error)
	RemoveDocument(ctx context.Context, userID, botID, documentID string) error
	AttachDocuments(ctx context.Context, userID, botID string, documentIDs []string) error
	ListBotDocuments(ctx context.Context, userID, botID string) ([]model.Document, error)
	DownloadURL(ctx context.Context, userID, documentID string) (string, error)
}

type DocumentHandler struct {
	documents    DocumentService
	maxSizeBytes int64
}

func NewDocumentHandler(documents DocumentService, maxSizeBytes int64) *DocumentHandler {
	return &DocumentHandler{documents: documents, maxSizeBytes: maxSizeBytes}
}

func (h *DocumentHandler) GetBotDocuments(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)
	botID := c.Param("id")
	documents, err := h.documents.ListBotDocuments(c.Request.Context(), userID, botID)
	if err != nil {
		abortDocumentError(c, ErrGetDocuments, err)
		return
	}

	resp := response.GetBotDocumentsResponse{Documents: make([]response.DocumentResponse, 0, len(documents))}
	for _, d := range documents {
		resp.Documents = append(resp.Documents, response.DocumentResponse{
			ID:               d.ID,
			FileName:         d.FileName,
			FileType:         d.FileType,
			FileURL:          d.FileURL,
			FileSize:         d.FileSize,
			UploadDate:       d.UploadDate,
			ProcessingStatus: string(d.ProcessingStatus),
		})
	}

	c.JSON(http.StatusOK, response.Response{
		Data: resp,
	})
}

// AttachDocuments 关联用户已上传的文档
func (h *DocumentHandler) AttachDocuments(c *gin.Context) {
	var req request.AttachDocumentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.Error(ErrParseRequest.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, response.Response{
			Msg: ErrParseRequest.Error(),
		})
		return
	}

	userID := c.GetString(middleware.ContextUserID)
	botID := c.Param("id")
	if err := h.documents.AttachDocuments(c.Request.Context(), userID, botID, req.DocumentIDs); err != nil {
		abortDocumentError(c, ErrAttachDocuments, err)
		return
	}

	c.JSON(http.StatusCreated, response.Response{})
}

// UploadDocument 接收 multipart 文件，同步完成索引后返回文档 ID
func (h *DocumentHandler) UploadDocument(c *gin.Context) {
	if h.maxSizeBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxSizeBytes+multipartOverhead)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, response.Response{
				Msg: knowledgebase.ErrPayloadTooLarge.Error(),
			})
			return
		}
		slog.Error(ErrParseRequest.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, response.Response{
			Msg: ErrParseRequest.Error(),
		})
		return
	}
	if h.maxSizeBytes > 0 && fileHeader.Size > h.maxSizeBytes {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, response.Response{
			Msg: knowledgebase.ErrPayloadTooLarge.Error(),
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		slog.Error(ErrReadUploadFile.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, response.Response{
			Msg: ErrReadUploadFile.Error(),
		})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		slog.Error(ErrReadUploadFile.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, response.Response{
			Msg: ErrReadUploadFile.Error(),
		})
		return
	}

	userID := c.GetString(middleware.ContextUserID)
	botID := c.Param("id")
	documentID, err := h.documents.IndexDocument(c.Request.Context(), userID, botID, knowledgebase.Upload{
		Data:      data,
		FileName:  filepath.Base(fileHeader.Filename),
		MediaType: etl.DetectMediaType(fileHeader.Filename, fileHeader.Header.Get("Content-Type")),
	})
	if err != nil {
		abortDocumentError(c, ErrUploadDocument, err)
		return
	}

	c.JSON(http.StatusCreated, response.Response{
		Data: response.UploadDocumentResponse{DocumentID: documentID},
	})
}

func (h *DocumentHandler) DeleteDocument(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)
	botID := c.Param("id")
	documentID := c.Param("documentId")
	if err := h.documents.RemoveDocument(c.Request.Context(), userID, botID, documentID); err != nil {
		abortDocumentError(c, ErrDeleteDocument, err)
		return
	}

	c.JSON(http.StatusOK, response.Response{})
}

func (h *DocumentHandler) GetPresignedURL(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)
	documentID := c.Param("documentId")

	url, err := h.documents.DownloadURL(c.Request.Context(), userID, documentID)
	if err != nil {
		abortDocumentError(c, ErrGetPreSignedURL, err)
		return
	}

	c.JSON(http.StatusOK, response.Response{
		Data: response.GetPreSignedURLResponse{
			URL: url,
		},
	})
}

// abortDocumentError 领域错误返回具体原因，基础设施错误只返回接口级错误描述
func abortDocumentError(c *gin.Context, sentinel error, err error) {
	status := http.StatusInternalServerError
	msg := sentinel.Error()

	switch {
	case errors.Is(err, knowledgebase.ErrEmptyPayload),
		errors.Is(err, knowledgebase.ErrNoDocuments),
		errors.Is(err, knowledgebase.ErrExtractionFailed):
		status = http.StatusBadRequest
		msg = domainMessage(err)
	case errors.Is(err, knowledgebase.ErrPayloadTooLarge):
		status = http.StatusRequestEntityTooLarge
		msg = knowledgebase.ErrPayloadTooLarge.Error()
	case errors.Is(err, knowledgebase.ErrUnsupportedMediaType):
		status = http.StatusUnsupportedMediaType
		msg = knowledgebase.ErrUnsupportedMediaType.Error()
	case errors.Is(err, knowledgebase.ErrBotNotFound):
		status = http.StatusNotFound
		msg = knowledgebase.ErrBotNotFound.Error()
	case errors.Is(err, knowledgebase.ErrDocumentNotFound):
		status = http.StatusNotFound
		msg = knowledgebase.ErrDocumentNotFound.Error()
	case errors.Is(err, knowledgebase.ErrDuplicateAssociation):
		status = http.StatusConflict
		msg = knowledgebase.ErrDuplicateAssociation.Error()
	case errors.Is(err, knowledgebase.ErrStorageWriteFailed),
		errors.Is(err, knowledgebase.ErrEmbeddingFailed):
		status = http.StatusBadGateway
	}

	if status >= http.StatusInternalServerError {
		slog.Error(sentinel.Error(), "err", err)
	} else {
		slog.Info(sentinel.Error(), "err", err)
	}
	c.AbortWithStatusJSON(status, response.Response{Msg: msg})
}

func domainMessage(err error) string {
	for _, sentinel := range []error{
		knowledgebase.ErrEmptyPayload,
		knowledgebase.ErrNoDocuments,
		knowledgebase.ErrExtractionFailed,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}
