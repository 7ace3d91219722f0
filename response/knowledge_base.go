package response

import "time"

type DocumentResponse struct {
	ID               string    `json:"id"`
	FileName         string    `json:"file_name"`
	FileType         string    `json:"file_type"`
	FileURL          string    `json:"file_url"`
	FileSize         int64     `json:"file_size"`
	UploadDate       time.Time `json:"upload_date"`
	ProcessingStatus string    `json:"processing_status"`
}

type GetBotDocumentsResponse struct {
	Documents []DocumentResponse `json:"documents"`
}

type UploadDocumentResponse struct {
	DocumentID string `json:"document_id"`
}

type GetPreSignedURLResponse struct {
	URL string `json:"url"`
}
