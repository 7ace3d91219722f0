package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"bot-rag-backend/config"
	"bot-rag-backend/service/vectorstore/milvus"
	"bot-rag-backend/utils"
)

const (
	int64Type       = "Int64"
	floatVectorType = "FloatVector"
	varcharType     = "VarChar"

	idMaxLength = "36"
)

type CreateCollectionRequest struct {
	CollectionName string         `json:"collectionName"`
	Schema         *Schema        `json:"schema"`
	IndexParams    []*IndexParams `json:"indexParams"`
}

type Schema struct {
	AutoID             bool     `json:"autoId"`
	EnableDynamicField bool     `json:"enableDynamicField"`
	Fields             []*Field `json:"fields"`
}

type Field struct {
	FieldName         string            `json:"fieldName"`
	DataType          string            `json:"dataType"`
	ElementTypeParams map[string]string `json:"elementTypeParams,omitempty"`
	IsPrimary         bool              `json:"isPrimary,omitempty"`
}

type IndexParams struct {
	MetricType string            `json:"metricType,omitempty"`
	FieldName  string            `json:"fieldName"`
	IndexName  string            `json:"indexName"`
	Params     map[string]string `json:"params"`
}

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	payload, err := json.Marshal(buildCreateCollectionRequest(cfg.Milvus.CollectionName, cfg.Model.EmbeddingDimensions))
	if err != nil {
		slog.Error("Failed to marshal request", "err", err)
		return
	}

	url := cfg.Milvus.Endpoint + "/v2/vectordb/collections/create"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		slog.Error("Failed to create request", "err", err)
		return
	}

	req.Header.Add("Authorization", "Bearer "+cfg.Milvus.APIKey)
	req.Header.Add("Accept", "application/json")
	req.Header.Add("Content-Type", "application/json")

	resp, err := utils.DefaultHTTPClient().Do(req)
	if err != nil {
		slog.Error("Failed to send request", "err", err)
		return
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	slog.Info("create milvus collection response", "status", resp.StatusCode, "body", string(body))
}

// buildCreateCollectionRequest 字段与片段存储写入的列一一对应
func buildCreateCollectionRequest(collectionName string, dim int) *CreateCollectionRequest {
	varchar := func(name, maxLength string) *Field {
		return &Field{
			FieldName:         name,
			DataType:          varcharType,
			ElementTypeParams: map[string]string{"max_length": maxLength},
		}
	}

	id := varchar(milvus.FieldID, idMaxLength)
	id.IsPrimary = true

	fields := []*Field{
		id,
		varchar(milvus.FieldUserID, idMaxLength),
		varchar(milvus.FieldDocumentID, idMaxLength),
		varchar(milvus.FieldFileName, "255"),
		{
			FieldName: milvus.FieldChunkIndex,
			DataType:  int64Type,
		},
		varchar(milvus.FieldText, "65535"),
		{
			FieldName: milvus.FieldVector,
			DataType:  floatVectorType,
			ElementTypeParams: map[string]string{
				"dim": strconv.Itoa(dim),
			},
		},
	}

	indexParams := []*IndexParams{
		{
			MetricType: "COSINE",
			FieldName:  milvus.FieldVector,
			IndexName:  "vector_index",
			Params: map[string]string{
				"indexType": "HNSW",
			},
		},
		{
			FieldName: milvus.FieldUserID,
			IndexName: "user_id_index",
			Params: map[string]string{
				"indexType": "INVERTED",
			},
		},
		{
			FieldName: milvus.FieldDocumentID,
			IndexName: "document_id_index",
			Params: map[string]string{
				"indexType": "INVERTED",
			},
		},
	}

	return &CreateCollectionRequest{
		CollectionName: collectionName,
		Schema: &Schema{
			EnableDynamicField: false,
			Fields:             fields,
		},
		IndexParams: indexParams,
	}
}
