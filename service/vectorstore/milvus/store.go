package milvus

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"bot-rag-backend/config"
	"bot-rag-backend/service/vectorstore"

	"github.com/google/uuid"
	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
)

const (
	FieldID         = "id"
	FieldUserID     = "user_id"
	FieldDocumentID = "document_id"
	FieldFileName   = "file_name"
	FieldChunkIndex = "chunk_index"
	FieldText       = "text"
	FieldVector     = "vector"
)

var outputFields = []string{
	FieldID, FieldUserID, FieldDocumentID, FieldFileName, FieldChunkIndex, FieldText, FieldVector,
}

// Store 以 Milvus 集合作为片段存储，只做标量过滤查询
type Store struct {
	client     *milvusclient.Client
	collection string
	dim        int
}

var _ vectorstore.Store = (*Store)(nil)

func New(ctx context.Context, cfg config.MilvusConfig, dim int) (*Store, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("milvus store requires model.embedding_dimensions")
	}

	client, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address: cfg.Endpoint,
		APIKey:  cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %v", err)
	}

	return &Store{
		client:     client,
		collection: cfg.CollectionName,
		dim:        dim,
	}, nil
}

func (s *Store) InsertChunks(ctx context.Context, chunks []vectorstore.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	n := len(chunks)
	ids := make([]string, 0, n)
	userIDs := make([]string, 0, n)
	documentIDs := make([]string, 0, n)
	fileNames := make([]string, 0, n)
	indexes := make([]int64, 0, n)
	texts := make([]string, 0, n)
	vectors := make([][]float32, 0, n)
	for _, chunk := range chunks {
		if len(chunk.Vector) != s.dim {
			return fmt.Errorf("%w: %d != %d", vectorstore.ErrDimensionMismatch, len(chunk.Vector), s.dim)
		}
		id := chunk.ID
		if id == "" {
			id = uuid.New().String()
		}
		ids = append(ids, id)
		userIDs = append(userIDs, chunk.UserID)
		documentIDs = append(documentIDs, chunk.DocumentID)
		fileNames = append(fileNames, chunk.FileName)
		indexes = append(indexes, int64(chunk.ChunkIndex))
		texts = append(texts, chunk.Content)
		vectors = append(vectors, chunk.Vector)
	}

	insertOption := milvusclient.NewColumnBasedInsertOption(s.collection).WithColumns(
		column.NewColumnVarChar(FieldID, ids),
		column.NewColumnVarChar(FieldUserID, userIDs),
		column.NewColumnVarChar(FieldDocumentID, documentIDs),
		column.NewColumnVarChar(FieldFileName, fileNames),
		column.NewColumnInt64(FieldChunkIndex, indexes),
		column.NewColumnVarChar(FieldText, texts),
		column.NewColumnFloatVector(FieldVector, s.dim, vectors),
	)
	if _, err := s.client.Insert(ctx, insertOption); err != nil {
		return fmt.Errorf("error inserting chunks: %v", err)
	}
	return nil
}

func (s *Store) FindByDocuments(ctx context.Context, userID string, documentIDs []string) ([]vectorstore.Chunk, error) {
	if len(documentIDs) == 0 {
		return nil, nil
	}

	queryOption := milvusclient.NewQueryOption(s.collection).
		WithFilter(documentsFilter(userID, documentIDs)).
		WithOutputFields(outputFields...).
		WithConsistencyLevel(entity.ClStrong)
	rs, err := s.client.Query(ctx, queryOption)
	if err != nil {
		return nil, fmt.Errorf("error querying chunks: %v", err)
	}

	chunks, err := decodeChunks(rs)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].DocumentID != chunks[j].DocumentID {
			return chunks[i].DocumentID < chunks[j].DocumentID
		}
		return chunks[i].ChunkIndex < chunks[j].ChunkIndex
	})
	return chunks, nil
}

func (s *Store) DeleteByDocument(ctx context.Context, userID, documentID string) error {
	deleteOption := milvusclient.NewDeleteOption(s.collection).
		WithExpr(documentsFilter(userID, []string{documentID}))
	if _, err := s.client.Delete(ctx, deleteOption); err != nil {
		return fmt.Errorf("error deleting chunks: %v", err)
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

func documentsFilter(userID string, documentIDs []string) string {
	quoted := make([]string, 0, len(documentIDs))
	for _, id := range documentIDs {
		quoted = append(quoted, quote(id))
	}
	return fmt.Sprintf("%s == %s && %s in [%s]",
		FieldUserID, quote(userID),
		FieldDocumentID, strings.Join(quoted, ", "),
	)
}

func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

func decodeChunks(rs milvusclient.ResultSet) ([]vectorstore.Chunk, error) {
	idColumn := rs.GetColumn(FieldID)
	if idColumn == nil {
		return nil, nil
	}

	chunks := make([]vectorstore.Chunk, 0, idColumn.Len())
	for i := 0; i < idColumn.Len(); i++ {
		var chunk vectorstore.Chunk
		var err error
		if chunk.ID, err = stringAt(rs, FieldID, i); err != nil {
			return nil, err
		}
		if chunk.UserID, err = stringAt(rs, FieldUserID, i); err != nil {
			return nil, err
		}
		if chunk.DocumentID, err = stringAt(rs, FieldDocumentID, i); err != nil {
			return nil, err
		}
		if chunk.FileName, err = stringAt(rs, FieldFileName, i); err != nil {
			return nil, err
		}
		if chunk.Content, err = stringAt(rs, FieldText, i); err != nil {
			return nil, err
		}

		index, err := valueAt(rs, FieldChunkIndex, i)
		if err != nil {
			return nil, err
		}
		if v, ok := index.(int64); ok {
			chunk.ChunkIndex = int(v)
		}

		vector, err := valueAt(rs, FieldVector, i)
		if err != nil {
			return nil, err
		}
		switch v := vector.(type) {
		case entity.FloatVector:
			chunk.Vector = []float32(v)
		case []float32:
			chunk.Vector = v
		default:
			return nil, fmt.Errorf("unexpected vector type %T", vector)
		}

		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

func valueAt(rs milvusclient.ResultSet, field string, i int) (any, error) {
	col := rs.GetColumn(field)
	if col == nil {
		return nil, fmt.Errorf("field %s missing from query result", field)
	}
	return col.Get(i)
}

func stringAt(rs milvusclient.ResultSet, field string, i int) (string, error) {
	v, err := valueAt(rs, field, i)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %s has type %T", field, v)
	}
	return s, nil
}
