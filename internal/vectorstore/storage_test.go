package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipechat/internal/config"
	"recipechat/internal/vectorstore/memory"
	"recipechat/internal/vectorstore/qdrant"
)

func TestNewSelectsStore(t *testing.T) {
	st, err := New(config.VectorStoreConfig{})
	require.NoError(t, err)
	assert.IsType(t, &memory.Storage{}, st)

	st, err = New(config.VectorStoreConfig{Type: "qdrant", Qdrant: &config.QdrantConfig{URL: "http://localhost:6333", Collection: "recipes"}})
	require.NoError(t, err)
	assert.IsType(t, &qdrant.Storage{}, st)
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(config.VectorStoreConfig{Type: "qdrant"})
	assert.Error(t, err)

	_, err = New(config.VectorStoreConfig{Type: "pinecone"})
	assert.ErrorContains(t, err, "unknown vector store")
}
