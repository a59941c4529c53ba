package memory

import (
	"testing"

	"github.com/niclabs/keychain-bridge/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	s := New()
	var _ storage.Storage = s
	require.NoError(t, s.InitStorage())

	require.NoError(t, s.SaveToken(&storage.Token{ID: "a", Label: "first"}))
	require.NoError(t, s.SaveToken(&storage.Token{ID: "b", Label: "second"}))
	require.NoError(t, s.SaveToken(&storage.Token{ID: "a", Label: "renamed"}))
	assert.Error(t, s.SaveToken(&storage.Token{}))

	ids, err := s.TokenIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
	token, err := s.GetToken("a")
	require.NoError(t, err)
	assert.Equal(t, "renamed", token.Label)

	first := &storage.Identity{TokenID: "a", Label: "one", Certificate: []byte{1}}
	second := &storage.Identity{TokenID: "a", Label: "two", Certificate: []byte{2}}
	require.NoError(t, s.SaveIdentity(first))
	require.NoError(t, s.SaveIdentity(second))
	assert.Equal(t, 0, first.Index)
	assert.Equal(t, 1, second.Index)

	list, err := s.GetIdentities("a")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "two", list[1].Label)

	require.NoError(t, s.RemoveToken("a"))
	list, err = s.GetIdentities("a")
	require.NoError(t, err)
	assert.Empty(t, list)
	_, err = s.GetToken("a")
	assert.Error(t, err)

	require.NoError(t, s.AddTrustedCertificate([]byte("root")))
	require.NoError(t, s.AddTrustedCertificate([]byte("root")))
	certs, err := s.GetTrustedCertificates()
	require.NoError(t, err)
	assert.Len(t, certs, 1)

	require.NoError(t, s.CloseStorage())
	_, err = s.TokenIDs()
	assert.Error(t, err)
}
