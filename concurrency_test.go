package bridge

import (
	"sync"
	"testing"

	"github.com/miekg/pkcs11"
	"github.com/niclabs/keychain-bridge/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) slotToken(slot int) *Token {
	f.module.slotMu.Lock()
	defer f.module.slotMu.Unlock()
	if slot >= len(f.module.slots) {
		return nil
	}
	return f.module.slots[slot]
}

func TestModule_Concurrent(t *testing.T) {
	const (
		workers = 4
		rounds  = 50
	)
	f := newFixture(t)
	first := f.slotToken(0)
	second := storage.NewTokenID()
	f.saveToken(t, second)
	f.module.AddToken(second)
	require.NotNil(t, f.slotToken(1))

	var wg sync.WaitGroup

	// sign and verify on the first token, each in its own session
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data := []byte("concurrent input")
			for i := 0; i < rounds; i++ {
				s, err := f.module.OpenSession(0, pkcs11.CKF_SERIAL_SESSION)
				if !assert.NoError(t, err) {
					return
				}
				sig := make([]byte, 64)
				assert.NoError(t, f.module.SignInit(s, mech(pkcs11.CKM_ECDSA_SHA256), ecPrivate))
				n, err := f.module.Sign(s, data, sig)
				assert.NoError(t, err)
				assert.Equal(t, 64, n)
				assert.NoError(t, f.module.VerifyInit(s, mech(pkcs11.CKM_ECDSA_SHA256), ecPublic))
				assert.NoError(t, f.module.VerifyUpdate(s, data[:5]))
				assert.NoError(t, f.module.VerifyUpdate(s, data[5:]))
				assert.NoError(t, f.module.VerifyFinal(s, sig))
				assert.NoError(t, f.module.CloseSession(s))
			}
		}()
	}

	// the second token comes and goes
	var removed []*Token
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			if token := f.slotToken(1); token != nil {
				removed = append(removed, token)
			}
			f.module.RemoveToken(second)
			f.module.AddToken(second)
		}
		if token := f.slotToken(1); token != nil {
			removed = append(removed, token)
		}
		f.module.RemoveToken(second)
	}()

	// sessions on the second slot are only ever closed all at once
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			s, err := f.module.OpenSession(1, pkcs11.CKF_SERIAL_SESSION)
			if err == nil {
				assert.NoError(t, f.module.FindObjectsInit(s, nil))
				found, err := f.module.FindObjects(s, 10)
				assert.NoError(t, err)
				assert.Len(t, found, 6)
				assert.NoError(t, f.module.FindObjectsFinal(s))
			} else {
				assert.Equal(t, pkcs11.Error(pkcs11.CKR_TOKEN_NOT_PRESENT), err)
			}
			assert.NoError(t, f.module.CloseAllSessions(1))
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			_, err := f.module.GetSlotList(true)
			assert.NoError(t, err)
			_, err = f.module.GetTokenInfo(0)
			assert.NoError(t, err)
			_, err = f.module.GetSlotInfo(1)
			assert.NoError(t, err)
		}
	}()

	wg.Wait()

	slots, err := f.module.GetSlotList(true)
	require.NoError(t, err)
	assert.Equal(t, []uint{0}, slots)

	assert.Same(t, first, f.slotToken(0))
	assert.Equal(t, 1, first.Refs())
	assert.False(t, first.Freed())
	require.NotEmpty(t, removed)
	for _, token := range removed {
		assert.Equal(t, 0, token.Refs())
		assert.True(t, token.Freed())
	}

	f.module.sessionMu.Lock()
	for _, s := range f.module.sessions {
		assert.Nil(t, s)
	}
	f.module.sessionMu.Unlock()

	// handles are handed out lowest first again
	a := f.openSession(t, 0)
	b := f.openSession(t, 0)
	c := f.openSession(t, 0)
	assert.Equal(t, []pkcs11.SessionHandle{1, 2, 3}, []pkcs11.SessionHandle{a, b, c})
	require.NoError(t, f.module.CloseSession(b))
	assert.Equal(t, b, f.openSession(t, 0))
	assert.Equal(t, 4, first.Refs())
}
