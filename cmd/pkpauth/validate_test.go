package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/pkpauth/adapters/nodes"
	"github.com/layer-3/pkpauth/core"
	"github.com/layer-3/pkpauth/service"
)

func runValidate(t *testing.T, input string) (string, error) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "sigs.json")
	require.NoError(t, os.WriteFile(path, []byte(input), 0o600))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"validate", path})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.Execute()
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	gen := service.NewGenerator([]string{"https://node-a", "https://node-b"}, nodes.NewLocalSigner(key, "", nil))
	sigs, err := gen.GetSessionSigs(context.Background(), core.SessionSigsParams{
		PKPPublicKey: "0x04abcdef",
		AuthMethod:   core.AuthMethod{Type: core.AuthMethodTypeGoogleJWT, AccessToken: "token"},
		Chain:        "ethereum",
	})
	require.NoError(t, err)

	raw, err := json.Marshal(sigs)
	require.NoError(t, err)

	t.Run("valid", func(t *testing.T) {
		out, err := runValidate(t, string(raw))
		require.NoError(t, err)
		assert.Contains(t, out, "https://node-a")
		assert.Contains(t, out, "session signatures are valid")
	})

	t.Run("tampered", func(t *testing.T) {
		bad := core.SessionSigs{}
		for node, sig := range sigs {
			bad[node] = sig
		}
		sig := bad["https://node-b"]
		sig.SignedMessage += " "
		bad["https://node-b"] = sig

		raw, err := json.Marshal(bad)
		require.NoError(t, err)

		out, err := runValidate(t, string(raw))
		assert.ErrorIs(t, err, errInvalidSessionSigs)
		assert.Contains(t, out, "https://node-b")
	})

	t.Run("empty", func(t *testing.T) {
		out, err := runValidate(t, "{}")
		assert.ErrorIs(t, err, errInvalidSessionSigs)
		assert.Contains(t, out, "No session signatures provided.")
	})

	t.Run("not json", func(t *testing.T) {
		_, err := runValidate(t, "nope")
		assert.ErrorContains(t, err, "decoding session signatures")
	})
}
