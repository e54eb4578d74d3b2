// internal/protocol/messages_test.go
package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeFramesTypeAndData(t *testing.T) {
	raw, err := Encode(JoinLobby{Lobby: LobbyID{Seq: 7, Owner: "alice", Game: GameID{Name: "Beccaccino"}}})
	require.NoError(t, err)

	var env struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, "join_lobby", env.Type)

	decoded, err := Decode(raw)
	require.NoError(t, err)
	join, ok := decoded.(JoinLobby)
	require.True(t, ok)
	assert.Equal(t, 7, join.Lobby.Seq)
	assert.Equal(t, "alice", join.Lobby.Owner)
}

func TestDecodeUnknownTypeIsNotAnError(t *testing.T) {
	decoded, err := Decode([]byte(`{"type":"chat","data":{"text":"hi"}}`))
	require.NoError(t, err)
	unknown, ok := decoded.(Unknown)
	require.True(t, ok)
	assert.Equal(t, "chat", unknown.Type)
}

func TestDecodeRejectsMalformedEnvelope(t *testing.T) {
	_, err := Decode([]byte(`{"type":`))
	assert.Error(t, err)

	_, err = Decode([]byte(`{"type":"play","data":{"card":"not an object"}}`))
	assert.Error(t, err)
}

func TestUnknownIsNotEncodable(t *testing.T) {
	_, err := Encode(Unknown{Type: "chat"})
	assert.Error(t, err, "placeholders never go back on the wire")
}

func TestErrorCarriesItsCode(t *testing.T) {
	err := Errf(LobbyFull)
	assert.Equal(t, LobbyFull, err.Code)
	assert.Contains(t, err.Error(), string(LobbyFull))

	raw, encodeErr := Encode(ErrorOccurred{Code: LobbyFull})
	require.NoError(t, encodeErr)
	decoded, decodeErr := Decode(raw)
	require.NoError(t, decodeErr)
	assert.Equal(t, LobbyFull, decoded.(ErrorOccurred).Code)
}
