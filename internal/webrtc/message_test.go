package webrtc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type movePayload struct {
	Row int `json:"row" msgpack:"row"`
	Col int `json:"col" msgpack:"col"`
}

func TestCodecs(t *testing.T) {
	for _, codec := range []Codec{JSONCodec{}, MsgpackCodec{}} {
		t.Run(codec.Name(), func(t *testing.T) {
			data, err := codec.Encode(MessageTypeMove, movePayload{Row: 3, Col: 9})
			require.NoError(t, err)

			msg, err := codec.Decode(data)
			require.NoError(t, err)
			assert.Equal(t, MessageTypeMove, msg.Type)

			var got movePayload
			require.NoError(t, msg.DecodePayload(&got))
			assert.Equal(t, movePayload{Row: 3, Col: 9}, got)
		})
	}
}

func TestJSONCodec_BrowserEnvelope(t *testing.T) {
	// Given: an envelope as a browser peer writes it
	data := []byte(`{"type":"ready","payload":{"row":1,"col":2}}`)

	msg, err := JSONCodec{}.Decode(data)

	require.NoError(t, err)
	assert.Equal(t, MessageTypeReady, msg.Type)
	var got movePayload
	require.NoError(t, msg.DecodePayload(&got))
	assert.Equal(t, movePayload{Row: 1, Col: 2}, got)
}

func TestCodecs_RejectGarbage(t *testing.T) {
	_, err := JSONCodec{}.Decode([]byte(`not json`))
	assert.Error(t, err)

	_, err = JSONCodec{}.Decode([]byte(`{"payload":{}}`))
	assert.ErrorIs(t, err, ErrEmptyType)

	_, err = MsgpackCodec{}.Decode([]byte{0xc1})
	assert.Error(t, err)
}

func TestSelectCodec(t *testing.T) {
	assert.Equal(t, "msgpack", SelectCodec(ClientTypeCLI).Name())
	assert.Equal(t, "json", SelectCodec("web").Name())
	assert.Equal(t, "json", SelectCodec("").Name())
}
