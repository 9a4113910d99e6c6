package webrtc

// ClientTypeCLI identifies this terminal client on the signaling wire.
const ClientTypeCLI = "cli"

// SelectCodec picks the envelope encoding for a peer. Two CLI peers use
// msgpack; anything else gets JSON for web compatibility.
func SelectCodec(peerClientType string) Codec {
	if peerClientType == ClientTypeCLI {
		return MsgpackCodec{}
	}
	return JSONCodec{}
}
