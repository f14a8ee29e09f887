package server

import "github.com/bytedance/sonic"

var fastJSON = sonic.ConfigStd

// fastJSONMarshal encodes v with Sonic using encoding/json-compatible settings.
func fastJSONMarshal(v any) ([]byte, error) {
	return fastJSON.Marshal(v)
}
