//go:build sonic

package wsproto

import "github.com/bytedance/sonic"

// text frames dominate sync traffic; build with -tags sonic on amd64/arm64
var (
	jsonMarshal   = sonic.Marshal
	jsonUnmarshal = sonic.Unmarshal
)
