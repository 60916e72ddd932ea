package webhook

import (
	gh "github.com/google/go-github/v72/github"
)

// Verify checks signature against an HMAC of the raw, unparsed body. Both the
// legacy "sha1=" and the "sha256=" formats are accepted. An empty secret
// disables verification and accepts every body.
func Verify(secret, body []byte, signature string) bool {
	if len(secret) == 0 {
		return true
	}
	return gh.ValidateSignature(signature, body, secret) == nil
}
