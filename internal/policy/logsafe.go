// Package policy decides what conversation-derived text may reach a log line.
// Turn plaintext and raw model output never do; logs carry lengths and
// digests instead.
package policy

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

const maxFieldRunes = 48

// Digest is a short stable fingerprint of s. Equal texts share a digest, so
// log lines can be correlated without carrying the text.
func Digest(s string) string {
	return strconv.FormatUint(xxhash.Sum64String(s)&0xffffffff, 16)
}

// UpstreamDetail summarizes a non-OK upstream response. Only the status, the
// body size and an OpenAI-style error type/code survive; the free-text
// message can echo request content and is dropped.
func UpstreamDetail(status int, body []byte) string {
	detail := fmt.Sprintf("http %d, %d bytes", status, len(body))

	var envelope struct {
		Error struct {
			Type string `json:"type"`
			Code any    `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return detail
	}
	if t := clip(envelope.Error.Type); t != "" {
		detail += ", type=" + t
	}
	switch code := envelope.Error.Code.(type) {
	case string:
		if c := clip(code); c != "" {
			detail += ", code=" + c
		}
	case float64:
		detail += ", code=" + strconv.FormatFloat(code, 'f', -1, 64)
	}
	return detail
}

func clip(s string) string {
	r := []rune(s)
	if len(r) > maxFieldRunes {
		return string(r[:maxFieldRunes])
	}
	return s
}
