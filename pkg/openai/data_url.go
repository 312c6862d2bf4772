package openai

import "encoding/base64"

// DataURL encodes data as an inline data URL.
func DataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
