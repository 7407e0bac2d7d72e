package core

import (
	"encoding/json"
	"fmt"
)

// StringifyPayload renders a tool payload for transcript embedding. Strings
// pass through untouched; everything else is JSON encoded with a fmt fallback
// for unmarshalable values.
func StringifyPayload(payload any) string {
	switch v := payload.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
