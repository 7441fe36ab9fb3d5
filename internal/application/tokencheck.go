// Package application contains use-case orchestration services.
package application

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"
)

// TokenLocallyValid reports whether the credential's embedded expiry claim is
// still in the future, without any network call. The token must have three
// dot-separated segments with a base64url JSON payload carrying a numeric
// "exp" claim in Unix seconds. Any structural or decode failure is reported
// as invalid rather than an error.
func TokenLocallyValid(token string, now time.Time) bool {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return false
	}

	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return false
	}

	var claims struct {
		Exp json.Number `json:"exp"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return false
	}

	exp, err := claims.Exp.Float64()
	if err != nil || exp <= 0 {
		return false
	}

	return exp*1000 > float64(now.UnixMilli())
}
