package form

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// honeypotBases are innocuous-looking field names bots are drawn to fill.
var honeypotBases = []string{"website", "homepage", "url", "fax", "company", "nickname"}

// CreateHoneypot returns a randomized field name for a hidden trap field.
// The random suffix keeps bots from hardcoding a skip list of known
// honeypot names.
func CreateHoneypot() string {
	id := uuid.NewString()
	base := honeypotBases[int(id[0])%len(honeypotBases)]
	return fmt.Sprintf("%s_%s", base, strings.ReplaceAll(id, "-", "")[:8])
}

// ValidateHoneypot reports whether the submission passes the honeypot
// check. Legitimate users never see the field, so an absent or empty
// value passes; any non-empty value is treated as automation.
func ValidateHoneypot(name string, data map[string]interface{}) bool {
	value, ok := data[name]
	if !ok || value == nil {
		return true
	}
	return strings.TrimSpace(coerceString(value)) == ""
}
