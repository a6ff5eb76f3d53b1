package authz

import "fmt"

// denialMessages gives each CRUD action its own phrasing so the UI can show
// something more useful than a generic "forbidden".
var denialMessages = map[string]string{
	"index":   "You are not allowed to view this list",
	"show":    "You are not allowed to view this record",
	"new":     "You are not allowed to open the new record form",
	"create":  "You are not allowed to create records here",
	"edit":    "You are not allowed to open the edit form",
	"update":  "You are not allowed to update this record",
	"destroy": "You are not allowed to delete this record",
}

const defaultDenialMessage = "You are not allowed to perform this action"

// DenialMessage renders the human-readable denial for an action. When the
// check ran inside a farm scope, the farm name is worked into the phrasing.
func DenialMessage(action, tenantName string) string {
	msg, ok := denialMessages[action]
	if !ok {
		msg = defaultDenialMessage
	}
	if tenantName != "" {
		return fmt.Sprintf("%s on farm %s", msg, tenantName)
	}
	return msg
}
