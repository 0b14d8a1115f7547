package telegram

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Action names a callback step. Values are short because Telegram caps callback data
// at 64 bytes.
type Action string

const (
	ActionKind          Action = "k"
	ActionRegion        Action = "r"
	ActionLocation      Action = "l"
	ActionDate          Action = "d"
	ActionConfirm       Action = "ok"
	ActionCancel        Action = "x"
	ActionApprove       Action = "ap"
	ActionReject        Action = "rj"
	ActionCheckRegion   Action = "cr"
	ActionCheckLocation Action = "cl"
)

const (
	maxCallbackData = 64
	routeSeparator  = "|"
)

var errMalformedRoute = errors.New("malformed callback route")

// Route is the structured form of a button's callback data. Session is a session
// token; Value carries the choice made (kind, region, location key, day offset or
// report ID).
type Route struct {
	Action  Action
	Session string
	Value   string
}

// Encode renders r as callback data. UUID session tokens are packed into 22 bytes.
func (r Route) Encode() (string, error) {
	if strings.Contains(r.Value, routeSeparator) {
		return "", fmt.Errorf("route value %q contains %q", r.Value, routeSeparator)
	}
	data := string(r.Action) + routeSeparator + packToken(r.Session) + routeSeparator + r.Value
	if len(data) > maxCallbackData {
		return "", fmt.Errorf("callback data for %s is %d bytes, limit is %d", r.Action, len(data), maxCallbackData)
	}
	return data, nil
}

// ParseRoute is the inverse of Encode.
func ParseRoute(data string) (Route, error) {
	parts := strings.SplitN(data, routeSeparator, 3)
	if len(parts) != 3 || parts[0] == "" {
		return Route{}, errMalformedRoute
	}
	token, err := unpackToken(parts[1])
	if err != nil {
		return Route{}, err
	}
	return Route{Action: Action(parts[0]), Session: token, Value: parts[2]}, nil
}

func packToken(token string) string {
	if token == "" {
		return ""
	}
	id, err := uuid.Parse(token)
	if err != nil {
		return "=" + token
	}
	return base64.RawURLEncoding.EncodeToString(id[:])
}

func unpackToken(packed string) (string, error) {
	if packed == "" {
		return "", nil
	}
	if raw, ok := strings.CutPrefix(packed, "="); ok {
		return raw, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(packed)
	if err != nil {
		return "", errMalformedRoute
	}
	id, err := uuid.FromBytes(b)
	if err != nil {
		return "", errMalformedRoute
	}
	return id.String(), nil
}
