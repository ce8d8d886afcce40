package platform

import (
	"encoding/json"

	"github.com/maheshrc27/brandcast/internal/transfer"
)

// Graph API error codes, see developers.facebook.com/docs/graph-api/guides/error-handling.
var graphTransientCodes = map[int]bool{1: true, 2: true, 4: true, 17: true, 32: true, 341: true, 613: true}

const graphCodeOAuth = 190

func decodeGraphError(status int, body []byte) *PublishError {
	var e transfer.GraphErrorResponse
	if json.Unmarshal(body, &e) != nil || e.Error.Message == "" {
		return nil
	}

	msg := e.Error.Message
	if e.Error.ErrorUserMsg != "" {
		msg += ": " + e.Error.ErrorUserMsg
	}

	pe := &PublishError{Kind: Rejected, Message: msg}
	switch {
	case e.Error.Code == graphCodeOAuth:
		pe.Kind = Unauthorized
	case e.Error.IsTransient, graphTransientCodes[e.Error.Code]:
		pe.Kind = Transient
	case status >= 500:
		pe.Kind = Transient
	}
	return pe
}
