package event

import (
	"encoding/json"
	"fmt"

	"github.com/contentpress/bakerd/internal/domain"
)

// publishedPayload mirrors the JSON emitted by the post-publication trigger.
// Any change here must be coordinated with the trigger code in the database.
type publishedPayload struct {
	ModuleIdent int    `json:"module_ident"`
	IdentHash   string `json:"ident_hash"`
	Timestamp   string `json:"timestamp"`
}

// Decode turns a raw notification into its typed event variant.
// Pure and side-effect-free. Returns domain.ErrUnknownChannel for channels
// with no registered variant and domain.ErrMalformedPayload when the payload
// does not match the channel's schema.
func Decode(n Notification) (Event, error) {
	switch Kind(n.Channel) {
	case KindPublished:
		var p publishedPayload
		if err := json.Unmarshal(n.Payload, &p); err != nil {
			return nil, fmt.Errorf("%w: channel %q: %v", domain.ErrMalformedPayload, n.Channel, err)
		}
		if p.ModuleIdent <= 0 {
			return nil, fmt.Errorf("%w: missing or invalid module_ident", domain.ErrMalformedPayload)
		}
		if p.IdentHash == "" {
			return nil, fmt.Errorf("%w: missing ident_hash", domain.ErrMalformedPayload)
		}
		return Published{
			ModuleIdent: p.ModuleIdent,
			IdentHash:   p.IdentHash,
			Timestamp:   p.Timestamp,
		}, nil

	case KindStartupScan:
		return StartupScan{}, nil

	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownChannel, n.Channel)
	}
}
