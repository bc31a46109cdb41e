package signal

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

var errEmptySDP = errors.New("sdp is empty")

// validateSDP checks that raw parses as a session description of kind
// ("offer" or "answer").
func validateSDP(kind, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return errEmptySDP
	}
	desc := webrtc.SessionDescription{Type: webrtc.NewSDPType(kind), SDP: raw}
	if _, err := desc.Unmarshal(); err != nil {
		return fmt.Errorf("invalid %s: %w", kind, err)
	}
	return nil
}
