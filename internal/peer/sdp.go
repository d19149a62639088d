package peer

import (
	"errors"
	"fmt"

	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
)

var errEmptySDP = errors.New("empty sdp")

func parseSDP(raw string) (*sdp.SessionDescription, error) {
	if raw == "" {
		return nil, errEmptySDP
	}
	var parsed sdp.SessionDescription
	if err := parsed.Unmarshal([]byte(raw)); err != nil {
		return nil, fmt.Errorf("parse sdp: %w", err)
	}
	return &parsed, nil
}

// validateDescription checks type and syntax before anything reaches pion.
func validateDescription(desc webrtc.SessionDescription) error {
	switch desc.Type {
	case webrtc.SDPTypeOffer, webrtc.SDPTypeAnswer, webrtc.SDPTypePranswer:
	default:
		return fmt.Errorf("unexpected description type %q", desc.Type)
	}
	_, err := parseSDP(desc.SDP)
	return err
}

// SessionID returns the o= session id of desc.
func SessionID(desc webrtc.SessionDescription) (uint64, error) {
	parsed, err := parseSDP(desc.SDP)
	if err != nil {
		return 0, err
	}
	return parsed.Origin.SessionID, nil
}

// OfferWins settles glare between our outstanding offer and one that
// arrived from the peer. The higher o= session id wins, and equal ids fall
// back to comparing the raw SDP, so both sides reach opposite answers.
func OfferWins(local, remote webrtc.SessionDescription) (bool, error) {
	ours, err := SessionID(local)
	if err != nil {
		return false, err
	}
	theirs, err := SessionID(remote)
	if err != nil {
		return false, err
	}
	if ours != theirs {
		return ours > theirs, nil
	}
	return local.SDP > remote.SDP, nil
}

// MediaKinds lists the m= section kinds of desc in order.
func MediaKinds(desc webrtc.SessionDescription) ([]string, error) {
	parsed, err := parseSDP(desc.SDP)
	if err != nil {
		return nil, err
	}
	kinds := make([]string, 0, len(parsed.MediaDescriptions))
	for _, m := range parsed.MediaDescriptions {
		kinds = append(kinds, m.MediaName.Media)
	}
	return kinds, nil
}
