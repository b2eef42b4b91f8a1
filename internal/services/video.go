package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// VideoConfig carries per-session provisioning hints.
type VideoConfig struct {
	Provider   string `json:"provider,omitempty"`
	RoomPrefix string `json:"room_prefix,omitempty"`
}

// VideoMeeting is the provisioned meeting for a session.
type VideoMeeting struct {
	URL      string
	RoomName string
	Provider string
}

// VideoProvisioner creates meeting rooms. Calling it twice for one session must be safe.
type VideoProvisioner interface {
	CreateMeeting(ctx context.Context, sessionID, podID string, cfg VideoConfig) (VideoMeeting, error)
}

// LinkVideoProvisioner derives deterministic room links from a base URL.
type LinkVideoProvisioner struct {
	baseURL  *url.URL
	provider string
}

// NewLinkVideoProvisioner validates baseURL.
func NewLinkVideoProvisioner(baseURL, provider string) (*LinkVideoProvisioner, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("video provisioner: base url is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("video provisioner: invalid base url %q", baseURL)
	}
	if strings.TrimSpace(provider) == "" {
		provider = "jitsi"
	}
	return &LinkVideoProvisioner{baseURL: parsed, provider: provider}, nil
}

func (p *LinkVideoProvisioner) CreateMeeting(ctx context.Context, sessionID, podID string, cfg VideoConfig) (VideoMeeting, error) {
	if err := ctx.Err(); err != nil {
		return VideoMeeting{}, err
	}
	if strings.TrimSpace(sessionID) == "" {
		return VideoMeeting{}, errors.New("video provisioner: session id is required")
	}

	prefix := strings.TrimSpace(cfg.RoomPrefix)
	if prefix == "" {
		prefix = "stride"
	}
	room := prefix + "-" + sessionID
	provider := p.provider
	if cfg.Provider != "" {
		provider = cfg.Provider
	}

	link := p.baseURL.JoinPath(room)
	return VideoMeeting{URL: link.String(), RoomName: room, Provider: provider}, nil
}
