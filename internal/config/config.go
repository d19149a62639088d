package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Default configuration values (production)
const (
	DefaultDomain      = "omegle-clone.onrender.com"
	DefaultSTUN        = "stun:stun.l.google.com:19302"
	DefaultTURN        = "turn:openrelay.metered.ca"
	DefaultTURNUser    = "openrelayproject"
	DefaultTURNPass    = "openrelayproject"
	DefaultMetricsAddr = ""
)

// Config holds application configuration
type Config struct {
	// Domain is the matchmaking server domain
	Domain string

	// SignalingURL and StatusURL are derived from Domain unless set
	SignalingURL string
	StatusURL    string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool

	// Media files used as camera/microphone when no device backend is built in
	VideoFile string
	AudioFile string
	UseDevice bool

	// RecordDir enables recording of the remote stream when set
	RecordDir string

	ProfilePath string
	MetricsAddr string
}

// Options for loading config with CLI flag overrides
type Options struct {
	Domain       string
	SignalingURL string
	StatusURL    string
	STUNServer   string
	TURNServer   string
	TURNUser     string
	TURNPass     string
	ForceRelay   bool
	VideoFile    string
	AudioFile    string
	UseDevice    bool
	RecordDir    string
	ProfilePath  string
	MetricsAddr  string
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	domain := pick(opts.Domain, "DOMAIN", DefaultDomain)

	signalingURL := pick(opts.SignalingURL, "SIGNALING_URL", "https://"+domain)
	statusURL := pick(opts.StatusURL, "STATUS_URL", strings.TrimRight(signalingURL, "/")+"/status")

	forceRelay := opts.ForceRelay
	if !forceRelay {
		v, err := envBool("FORCE_RELAY")
		if err != nil {
			return nil, err
		}
		forceRelay = v
	}

	useDevice := opts.UseDevice
	if !useDevice {
		v, err := envBool("USE_DEVICE")
		if err != nil {
			return nil, err
		}
		useDevice = v
	}

	profilePath := pick(opts.ProfilePath, "PROFILE_PATH", "")
	if profilePath == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			dir = "."
		}
		profilePath = filepath.Join(dir, "omegle-clone", "profile.msgpack")
	}

	return &Config{
		Domain:       domain,
		SignalingURL: signalingURL,
		StatusURL:    statusURL,
		STUNServer:   pick(opts.STUNServer, "STUN_SERVER", DefaultSTUN),
		TURNServer:   pick(opts.TURNServer, "TURN_SERVER", DefaultTURN),
		TURNUser:     pick(opts.TURNUser, "TURN_USERNAME", DefaultTURNUser),
		TURNPass:     pick(opts.TURNPass, "TURN_PASSWORD", DefaultTURNPass),
		ForceRelay:   forceRelay,
		VideoFile:    pick(opts.VideoFile, "VIDEO_FILE", ""),
		AudioFile:    pick(opts.AudioFile, "AUDIO_FILE", ""),
		UseDevice:    useDevice,
		RecordDir:    pick(opts.RecordDir, "RECORD_DIR", ""),
		ProfilePath:  profilePath,
		MetricsAddr:  pick(opts.MetricsAddr, "METRICS_ADDR", DefaultMetricsAddr),
	}, nil
}

func pick(flag, env, def string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv(env); v != "" {
		return v
	}
	return def
}

func envBool(name string) (bool, error) {
	v := os.Getenv(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s=%q: %w", name, v, err)
	}
	return b, nil
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	host := strings.TrimPrefix(c.TURNServer, "turn:")
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:3478?transport=tcp", host),
		fmt.Sprintf("turns:%s:5349?transport=tcp", host),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}
