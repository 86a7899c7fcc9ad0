package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/apotter96/GemsCraft-Classic-sub000/pkg/chat"
)

// ServerConf holds server configuration.
// Supports YAML (.yaml/.yml) and TOML (.toml) files.
type ServerConf struct {
	// --- Identity ---
	ServerName string `yaml:"server_name" toml:"server_name"`
	Motd       string `yaml:"motd" toml:"motd"`

	// --- Listener ---
	Port       int `yaml:"port" toml:"port"`
	MaxPlayers int `yaml:"max_players" toml:"max_players"`

	// --- Handshake (seconds) ---
	HandshakeTimeout int `yaml:"handshake_timeout" toml:"handshake_timeout"`
	NegotiateTimeout int `yaml:"negotiate_timeout" toml:"negotiate_timeout"`

	// --- Chat ---
	MessageTypes bool      `yaml:"message_types" toml:"message_types"`
	Colors       ColorConf `yaml:"colors" toml:"colors"`

	// --- Files ---
	TextDir  string `yaml:"text_dir" toml:"text_dir"`
	ClientDB string `yaml:"client_db" toml:"client_db"`

	// --- Web ---
	WebEnabled     bool     `yaml:"web_enabled" toml:"web_enabled"`
	WebHost        string   `yaml:"web_host" toml:"web_host"`
	WebPort        int      `yaml:"web_port" toml:"web_port"`
	WebCORSOrigins []string `yaml:"web_cors_origins" toml:"web_cors_origins"`
	WebRateLimit   int      `yaml:"web_rate_limit" toml:"web_rate_limit"` // API requests per minute per IP (0 = off)
	WebTLS         TLSConf  `yaml:"web_tls" toml:"web_tls"`

	// --- Backups ---
	ArchiveDir      string `yaml:"archive_dir" toml:"archive_dir"`
	ArchiveInterval int    `yaml:"archive_interval" toml:"archive_interval"` // minutes between backups (0 = off)

	// --- Logging ---
	LogLevel string `yaml:"log_level" toml:"log_level"`

	path string // file the config was loaded from
}

// ColorConf names the color behind each semantic color token. Values may be
// color names ("yellow") or codes ("e", "&e").
type ColorConf struct {
	Sys          string `yaml:"sys" toml:"sys"`
	Say          string `yaml:"say" toml:"say"`
	PM           string `yaml:"pm" toml:"pm"`
	Announcement string `yaml:"announcement" toml:"announcement"`
	Help         string `yaml:"help" toml:"help"`
	Warning      string `yaml:"warning" toml:"warning"`
	Me           string `yaml:"me" toml:"me"`
	IRC          string `yaml:"irc" toml:"irc"`
	Global       string `yaml:"global" toml:"global"`
}

// DefaultServerConf returns a ServerConf with stock defaults.
func DefaultServerConf() *ServerConf {
	return &ServerConf{
		ServerName:       "GemsCraft",
		Motd:             "Welcome to the server!",
		Port:             25565,
		MaxPlayers:       32,
		HandshakeTimeout: 10,
		NegotiateTimeout: 10,
		MessageTypes:     true,
		Colors: ColorConf{
			Sys:          "yellow",
			Say:          "lime",
			PM:           "aqua",
			Announcement: "green",
			Help:         "lime",
			Warning:      "red",
			Me:           "purple",
			IRC:          "purple",
			Global:       "silver",
		},
		TextDir:      "text",
		ClientDB:     "clients.db",
		ArchiveDir:   "archives",
		WebPort:      8080,
		WebRateLimit: 60,
		WebTLS:       TLSConf{CertDir: "certs"},
		LogLevel:     "info",
	}
}

// LoadServerConf loads a config file. Format is picked by extension:
//   - .yaml / .yml -> YAML
//   - .toml        -> TOML
//
// Keys missing from the file keep their defaults.
func LoadServerConf(path string) (*ServerConf, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	sc := DefaultServerConf()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, sc); err != nil {
			return nil, fmt.Errorf("parsing YAML %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), sc); err != nil {
			return nil, fmt.Errorf("parsing TOML %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("config %s: unsupported format %q", path, ext)
	}

	// Resolve relative paths against the config file's directory.
	baseDir := filepath.Dir(path)
	sc.path = path
	for _, p := range []*string{
		&sc.TextDir, &sc.ClientDB, &sc.ArchiveDir,
		&sc.WebTLS.CertDir, &sc.WebTLS.CertFile, &sc.WebTLS.KeyFile,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(baseDir, *p)
		}
	}

	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return sc, nil
}

// Path returns the file the config was loaded from, or "" for defaults.
func (sc *ServerConf) Path() string {
	return sc.path
}

// Validate checks values that would otherwise fail at run time.
func (sc *ServerConf) Validate() error {
	if sc.Port <= 0 || sc.Port > 65535 {
		return fmt.Errorf("port %d out of range", sc.Port)
	}
	if sc.WebEnabled && (sc.WebPort <= 0 || sc.WebPort > 65535) {
		return fmt.Errorf("web_port %d out of range", sc.WebPort)
	}
	if sc.ArchiveInterval < 0 {
		return fmt.Errorf("archive_interval must not be negative")
	}
	if sc.MaxPlayers < 1 {
		return fmt.Errorf("max_players must be at least 1")
	}
	if _, err := sc.Palette(); err != nil {
		return err
	}
	return nil
}

// Palette builds the chat palette from the colors section.
func (sc *ServerConf) Palette() (*chat.Palette, error) {
	defaults := chat.DefaultAliases()
	var a chat.Aliases
	for _, c := range []struct {
		key  string
		val  string
		def  byte
		dest *byte
	}{
		{"sys", sc.Colors.Sys, defaults.Sys, &a.Sys},
		{"say", sc.Colors.Say, defaults.Say, &a.Say},
		{"pm", sc.Colors.PM, defaults.PM, &a.PM},
		{"announcement", sc.Colors.Announcement, defaults.Announcement, &a.Announcement},
		{"help", sc.Colors.Help, defaults.Help, &a.Help},
		{"warning", sc.Colors.Warning, defaults.Warning, &a.Warning},
		{"me", sc.Colors.Me, defaults.Me, &a.Me},
		{"irc", sc.Colors.IRC, defaults.IRC, &a.IRC},
		{"global", sc.Colors.Global, defaults.Global, &a.Global},
	} {
		if c.val == "" {
			*c.dest = c.def
			continue
		}
		color, ok := chat.ParseColor(c.val)
		if !ok {
			return nil, fmt.Errorf("colors.%s: unknown color %q", c.key, c.val)
		}
		*c.dest = color
	}
	return chat.NewPalette(a)
}

// HandshakeDeadline returns the handshake timeout as a duration.
func (sc *ServerConf) HandshakeDeadline() time.Duration {
	return time.Duration(sc.HandshakeTimeout) * time.Second
}

// NegotiateDeadline returns the extension negotiation timeout as a duration.
func (sc *ServerConf) NegotiateDeadline() time.Duration {
	return time.Duration(sc.NegotiateTimeout) * time.Second
}
