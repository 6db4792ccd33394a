package launcher

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
)

// ServerInfo is the command line of the rendezvous server.
type ServerInfo struct {
	Addr           string
	StunUrls       []string
	TurnUrls       []string
	TurnUsername   string
	TurnCredential string `json:"-"`
	ForceTurnRelay bool
	StaleAfter     time.Duration
	LogLevel       int
	LogPath        string
}

func NewServerInfoFromFlags() *ServerInfo {
	info, err := ParseServerInfo(os.Args[1:], os.Getenv)
	if err != nil {
		os.Exit(2)
	}
	return info
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func ParseServerInfo(args []string, getenv func(string) string) (*ServerInfo, error) {
	fs := flag.NewFlagSet("rendezvous", flag.ContinueOnError)

	port := envString(getenv, "PORT", "8080")
	addr := fs.String(
		"addr", envString(getenv, "RENDEZVOUS_ADDR", ":"+port), "The address to listen on")
	stunUrls := fs.String(
		"stun-urls", envString(getenv, "RENDEZVOUS_STUN_URLS", "stun:stun.l.google.com:19302"), "Comma separated STUN urls")
	turnUrls := fs.String(
		"turn-urls", envString(getenv, "RENDEZVOUS_TURN_URLS", ""), "Comma separated TURN urls")
	turnUsername := fs.String(
		"turn-username", envString(getenv, "RENDEZVOUS_TURN_USERNAME", ""), "The TURN username")
	turnCredential := fs.String(
		"turn-credential", envString(getenv, "RENDEZVOUS_TURN_CREDENTIAL", ""), "The TURN credential")
	forceTurnRelay := fs.Bool(
		"force-turn-relay", envBool(getenv, "RENDEZVOUS_FORCE_TURN_RELAY", false), "Tell clients to relay through TURN")
	staleAfter := fs.Duration(
		"stale-after", 30*time.Second, "Free an id whose owner stopped listening for this long")
	logLevel := fs.Int(
		"log-level", envInt(getenv, "RENDEZVOUS_LOG_LEVEL", 0), "Log level: -1 - Debug, 0 - Info, 1 - Warn, 2 - Error")
	logPath := fs.String(
		"log-path", envString(getenv, "RENDEZVOUS_LOG_PATH", ""), "Directory to the logs")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	return &ServerInfo{
		Addr:           *addr,
		StunUrls:       splitList(*stunUrls),
		TurnUrls:       splitList(*turnUrls),
		TurnUsername:   *turnUsername,
		TurnCredential: *turnCredential,
		ForceTurnRelay: *forceTurnRelay,
		StaleAfter:     *staleAfter,
		LogLevel:       *logLevel,
		LogPath:        *logPath,
	}, nil
}

func (c *ServerInfo) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("--addr is required and cannot be empty")
	}

	if len(c.TurnUrls) > 0 && (c.TurnUsername == "" || c.TurnCredential == "") {
		return fmt.Errorf("--turn-username and --turn-credential are required with --turn-urls")
	}

	if c.ForceTurnRelay && len(c.TurnUrls) == 0 {
		return fmt.Errorf("--force-turn-relay needs at least one --turn-urls entry")
	}

	return nil
}
