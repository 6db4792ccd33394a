// Package launcher reads the command line of the peertag binaries. Flag
// defaults come from the environment, optionally loaded from a .env file.
package launcher

import (
	"errors"
	"flag"
	"fmt"
	"github.com/joho/godotenv"
	"os"
	"peertag/util"
	"strconv"
	"strings"
	"time"
)

const (
	ModeHost = "host"
	ModeJoin = "join"
)

type Info struct {
	LocalId           string
	UserName          string
	Mode              string
	RoomId            string
	ApiRoot           string
	ForceTurnRelay    bool
	ConsentLogSharing bool
	Autopilot         bool
	TickRate          int
	Duration          time.Duration
	LogLevel          int
	LogPath           string
}

// LoadEnv loads .env files into the process environment. A missing file is
// not an error.
func LoadEnv(files ...string) error {
	err := godotenv.Load(files...)
	if err != nil && errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func envString(getenv func(string) string, key, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(getenv func(string) string, key string, def bool) bool {
	if v, err := strconv.ParseBool(getenv(key)); err == nil {
		return v
	}
	return def
}

func envInt(getenv func(string) string, key string, def int) int {
	if v, err := strconv.Atoi(getenv(key)); err == nil {
		return v
	}
	return def
}

func NewInfoFromFlags() *Info {
	info, err := ParseInfo(os.Args[1:], os.Getenv)
	if err != nil {
		// flag.ExitOnError already reported the problem.
		os.Exit(2)
	}
	return info
}

// ParseInfo reads the client flags from args with defaults from getenv.
func ParseInfo(args []string, getenv func(string) string) (*Info, error) {
	fs := flag.NewFlagSet("peertag", flag.ContinueOnError)

	localId := fs.String(
		"local-id", envString(getenv, "PEERTAG_LOCAL_ID", ""), "The ID of this peer, generated when empty")
	userName := fs.String(
		"user-name", envString(getenv, "PEERTAG_USER_NAME", ""), "The name shown to the opponent")
	mode := fs.String(
		"mode", envString(getenv, "PEERTAG_MODE", ModeHost), "Either 'host' to create a room or 'join' to join one")
	roomId := fs.String(
		"room-id", envString(getenv, "PEERTAG_ROOM_ID", ""), "The room to create or join; hosts default to the local id")
	apiRoot := fs.String(
		"api-root", envString(getenv, "PEERTAG_API_ROOT", "http://localhost:8080"), "The root uri of the rendezvous api")
	forceTurnRelay := fs.Bool(
		"force-turn-relay", envBool(getenv, "PEERTAG_FORCE_TURN_RELAY", false), "Force TURN relay using WebRTC")
	consentLogSharing := fs.Bool(
		"consent-log-sharing", envBool(getenv, "PEERTAG_CONSENT_LOG_SHARING", false), "Consent log sharing")
	autopilot := fs.Bool(
		"autopilot", envBool(getenv, "PEERTAG_AUTOPILOT", false), "Let the computer steer the local player")
	tickRate := fs.Int(
		"tick-rate", envInt(getenv, "PEERTAG_TICK_RATE", 60), "Simulation ticks per second")
	duration := fs.Duration(
		"duration", 0, "Stop after this long; zero runs until interrupted")
	logLevel := fs.Int(
		"log-level", envInt(getenv, "PEERTAG_LOG_LEVEL", 0), "Log level: -1 - Debug, 0 - Info, 1 - Warn, 2 - Error")
	logPath := fs.String(
		"log-path",
		envString(getenv, "PEERTAG_LOG_PATH", ""),
		"Directory to the logs, otherwise will use working directory and add 'logs' to that path")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	info := &Info{
		LocalId:           *localId,
		UserName:          strings.TrimSpace(*userName),
		Mode:              strings.ToLower(*mode),
		RoomId:            strings.TrimSpace(*roomId),
		ApiRoot:           strings.TrimRight(*apiRoot, "/"),
		ForceTurnRelay:    *forceTurnRelay,
		ConsentLogSharing: *consentLogSharing,
		Autopilot:         *autopilot,
		TickRate:          *tickRate,
		Duration:          *duration,
		LogLevel:          *logLevel,
		LogPath:           *logPath,
	}
	if info.LocalId == "" {
		info.LocalId = util.NewToken()
	}
	return info, nil
}

func (c *Info) Validate() error {
	if !util.IsValidToken(c.LocalId) {
		return fmt.Errorf("--local-id %q may only contain letters, digits, '-' and '_'", c.LocalId)
	}

	switch c.Mode {
	case ModeHost:
	case ModeJoin:
		if c.RoomId == "" {
			return fmt.Errorf("--room-id is required when joining")
		}
	default:
		return fmt.Errorf("--mode must be %q or %q, got %q", ModeHost, ModeJoin, c.Mode)
	}

	if c.RoomId != "" && !util.IsValidToken(c.RoomId) {
		return fmt.Errorf("--room-id %q may only contain letters, digits, '-' and '_'", c.RoomId)
	}

	if c.ApiRoot == "" {
		return fmt.Errorf("--api-root is required and cannot be empty")
	}

	if c.TickRate <= 0 || c.TickRate > 1000 {
		return fmt.Errorf("--tick-rate must be between 1 and 1000")
	}

	return nil
}
