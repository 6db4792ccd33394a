package protocol

import (
	"encoding/json"
	"fmt"
)

type Team string

const (
	TeamNone   Team = ""
	TeamTagger Team = "tagger"
	TeamRunner Team = "runner"
)

// Colour names used by early clients.
const (
	legacyTeamRed  = "red"
	legacyTeamBlue = "blue"
)

func (t Team) Opposite() Team {
	switch t {
	case TeamTagger:
		return TeamRunner
	case TeamRunner:
		return TeamTagger
	default:
		return TeamNone
	}
}

func (t Team) IsAssigned() bool {
	return t == TeamTagger || t == TeamRunner
}

func (t Team) String() string {
	if t == TeamNone {
		return "unassigned"
	}
	return string(t)
}

func (t *Team) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch raw {
	case string(TeamTagger), legacyTeamRed:
		*t = TeamTagger
	case string(TeamRunner), legacyTeamBlue:
		*t = TeamRunner
	case "":
		*t = TeamNone
	default:
		return fmt.Errorf("unknown team: %q", raw)
	}
	return nil
}
