package engine

import (
	"strconv"
	"strings"
)

// EventType is the kind of a UCI line sent by an engine.
type EventType int

const (
	EventUnknown EventType = iota
	EventID
	EventUCIOK
	EventReadyOK
	EventInfo
	EventBestMove
)

// Event is a parsed engine output line.
type Event struct {
	Type   EventType
	Key    string
	Value  string
	Move   string
	Ponder string
	Raw    string
}

// ParseLine converts a raw engine line into an event. Blank lines are
// reported as EventUnknown.
func ParseLine(line string) Event {
	line = strings.TrimSpace(line)
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Event{Type: EventUnknown, Raw: line}
	}
	switch fields[0] {
	case "id":
		if len(fields) < 3 {
			return Event{Type: EventUnknown, Raw: line}
		}
		return Event{Type: EventID, Key: fields[1], Value: strings.Join(fields[2:], " "), Raw: line}
	case "uciok":
		return Event{Type: EventUCIOK, Raw: line}
	case "readyok":
		return Event{Type: EventReadyOK, Raw: line}
	case "bestmove":
		e := Event{Type: EventBestMove, Raw: line}
		if len(fields) >= 2 {
			e.Move = fields[1]
		}
		if len(fields) >= 4 && fields[2] == "ponder" {
			e.Ponder = fields[3]
		}
		return e
	case "info":
		return Event{Type: EventInfo, Raw: line}
	default:
		return Event{Type: EventUnknown, Raw: line}
	}
}

// Info is the part of an "info" line the gateway cares about.
type Info struct {
	Depth    int
	Score    Score
	HasScore bool
	PV       []string
}

// ParseInfo extracts depth, score and principal variation from an info line.
// Bound scores (lowerbound/upperbound) are reported like exact ones.
func ParseInfo(line string) Info {
	var info Info
	fields := strings.Fields(line)
	for i := 1; i < len(fields); i++ {
		switch fields[i] {
		case "depth":
			if i+1 < len(fields) {
				if n, err := strconv.Atoi(fields[i+1]); err == nil {
					info.Depth = n
				}
				i++
			}
		case "score":
			if i+2 < len(fields) {
				n, err := strconv.Atoi(fields[i+2])
				if err == nil {
					switch fields[i+1] {
					case "cp":
						info.Score = Score{Centipawns: n}
						info.HasScore = true
					case "mate":
						info.Score = Score{Mate: n, IsMate: true}
						info.HasScore = true
					}
				}
				i += 2
			}
		case "pv":
			info.PV = append([]string(nil), fields[i+1:]...)
			return info
		case "string":
			return info
		}
	}
	return info
}
