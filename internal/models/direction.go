package models

import "fmt"

// Direction selects which link edges a traversal follows.
type Direction string

// Traversal directions.
const (
	DirIncoming Direction = "incoming"
	DirOutgoing Direction = "outgoing"
	DirBoth     Direction = "both"
)

// ParseDirection validates a raw direction string. Empty defaults to both.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case DirIncoming, DirOutgoing, DirBoth:
		return Direction(s), nil
	case "":
		return DirBoth, nil
	}
	return "", fmt.Errorf("unknown direction %q", s)
}
