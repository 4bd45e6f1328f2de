package node

import "fmt"

// Health is the reported health of an instance or the rolled-up health of a
// service.
type Health string

const (
	Unknown   Health = "Unknown"
	Healthy   Health = "Healthy"
	Unhealthy Health = "Unhealthy"
)

// ParseHealth converts the wire value into a Health.
func ParseHealth(s string) (Health, error) {
	h := Health(s)
	if !h.Valid() {
		return "", fmt.Errorf("unknown health status %q", s)
	}
	return h, nil
}

// Valid reports whether h is one of the known statuses.
func (h Health) Valid() bool {
	switch h {
	case Unknown, Healthy, Unhealthy:
		return true
	}
	return false
}

// Colors is the fill and border used to draw an entity.
type Colors struct {
	Background string `json:"background"`
	Border     string `json:"border"`
}

// Highlight colors a recently changed entity.
var Highlight = Colors{Background: "#ff6666", Border: "#ff3333"}

// Colors returns the palette for h.
func (h Health) Colors() Colors {
	switch h {
	case Unknown:
		return Colors{Background: "#fff3cd", Border: "#ffeeba"}
	case Healthy:
		return Colors{Background: "#d4edda", Border: "#c3e6cb"}
	case Unhealthy:
		return Colors{Background: "#f8d7da", Border: "#f5c6cb"}
	default:
		return Colors{Background: "#d6d8d9", Border: "#c6c8ca"}
	}
}
