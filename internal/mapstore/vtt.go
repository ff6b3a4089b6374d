package mapstore

import (
	"strconv"
	"strings"

	"github.com/openvtt/gridveil/internal/geometry"
)

// ParseVTT extracts wall segments from a .vtt map description file. The file
// is a line-oriented text format with bracketed section headers; the [walls]
// section holds one segment per line as "x1,y1,x2,y2". Unknown sections and
// malformed lines are skipped rather than rejected, matching how map editors
// emit trailing junk.
func ParseVTT(data string) []geometry.Wall {
	walls := []geometry.Wall{}
	section := ""

	for _, line := range strings.Split(data, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			section = strings.ToLower(strings.Trim(trimmed, "[]"))
			continue
		}

		if section != "walls" {
			continue
		}

		fields := strings.Split(trimmed, ",")
		if len(fields) != 4 {
			continue
		}

		coords := make([]float64, 0, 4)
		ok := true
		for _, field := range fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				ok = false
				break
			}
			coords = append(coords, v)
		}
		if !ok {
			continue
		}

		walls = append(walls, geometry.Wall{X1: coords[0], Y1: coords[1], X2: coords[2], Y2: coords[3]})
	}

	return walls
}
