package pipeline

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/psantana5/regionocr/pkg/models"
)

// Canvas size of rendered region outlines
const svgCanvas = 1200

// CropPlaceholder is written in place of a real image crop
const CropPlaceholder = "mock crop placeholder"

// RenderSVG draws the outline of a region polygon with a label naming it
func RenderSVG(region models.Region) string {
	points := make([]string, 0, len(region.Polygon))
	for _, pt := range region.Polygon {
		points = append(points, formatCoord(pt[0])+","+formatCoord(pt[1]))
	}

	var label strings.Builder
	xml.EscapeText(&label, []byte(fmt.Sprintf("Region: %s (%s)", region.ID, region.Type)))

	return fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d">
  <polygon points="%s" fill="none" stroke="#222" stroke-width="3"/>
  <text x="20" y="40" font-size="28">%s</text>
</svg>
`, svgCanvas, svgCanvas, strings.Join(points, " "), label.String())
}

// formatCoord prints integral coordinates without a fractional part
func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
