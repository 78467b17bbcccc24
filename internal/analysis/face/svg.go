package face

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

// ContentType is the media type written by RenderSVG.
const ContentType = "image/svg+xml"

// RenderSVG writes the frame as a standalone SVG document.
func RenderSVG(w io.Writer, f VisualFrame) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 100 100" style="background:#000;filter:drop-shadow(0 0 10px %s)">`, f.Color)
	bw.WriteString(`<defs><filter id="glow-filter" x="-50%" y="-50%" width="200%" height="200%">`)
	bw.WriteString(`<feGaussianBlur stdDeviation="2.5" result="coloredBlur"/>`)
	bw.WriteString(`<feMerge><feMergeNode in="coloredBlur"/><feMergeNode in="SourceGraphic"/></feMerge>`)
	bw.WriteString(`</filter>`)
	bw.WriteString(`<pattern id="scanlines" x="0" y="0" width="100" height="2" patternUnits="userSpaceOnUse">`)
	bw.WriteString(`<rect x="0" y="0" width="100" height="1" fill="black" opacity="0.1"/></pattern></defs>`)

	bw.WriteString(`<g filter="url(#glow-filter)">`)
	writeBrow(bw, 25, 35, f.LeftBrow, f.Color)
	writeBrow(bw, 55, 65, f.RightBrow, f.Color)
	writeEye(bw, 28, 35, f.LeftEye, f.Color)
	writeEye(bw, 58, 65, f.RightEye, f.Color)
	writeMouth(bw, f.Mouth, f.Color)
	bw.WriteString(`</g>`)

	bw.WriteString(`<rect x="0" y="0" width="100" height="100" fill="url(#scanlines)" style="mix-blend-mode:overlay"/>`)
	bw.WriteString(`</svg>`)

	return bw.Flush()
}

func writeBrow(w *bufio.Writer, x, pivotX float64, b Brow, color string) {
	fmt.Fprintf(w, `<rect x="%s" y="%s" width="20" height="3" rx="1.5" fill="%s" transform="rotate(%s, %s, %s)"/>`,
		num(x), num(b.Y), color, num(b.Rotate), num(pivotX), num(b.Y))
}

func writeEye(w *bufio.Writer, x, pivotX float64, e Eye, color string) {
	fmt.Fprintf(w, `<rect x="%s" y="%s" width="14" height="%s" rx="4" fill="%s" transform="rotate(%s, %s, 40)"/>`,
		num(x), num(e.Y-e.Height/2), num(e.Height), color, num(e.Rotate), num(pivotX))
}

func writeMouth(w *bufio.Writer, m Mouth, color string) {
	if m.Ellipse != nil {
		fmt.Fprintf(w, `<ellipse cx="%s" cy="%s" rx="%s" ry="%s" fill="none" stroke="%s" stroke-width="%s"/>`,
			num(m.Ellipse.CX), num(m.Ellipse.CY), num(m.Ellipse.RX), num(m.Ellipse.RY), color, num(m.StrokeWidth))
		return
	}
	fmt.Fprintf(w, `<path d="%s" stroke="%s" stroke-width="%s" fill="none" stroke-linecap="round"/>`,
		m.Path, color, num(m.StrokeWidth))
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
