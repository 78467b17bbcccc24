package face

import "github.com/zhouzirui/robot-face/backend/internal/model/emotion"

// Eye 描述单只眼睛的几何形状，坐标基于 100x100 的 viewBox。
type Eye struct {
	RY     float64 `json:"ry"`
	Height float64 `json:"height"`
	Y      float64 `json:"y"`
	Rotate float64 `json:"rotate"`
}

// Brow 描述眉毛的纵向位置与旋转角度。
type Brow struct {
	Y      float64 `json:"y"`
	Rotate float64 `json:"rotate"`
}

// Ellipse 用于惊讶时的 O 形嘴。
type Ellipse struct {
	CX float64 `json:"cx"`
	CY float64 `json:"cy"`
	RX float64 `json:"rx"`
	RY float64 `json:"ry"`
}

// Mouth 为 SVG path 描述，Ellipse 非空时改用椭圆绘制。
type Mouth struct {
	Path        string   `json:"path,omitempty"`
	StrokeWidth float64  `json:"strokeWidth"`
	Ellipse     *Ellipse `json:"ellipse,omitempty"`
}

// VisualFrame 是由情绪与眨眼状态推导出的一帧画面，不做持久化。
type VisualFrame struct {
	Emotion   emotion.Emotion `json:"emotion"`
	Blinking  bool            `json:"blinking"`
	LeftEye   Eye             `json:"leftEye"`
	RightEye  Eye             `json:"rightEye"`
	LeftBrow  Brow            `json:"leftBrow"`
	RightBrow Brow            `json:"rightBrow"`
	Mouth     Mouth           `json:"mouth"`
	Color     string          `json:"color"`
}

// ClosedEye 是眨眼时两只眼睛的统一形状。
var ClosedEye = Eye{RY: 1, Height: 2, Y: 40}

const browBaseY = 20

// Frame 根据情绪与眨眼标记计算画面。未知情绪使用 NEUTRAL 的几何形状。
func Frame(e emotion.Emotion, blinking bool) VisualFrame {
	geo := lookup(e)

	frame := VisualFrame{
		Emotion:   e,
		Blinking:  blinking,
		LeftEye:   geo.leftEye,
		RightEye:  geo.rightEye,
		LeftBrow:  geo.leftBrow,
		RightBrow: geo.rightBrow,
		Mouth:     geo.mouth,
		Color:     geo.color,
	}
	if blinking {
		frame.LeftEye = ClosedEye
		frame.RightEye = ClosedEye
	}
	return frame
}

type geometry struct {
	leftEye, rightEye   Eye
	leftBrow, rightBrow Brow
	mouth               Mouth
	color               string
}

func lookup(e emotion.Emotion) geometry {
	switch e {
	case emotion.Happy:
		return geometry{
			leftEye:   Eye{RY: 10, Height: 20, Y: 35, Rotate: -10},
			rightEye:  Eye{RY: 10, Height: 20, Y: 35, Rotate: 10},
			leftBrow:  Brow{Y: browBaseY - 5, Rotate: -10},
			rightBrow: Brow{Y: browBaseY - 5, Rotate: 10},
			mouth:     Mouth{Path: "M 35,75 Q 50,85 65,75", StrokeWidth: 4},
			color:     "#44ff44",
		}
	case emotion.Sad:
		return geometry{
			leftEye:   Eye{RY: 8, Height: 16, Y: 45, Rotate: 20},
			rightEye:  Eye{RY: 8, Height: 16, Y: 45, Rotate: -20},
			leftBrow:  Brow{Y: browBaseY, Rotate: -20},
			rightBrow: Brow{Y: browBaseY, Rotate: 20},
			mouth:     Mouth{Path: "M 35,80 Q 50,70 65,80", StrokeWidth: 4},
			color:     "#4488ff",
		}
	case emotion.Angry:
		return geometry{
			leftEye:   Eye{RY: 5, Height: 15, Y: 40, Rotate: 20},
			rightEye:  Eye{RY: 5, Height: 15, Y: 40, Rotate: -20},
			leftBrow:  Brow{Y: browBaseY + 5, Rotate: 25},
			rightBrow: Brow{Y: browBaseY + 5, Rotate: -25},
			mouth:     Mouth{Path: "M 40,80 L 60,80", StrokeWidth: 3},
			color:     "#ff4444",
		}
	case emotion.Surprised:
		return geometry{
			leftEye:   Eye{RY: 18, Height: 36, Y: 32},
			rightEye:  Eye{RY: 18, Height: 36, Y: 32},
			leftBrow:  Brow{Y: browBaseY - 15, Rotate: -5},
			rightBrow: Brow{Y: browBaseY - 15, Rotate: 5},
			mouth:     Mouth{StrokeWidth: 3, Ellipse: &Ellipse{CX: 50, CY: 80, RX: 6, RY: 8}},
			color:     "#ffcc00",
		}
	case emotion.Thinking:
		return geometry{
			leftEye:   Eye{RY: 2, Height: 4, Y: 40},
			rightEye:  Eye{RY: 12, Height: 24, Y: 38, Rotate: -15},
			leftBrow:  Brow{Y: browBaseY - 5},
			rightBrow: Brow{Y: browBaseY - 5, Rotate: 15},
			mouth:     Mouth{Path: "M 40,80 L 60,80", StrokeWidth: 3},
			color:     "#ffff44",
		}
	case emotion.Loving:
		return geometry{
			leftEye:   Eye{RY: 10, Height: 20, Y: 35, Rotate: -10},
			rightEye:  Eye{RY: 10, Height: 20, Y: 35, Rotate: 10},
			leftBrow:  Brow{Y: browBaseY - 5, Rotate: -10},
			rightBrow: Brow{Y: browBaseY - 5, Rotate: 10},
			mouth:     Mouth{Path: "M 35,75 Q 50,85 65,75", StrokeWidth: 4},
			color:     "#ff69b4",
		}
	case emotion.Confused:
		return geometry{
			leftEye:   Eye{RY: 12, Height: 24, Y: 38},
			rightEye:  Eye{RY: 4, Height: 8, Y: 40},
			leftBrow:  Brow{Y: browBaseY - 5, Rotate: -15},
			rightBrow: Brow{Y: browBaseY - 5, Rotate: 20},
			mouth:     Mouth{Path: "M 40,80 Q 50,75 60,82", StrokeWidth: 3},
			color:     "#da70d6",
		}
	case emotion.Skeptical:
		return geometry{
			leftEye:   Eye{RY: 4, Height: 8, Y: 40},
			rightEye:  Eye{RY: 4, Height: 8, Y: 40},
			leftBrow:  Brow{Y: browBaseY},
			rightBrow: Brow{Y: browBaseY - 10, Rotate: 15},
			mouth:     Mouth{Path: "M 40,80 L 60,78", StrokeWidth: 3},
			color:     "#ffa500",
		}
	case emotion.Tired:
		return geometry{
			leftEye:   Eye{RY: 2, Height: 4, Y: 45, Rotate: 10},
			rightEye:  Eye{RY: 2, Height: 4, Y: 45, Rotate: -10},
			leftBrow:  Brow{Y: browBaseY, Rotate: -10},
			rightBrow: Brow{Y: browBaseY, Rotate: 10},
			mouth:     Mouth{Path: "M 45,85 A 5 5 0 1 1 55 85", StrokeWidth: 3},
			color:     "#a9a9a9",
		}
	case emotion.Excited:
		return geometry{
			leftEye:   Eye{RY: 15, Height: 30, Y: 35},
			rightEye:  Eye{RY: 15, Height: 30, Y: 35},
			leftBrow:  Brow{Y: browBaseY - 15, Rotate: -20},
			rightBrow: Brow{Y: browBaseY - 15, Rotate: 20},
			mouth:     Mouth{Path: "M 35,75 Q 50,95 65,75", StrokeWidth: 5},
			color:     "#00ffff",
		}
	case emotion.Neutral, emotion.Blink:
		return neutralGeometry()
	default:
		return neutralGeometry()
	}
}

func neutralGeometry() geometry {
	return geometry{
		leftEye:   Eye{RY: 12, Height: 24, Y: 38},
		rightEye:  Eye{RY: 12, Height: 24, Y: 38},
		leftBrow:  Brow{Y: browBaseY},
		rightBrow: Brow{Y: browBaseY},
		mouth:     Mouth{Path: "M 35,78 L 65,78", StrokeWidth: 4},
		color:     "#ccffff",
	}
}
