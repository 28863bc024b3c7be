package canvaslease

// Point is a canvas coordinate.
type Point struct {
	X float64
	Y float64
}

// Rect is an axis-aligned rectangle with a top-left origin.
type Rect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// RectFromPoints returns the normalized rectangle spanned by two corners,
// in any drag direction.
func RectFromPoints(a, b Point) Rect {
	var r = Rect{X: a.X, Y: a.Y, Width: b.X - a.X, Height: b.Y - a.Y}
	if r.Width < 0 {
		r.X += r.Width
		r.Width = -r.Width
	}
	if r.Height < 0 {
		r.Y += r.Height
		r.Height = -r.Height
	}
	return r
}

// Contains reports whether the other rectangle lies entirely within r.
func (r Rect) Contains(other Rect) bool {
	return other.X >= r.X &&
		other.Y >= r.Y &&
		other.X+other.Width <= r.X+r.Width &&
		other.Y+other.Height <= r.Y+r.Height
}

// Intersects reports whether the two rectangles overlap at all.
func (r Rect) Intersects(other Rect) bool {
	return other.X < r.X+r.Width &&
		other.X+other.Width > r.X &&
		other.Y < r.Y+r.Height &&
		other.Y+other.Height > r.Y
}

// textLineHeight derives a text object's height from its font size; height
// is never stored for text.
const textLineHeight = 1.2

// BoundingBox returns the axis-aligned bounding box of an object.
// Rectangles and text anchor at their top-left corner; circles and stars
// anchor at their center.
func BoundingBox(o *CanvasObject) Rect {
	switch o.Type {
	case TypeCircle:
		return Rect{
			X:      o.X - o.Radius,
			Y:      o.Y - o.Radius,
			Width:  2 * o.Radius,
			Height: 2 * o.Radius,
		}
	case TypeStar:
		return Rect{
			X:      o.X - o.OuterRadius,
			Y:      o.Y - o.OuterRadius,
			Width:  2 * o.OuterRadius,
			Height: 2 * o.OuterRadius,
		}
	case TypeText:
		return Rect{
			X:      o.X,
			Y:      o.Y,
			Width:  o.Width,
			Height: o.FontSize * textLineHeight,
		}
	default:
		return Rect{X: o.X, Y: o.Y, Width: o.Width, Height: o.Height}
	}
}
