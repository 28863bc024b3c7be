package canvaslease

// objectLabel returns the display name for a shape variant.
func objectLabel(t ObjectType) string {
	switch t {
	case TypeRectangle:
		return "Rectangle"
	case TypeCircle:
		return "Circle"
	case TypeStar:
		return "Star"
	case TypeText:
		return "Text"
	default:
		return "Object"
	}
}

// describeCommand derives the human-readable label a command carries, e.g.
// "Move Rectangle". For property updates the changed properties are
// inspected in a fixed priority order so the label is deterministic.
func describeCommand(cmdType CommandType, objType ObjectType, before, after *Snapshot) string {
	var label = objectLabel(objType)

	switch cmdType {
	case CommandCreate:
		return "Create " + label
	case CommandDelete:
		return "Delete " + label
	case CommandMove:
		return "Move " + label
	case CommandResize:
		return "Resize " + label
	case CommandRotate:
		return "Rotate " + label
	}

	if before != nil && after != nil {
		switch {
		case before.Fill != after.Fill:
			return "Change Color"
		case before.ZIndex != after.ZIndex:
			return "Change Layer"
		case before.Text != after.Text:
			return "Edit Text"
		case before.FontSize != after.FontSize:
			return "Change Font Size"
		}
	}

	return "Update " + label
}
