package events

// Text carries the complete written answer for a query cycle.
type Text struct {
	Base
	Content string
}

// NewText creates a text answer event.
func NewText(content string) Text {
	return Text{Base: NewBase(KindText), Content: content}
}
