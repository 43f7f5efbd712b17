package dom

// EventClass is the DOM constructor used to build an event.
type EventClass string

const (
	ClassEvent       EventClass = "Event"
	ClassInput       EventClass = "InputEvent"
	ClassKeyboard    EventClass = "KeyboardEvent"
	ClassMouse       EventClass = "MouseEvent"
	ClassComposition EventClass = "CompositionEvent"
)

// Event describes a synthetic event. The JSON form is what the live backend
// hands to its in-page constructor.
type Event struct {
	Class      EventClass `json:"class"`
	Type       string     `json:"type"`
	Bubbles    bool       `json:"bubbles"`
	Cancelable bool       `json:"cancelable"`
	Composed   bool       `json:"composed"`
	Data       string     `json:"data,omitempty"`
	InputType  string     `json:"inputType,omitempty"`
	Key        string     `json:"key,omitempty"`
	Code       string     `json:"code,omitempty"`
	KeyCode    int        `json:"keyCode,omitempty"`
	Ctrl       bool       `json:"ctrlKey,omitempty"`
}

// Plain builds a bubbling, cancelable Event of type typ.
func Plain(typ string) Event {
	return Event{Class: ClassEvent, Type: typ, Bubbles: true, Cancelable: true}
}

// Input builds an InputEvent carrying data as inserted text.
func Input(data string) Event {
	return Event{Class: ClassInput, Type: "input", Bubbles: true, Cancelable: true, Composed: true,
		Data: data, InputType: "insertText"}
}

// Mouse builds a MouseEvent of type typ.
func Mouse(typ string) Event {
	return Event{Class: ClassMouse, Type: typ, Bubbles: true, Cancelable: true, Composed: true}
}

// Key builds a KeyboardEvent for the Enter key (keyCode/which 13).
func Key(typ string, ctrl bool) Event {
	return Event{Class: ClassKeyboard, Type: typ, Bubbles: true, Cancelable: true, Composed: true,
		Key: "Enter", Code: "Enter", KeyCode: 13, Ctrl: ctrl}
}

// CompositionEnd closes an IME composition so the host stops buffering.
func CompositionEnd(data string) Event {
	return Event{Class: ClassComposition, Type: "compositionend", Bubbles: true, Cancelable: true,
		Composed: true, Data: data}
}
