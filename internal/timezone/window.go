package timezone

// Window is a daily [Start, End) wall-clock interval. When End is earlier than
// Start the window wraps past midnight.
type Window struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// ConvertWindow expresses a window defined in one timezone (typically the
// tenant's business hours) in another (typically the prospect's).
func ConvertWindow(start, end, fromName, toName string) Window {
	return Window{
		Start: Convert(start, fromName, toName),
		End:   Convert(end, fromName, toName),
	}
}

// WrapsMidnight reports whether the window crosses 00:00.
func (w Window) WrapsMidnight() bool {
	s, ok1 := parseClock(w.Start)
	e, ok2 := parseClock(w.End)
	return ok1 && ok2 && e < s
}

// Contains reports whether hhmm falls inside the window. An empty window
// (Start == End) contains nothing; malformed bounds or input contain nothing.
func (w Window) Contains(hhmm string) bool {
	s, ok := parseClock(w.Start)
	if !ok {
		return false
	}
	e, ok := parseClock(w.End)
	if !ok {
		return false
	}
	t, ok := parseClock(hhmm)
	if !ok {
		return false
	}
	if s <= e {
		return t >= s && t < e
	}
	return t >= s || t < e
}
