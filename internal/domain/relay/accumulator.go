package relay

// Accumulator holds the latest full assistant text of a turn. The upstream sends
// cumulative text, so every update replaces the previous value.
type Accumulator struct {
	text    string
	updates int
}

// Replace stores text as the current accumulation.
func (a *Accumulator) Replace(text string) {
	a.text = text
	a.updates++
}

// Text returns the current accumulation.
func (a *Accumulator) Text() string {
	return a.text
}

// Updates counts Replace calls.
func (a *Accumulator) Updates() int {
	return a.updates
}
