// Package command defines the intents callers queue for the bot and the
// queue they travel through.
package command

import "fmt"

// Command is one decoded queue item. The set of implementations is closed:
// Join, Gesture and Invalid.
type Command interface {
	Kind() string
	isCommand()
}

// Join asks the bot to join the squad identified by TeamCode.
type Join struct {
	TeamCode string
}

// Gesture asks the bot to play GestureCode towards every player in
// TargetIDs, in order.
type Gesture struct {
	TargetIDs   []string
	GestureCode int
}

// Invalid is what an unknown or malformed item decodes to. It is never
// routed to a handler.
type Invalid struct {
	Type string
	Err  error
}

const (
	KindJoin  = "join"
	KindEmote = "emote"
)

func (Join) Kind() string    { return KindJoin }
func (Gesture) Kind() string { return KindEmote }
func (c Invalid) Kind() string {
	return c.Type
}

func (Join) isCommand()    {}
func (Gesture) isCommand() {}
func (Invalid) isCommand() {}

func (c Invalid) Error() string {
	return fmt.Sprintf("invalid %q command: %v", c.Type, c.Err)
}

func (c Invalid) Unwrap() error { return c.Err }
