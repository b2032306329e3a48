package game

// Vec is a position or per-frame velocity in stage pixels.
type Vec struct {
	X float64 `msgpack:"x"`
	Y float64 `msgpack:"y"`
}

func (v Vec) Add(o Vec) Vec {
	return Vec{X: v.X + o.X, Y: v.Y + o.Y}
}

// Player is one avatar on the stage.
type Player struct {
	ID     string `msgpack:"id"`
	Emoji  int    `msgpack:"emoji"`
	Status string `msgpack:"status,omitempty"`
	Pos    Vec    `msgpack:"pos"`
	Accel  Vec    `msgpack:"accel"`
}
