package domain

import "time"

// Template engines supported by the renderer layer.
const (
	EngineSimple = "simple"
	EngineLiquid = "liquid"
)

// Template is a stored message body referenced by campaigns. Engine selects
// how the body is rendered; empty means simple placeholder substitution.
type Template struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Engine    string    `json:"engine" db:"engine"`
	Body      string    `json:"body" db:"body"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
