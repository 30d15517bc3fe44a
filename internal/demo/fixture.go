package demo

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/TheOriginalAyaka/discord-package-app/internal/engine"
)

//go:embed fixture.json
var fixtureJSON []byte

// Fixture is the sample data played back by demo sessions.
type Fixture struct {
	Primary   engine.PrimaryResult   `json:"userData"`
	Analytics engine.AnalyticsResult `json:"eventCount"`
}

// LoadFixture parses the embedded sample data.
func LoadFixture() (Fixture, error) {
	var f Fixture
	if err := json.Unmarshal(fixtureJSON, &f); err != nil {
		return Fixture{}, fmt.Errorf("parsing demo fixture: %w", err)
	}
	return f, nil
}

// MustFixture is LoadFixture for the embedded data, which is known to be valid.
func MustFixture() Fixture {
	f, err := LoadFixture()
	if err != nil {
		panic(err)
	}
	return f
}
