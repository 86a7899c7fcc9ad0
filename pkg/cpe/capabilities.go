package cpe

import (
	"maps"
	"slices"
)

// Capabilities records what one connection negotiated. It is filled once by
// Negotiate and read-only afterwards.
type Capabilities struct {
	AppName        string // client software, from its ExtInfo
	ExtensionCount int    // entries the client declared

	// Extensions holds the matched extensions and their versions.
	Extensions map[string]int32

	ClickDistance       bool
	CustomBlocks        bool
	HeldBlock           bool
	EmoteFix            bool
	TextHotKey          bool
	ExtPlayerList       bool
	EnvColors           bool
	SelectionCuboid     bool
	BlockPermissions    bool
	ChangeModel         bool
	EnvMapAppearance    bool
	EnvWeatherType      bool
	HackControl         bool
	MessageTypes        bool
	PlayerClick         bool
	LongerMessages      bool
	FullCP437           bool
	BlockDefinitions    bool
	BlockDefinitionsExt bool
	TextColors          bool
	BulkBlockUpdate     bool
	EnvMapAspect        bool
	TwoWayPing          bool
	InstantMOTD         bool

	// CustomBlockLevel is the agreed CustomBlocks support level.
	CustomBlockLevel byte
}

// NewCapabilities returns an empty set, as used for vanilla clients.
func NewCapabilities() *Capabilities {
	return &Capabilities{Extensions: make(map[string]int32)}
}

// Supports reports whether the named extension was matched.
func (c *Capabilities) Supports(name string) bool {
	_, ok := c.Extensions[name]
	return ok
}

// UsesCustomBlocks reports whether custom blocks may be sent.
func (c *Capabilities) UsesCustomBlocks() bool {
	return c.CustomBlocks && c.CustomBlockLevel >= 1
}

// Names returns the matched extension names, sorted.
func (c *Capabilities) Names() []string {
	return slices.Sorted(maps.Keys(c.Extensions))
}

func (c *Capabilities) enable(e Extension) {
	c.Extensions[e.Name] = e.Version
	if set, ok := flags[e.Name]; ok {
		set(c)
	}
}
