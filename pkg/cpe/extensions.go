// Package cpe negotiates Classic Protocol Extension support with a client
// and records the result as a Capabilities set.
package cpe

// Extension is one protocol extension the server can speak.
type Extension struct {
	Name    string
	Version int32
}

// Extension names.
const (
	ClickDistance       = "ClickDistance"
	CustomBlocks        = "CustomBlocks"
	HeldBlock           = "HeldBlock"
	EmoteFix            = "EmoteFix"
	TextHotKey          = "TextHotKey"
	ExtPlayerList       = "ExtPlayerList"
	EnvColors           = "EnvColors"
	SelectionCuboid     = "SelectionCuboid"
	BlockPermissions    = "BlockPermissions"
	ChangeModel         = "ChangeModel"
	EnvMapAppearance    = "EnvMapAppearance"
	EnvWeatherType      = "EnvWeatherType"
	HackControl         = "HackControl"
	MessageTypes        = "MessageTypes"
	PlayerClick         = "PlayerClick"
	LongerMessages      = "LongerMessages"
	FullCP437           = "FullCP437"
	BlockDefinitions    = "BlockDefinitions"
	BlockDefinitionsExt = "BlockDefinitionsExt"
	TextColors          = "TextColors"
	BulkBlockUpdate     = "BulkBlockUpdate"
	EnvMapAspect        = "EnvMapAspect"
	TwoWayPing          = "TwoWayPing"
	InstantMOTD         = "InstantMOTD"
)

// MaxCustomBlockLevel is the highest CustomBlocks support level the server
// offers.
const MaxCustomBlockLevel byte = 1

// ServerExtensions lists every extension the server announces, in the order
// it sends them.
var ServerExtensions = []Extension{
	{ClickDistance, 1},
	{CustomBlocks, 1},
	{HeldBlock, 1},
	{EmoteFix, 1},
	{TextHotKey, 1},
	{ExtPlayerList, 2},
	{EnvColors, 1},
	{SelectionCuboid, 1},
	{BlockPermissions, 1},
	{ChangeModel, 1},
	{EnvMapAppearance, 2},
	{EnvWeatherType, 1},
	{HackControl, 1},
	{MessageTypes, 1},
	{PlayerClick, 1},
	{LongerMessages, 1},
	{FullCP437, 1},
	{BlockDefinitions, 1},
	{BlockDefinitionsExt, 2},
	{TextColors, 1},
	{BulkBlockUpdate, 1},
	{EnvMapAspect, 1},
	{TwoWayPing, 1},
	{InstantMOTD, 1},
}

// flags maps an extension name to the Capabilities field it turns on.
var flags = map[string]func(*Capabilities){
	ClickDistance:       func(c *Capabilities) { c.ClickDistance = true },
	CustomBlocks:        func(c *Capabilities) { c.CustomBlocks = true },
	HeldBlock:           func(c *Capabilities) { c.HeldBlock = true },
	EmoteFix:            func(c *Capabilities) { c.EmoteFix = true },
	TextHotKey:          func(c *Capabilities) { c.TextHotKey = true },
	ExtPlayerList:       func(c *Capabilities) { c.ExtPlayerList = true },
	EnvColors:           func(c *Capabilities) { c.EnvColors = true },
	SelectionCuboid:     func(c *Capabilities) { c.SelectionCuboid = true },
	BlockPermissions:    func(c *Capabilities) { c.BlockPermissions = true },
	ChangeModel:         func(c *Capabilities) { c.ChangeModel = true },
	EnvMapAppearance:    func(c *Capabilities) { c.EnvMapAppearance = true },
	EnvWeatherType:      func(c *Capabilities) { c.EnvWeatherType = true },
	HackControl:         func(c *Capabilities) { c.HackControl = true },
	MessageTypes:        func(c *Capabilities) { c.MessageTypes = true },
	PlayerClick:         func(c *Capabilities) { c.PlayerClick = true },
	LongerMessages:      func(c *Capabilities) { c.LongerMessages = true },
	FullCP437:           func(c *Capabilities) { c.FullCP437 = true },
	BlockDefinitions:    func(c *Capabilities) { c.BlockDefinitions = true },
	BlockDefinitionsExt: func(c *Capabilities) { c.BlockDefinitionsExt = true },
	TextColors:          func(c *Capabilities) { c.TextColors = true },
	BulkBlockUpdate:     func(c *Capabilities) { c.BulkBlockUpdate = true },
	EnvMapAspect:        func(c *Capabilities) { c.EnvMapAspect = true },
	TwoWayPing:          func(c *Capabilities) { c.TwoWayPing = true },
	InstantMOTD:         func(c *Capabilities) { c.InstantMOTD = true },
}
