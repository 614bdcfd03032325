package config

import "fmt"

// Declaration is one option advertised in reply to jai.
type Declaration struct {
	Name    string
	Type    string
	Default string
	Min     int64
	Max     int64
}

// Declarations are sent in this order.
var Declarations = []Declaration{
	{Name: "Engine1Path", Type: "string"},
	{Name: "Engine1Options", Type: "string"},
	{Name: "Engine2Path", Type: "string"},
	{Name: "Engine2Options", Type: "string"},
	{Name: "BookFile", Type: "string"},
	{Name: "SaveNotation", Type: "check", Default: "false"},
	{Name: "SaveNotationDir", Type: "string"},
	{Name: "SaveBoardImage", Type: "check", Default: "false"},
	{Name: "TotalRounds", Type: "spin", Default: "10", Min: 1, Max: 1000},
	{Name: "Concurrency", Type: "spin", Default: "2", Min: 1, Max: 128},
	{Name: "MainTimeMs", Type: "spin", Default: "1000", Min: 0, Max: 3600000},
	{Name: "IncTimeMs", Type: "spin", Default: "0", Min: 0, Max: 60000},
	{Name: "TimeoutBufferMs", Type: "spin", Default: "5000", Min: 0, Max: 60000},
	{Name: "MoveTimeoutMs", Type: "spin", Default: "0", Min: 0, Max: 3600000},
	{Name: "MaxPlies", Type: "spin", Default: "300", Min: 1, Max: 10000},
	{Name: "Logging", Type: "check", Default: "false"},
}

// Line renders the declaration as an "option name ..." protocol line.
func (d Declaration) Line() string {
	switch d.Type {
	case "spin":
		return fmt.Sprintf("option name %s type spin default %s min %d max %d", d.Name, d.Default, d.Min, d.Max)
	case "check":
		return fmt.Sprintf("option name %s type check default %s", d.Name, d.Default)
	default:
		return fmt.Sprintf("option name %s type %s", d.Name, d.Type)
	}
}

func declaration(name string) (Declaration, bool) {
	for _, d := range Declarations {
		if d.Name == name {
			return d, true
		}
	}
	return Declaration{}, false
}
