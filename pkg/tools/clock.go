package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// ClockTool reports the current time in a requested timezone. Results are
// never cached: the answer changes every call.
type ClockTool struct{}

type clockArgs struct {
	Timezone string `mapstructure:"timezone"`
	Format   string `mapstructure:"format"`
}

func NewClockTool() *ClockTool {
	return &ClockTool{}
}

func (t *ClockTool) GetName() string {
	return "clock"
}

func (t *ClockTool) GetDescription() string {
	return "Returns the current date and time, optionally in a specific IANA timezone"
}

func (t *ClockTool) GetInfo() ToolInfo {
	noDedupe := false
	return ToolInfo{
		Name:        t.GetName(),
		Description: t.GetDescription(),
		AllowDedupe: &noDedupe,
		Parameters: []ToolParameter{
			{
				Name:        "timezone",
				Type:        "string",
				Description: "IANA timezone name, e.g. Europe/Istanbul (default: UTC)",
				Required:    false,
			},
			{
				Name:        "format",
				Type:        "string",
				Description: "Go time layout for the output (default: RFC3339)",
				Required:    false,
			},
		},
	}
}

func (t *ClockTool) Execute(ctx context.Context, args map[string]interface{}) (ToolResult, error) {
	start := time.Now()

	var decoded clockArgs
	if err := mapstructure.Decode(args, &decoded); err != nil {
		return ToolResult{
			Success:  false,
			Error:    fmt.Sprintf("invalid arguments: %v", err),
			ToolName: t.GetName(),
		}, nil
	}

	loc := time.UTC
	if decoded.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(decoded.Timezone)
		if err != nil {
			return ToolResult{
				Success:  false,
				Error:    fmt.Sprintf("unknown timezone %q", decoded.Timezone),
				ToolName: t.GetName(),
			}, nil
		}
	}

	layout := decoded.Format
	if layout == "" {
		layout = time.RFC3339
	}

	now := time.Now().In(loc)
	return ToolResult{
		Success:  true,
		Content:  now.Format(layout),
		ToolName: t.GetName(),
		Output: map[string]interface{}{
			"time":     now.Format(layout),
			"timezone": loc.String(),
			"unix":     now.Unix(),
		},
		ExecutionTime: time.Since(start),
	}, nil
}
