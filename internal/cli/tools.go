package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/harun/turnstream/pkg/toolexecutor"
)

// demoTools are registered by the run command
func demoTools(now func() time.Time) []toolexecutor.ToolDefinition {
	return []toolexecutor.ToolDefinition{
		{
			Name:        "echo",
			Description: "Return the given text unchanged",
			Parameters: []toolexecutor.ToolParameter{
				{Name: "text", Type: "string", Description: "Text to return", Required: true},
			},
			Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				return params["text"], nil
			},
		},
		{
			Name:        "time",
			Description: "Return the current time in RFC 3339 format",
			Parameters: []toolexecutor.ToolParameter{
				{Name: "timezone", Type: "string", Description: "IANA time zone name, UTC when omitted"},
			},
			Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				loc := time.UTC
				if name, _ := params["timezone"].(string); name != "" {
					l, err := time.LoadLocation(name)
					if err != nil {
						return nil, fmt.Errorf("unknown timezone %q", name)
					}
					loc = l
				}
				return now().In(loc).Format(time.RFC3339), nil
			},
		},
	}
}

func registerDemoTools(te *toolexecutor.ToolExecutor, now func() time.Time) error {
	for _, def := range demoTools(now) {
		if err := te.RegisterTool(def); err != nil {
			return err
		}
	}
	return nil
}
