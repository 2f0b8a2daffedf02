package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aliyun/fc-runtime-go-sdk/fc"
	"github.com/hkloudou/odwatch"
)

// Event selects the stages a timer trigger runs; empty means all of them
type Event struct {
	Stages []string `json:"stages"`
}

// Output collects the human summary of every stage that ran
type Output struct {
	Run     string   `json:"run"`
	Results []string `json:"results"`
}

var defaultStages = []string{"fetch", "reconcile", "publish-feed", "publish-social"}

func main() {
	fc.Start(HandleRequest)
}

func HandleRequest(ctx context.Context, event Event) (*Output, error) {
	cfg, err := odwatch.LoadConfig()
	if err != nil {
		return nil, err
	}
	// Function instances only get a writable /tmp
	if os.Getenv("ODWATCH_DATA_DIR") == "" {
		cfg.DataDir = "/tmp/odwatch"
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	client := odwatch.New(cfg, odwatch.WithLogger(log))
	defer client.Close()

	stages := event.Stages
	if len(stages) == 0 {
		stages = defaultStages
	}

	out := &Output{Run: client.RunID()}
	for _, stage := range stages {
		var dump string
		switch stage {
		case "fetch":
			res, err := client.Fetch(ctx)
			if err != nil {
				return out, err
			}
			dump = res.Dump()
		case "reconcile":
			res, err := client.Reconcile(ctx)
			if err != nil {
				return out, err
			}
			dump = res.Dump()
		case "publish-feed":
			res, err := client.PublishFeed(ctx)
			if err != nil {
				return out, err
			}
			dump = res.Dump()
		case "publish-social":
			res, err := client.PublishSocial(ctx)
			if err != nil {
				return out, err
			}
			dump = res.Dump()
		default:
			return out, fmt.Errorf("unknown stage: %s", stage)
		}
		out.Results = append(out.Results, dump)
	}
	return out, nil
}
