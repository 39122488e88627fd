package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dataproduct/journeys"
	"github.com/dataproduct/journeys/pkg/journey"
)

type simulation struct {
	Execution string                        `json:"execution"`
	Journey   string                        `json:"journey"`
	Status    journeys.Status               `json:"status"`
	Output    journeys.Payload              `json:"output,omitempty"`
	Error     *journeys.ErrorDetail         `json:"error,omitempty"`
	Metrics   journeys.BasicMetricsSnapshot `json:"metrics"`
	Calls     map[string]int                `json:"calls"`
	Messages  []journeys.Message            `json:"messages,omitempty"`
}

func simulate(ctx context.Context, w io.Writer, name string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	input, err := loadInput()
	if err != nil {
		return err
	}
	failures, err := parseFailures(failTargets)
	if err != nil {
		return err
	}

	sim := &journey.Simulator{CrawlerChecks: crawlerChecks, FailTimes: failures}
	metrics := &journeys.BasicMetrics{}
	obs := journeys.NewCompositeObserver(journeys.NewLoggingObserver(logger), metrics)

	if useOutbox {
		out, closeOutbox, err := journeys.OpenOutbox(ctx, cfg.StoreBackend, cfg.StoreDSN)
		if err != nil {
			return fmt.Errorf("failed to open outbox: %w", err)
		}
		defer closeOutbox()
		sim.Outbox = out
	}

	eng, closeFn, err := journeys.OpenEngine(ctx, cfg.EngineConfig(obs), sim.Targets())
	if err != nil {
		return fmt.Errorf("failed to open engine: %w", err)
	}
	defer closeFn()

	if err := journey.RegisterAll(eng, cfg.JourneyOptions()); err != nil {
		return err
	}

	exec, runErr := journeys.Run(ctx, eng, name, input)
	if exec == nil {
		return runErr
	}

	out := simulation{
		Execution: exec.ID,
		Journey:   exec.Journey,
		Status:    exec.Status,
		Output:    exec.Output,
		Error:     exec.Error,
		Metrics:   metrics.Snapshot(),
		Calls:     map[string]int{},
	}
	for target := range sim.Targets() {
		if n := sim.Calls(target); n > 0 {
			out.Calls[target] = n
		}
	}
	if sim.Outbox != nil {
		messages, err := drain(ctx, sim.Outbox)
		if err != nil {
			return err
		}
		out.Messages = messages
	}
	if err := writeFormatted(w, out, "json"); err != nil {
		return err
	}
	if runErr != nil {
		return fmt.Errorf("journey %s failed: %w", name, runErr)
	}
	return nil
}

func drain(ctx context.Context, out journeys.Outbox) ([]journeys.Message, error) {
	var messages []journeys.Message
	for out.Len() > 0 {
		m, err := out.Dequeue(ctx)
		if err != nil {
			return messages, fmt.Errorf("failed to drain outbox: %w", err)
		}
		messages = append(messages, *m)
	}
	return messages, nil
}

// loadInput merges --input with --id. The flag wins over the file.
func loadInput() (journeys.Payload, error) {
	input := journeys.Payload{}
	if inputFile != "" {
		data, err := os.ReadFile(inputFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read input %s: %w", inputFile, err)
		}
		if err := yaml.Unmarshal(data, &input); err != nil {
			return nil, fmt.Errorf("failed to parse input %s: %w", inputFile, err)
		}
	}
	if dataProductID != "" {
		input[journey.FieldDataProductID] = dataProductID
	}
	return input, nil
}

func parseFailures(specs []string) (map[string]int, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	out := make(map[string]int, len(specs))
	for _, s := range specs {
		target, times, ok := strings.Cut(s, "=")
		if !ok {
			out[strings.TrimSpace(s)] = 1
			continue
		}
		n, err := strconv.Atoi(times)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid --fail %q: want target=times", s)
		}
		out[strings.TrimSpace(target)] = n
	}
	return out, nil
}
