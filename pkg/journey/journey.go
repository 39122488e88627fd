package journey

import (
	"fmt"
	"sort"
	"time"

	"github.com/dataproduct/journeys"
)

// Journey names.
const (
	Producer   = "producer"
	Consumer   = "consumer"
	Visibility = "visibility"
)

// Terminal step names shared by every journey.
const (
	StepJobSucceeded = "Job Succeeded"
	StepJobFailed    = "Job Failed"

	// ErrJobFailed is the error name reported by the Job Failed terminal.
	ErrJobFailed = "JobFailed"
)

// Fields shared by every journey.
const (
	// FieldDataProductID is the only field a journey input must carry.
	FieldDataProductID = "dataProductId"
	// FieldDataProduct holds the data product fetched by Fetch Inputs.
	FieldDataProduct = "dataProductObject"
	// FieldCompletionEvent holds the ID of the completion event.
	FieldCompletionEvent = "completionEvent"
)

// Defaults applied by Options.
const (
	DefaultPollInterval        = journeys.DefaultPollInterval
	DefaultRetryInterval       = time.Second
	DefaultConsumerConcurrency = 1
)

// Options tune the journeys. The zero value builds them as deployed.
type Options struct {
	// PollInterval is the wait between two crawler status checks.
	PollInterval time.Duration
	// MaxPolls bounds the number of waits per crawler. Zero polls until the
	// execution's context ends.
	MaxPolls int
	// ConsumerConcurrency bounds how many consumers are processed at once.
	ConsumerConcurrency int
	// RetryInterval is the delay before a task's single retry.
	RetryInterval time.Duration
	// Version is stamped on every built definition.
	Version string
}

// DefaultOptions returns Options with every default filled in.
func DefaultOptions() Options {
	return Options{}.withDefaults()
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.MaxPolls < 0 {
		o.MaxPolls = 0
	}
	if o.ConsumerConcurrency <= 0 {
		o.ConsumerConcurrency = DefaultConsumerConcurrency
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = DefaultRetryInterval
	}
	return o
}

// retry is the policy every task carries: one retry after the first call.
func (o Options) retry() journeys.RetryBuilder {
	return journeys.Retry(1).WithExponentialBackoff(o.RetryInterval, 2, 0)
}

func (o Options) task(name, target string) journeys.TaskBuilder {
	return journeys.Task(name, target).Retry(o.retry())
}

func (o Options) builder(name string) *journeys.JourneyBuilder {
	b := journeys.New(name).
		Failure(journeys.Start(journeys.Fail(StepJobFailed, ErrJobFailed, name+" journey failed"))).
		Success(journeys.Start(journeys.Succeed(StepJobSucceeded))).
		Inputs(FieldDataProductID)
	if o.Version != "" {
		b = b.Version(o.Version)
	}
	return b
}

// taskStage runs t and continues with success. Exhausted retries route to
// the journey's failure chain.
func taskStage(t journeys.TaskBuilder) journeys.Stage {
	return journeys.StageFunc(func(failure, success journeys.Chain) journeys.Chain {
		return journeys.Start(t.Catch(failure)).Then(success)
	})
}

var builders = map[string]func(Options) *journeys.JourneyBuilder{
	Producer:   NewProducer,
	Consumer:   NewConsumer,
	Visibility: NewVisibility,
}

// Names returns the names of the built-in journeys, sorted.
func Names() []string {
	out := make([]string, 0, len(builders))
	for name := range builders {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Build compiles the named journey.
func Build(name string, opts Options) (*journeys.Definition, error) {
	nb, ok := builders[name]
	if !ok {
		return nil, fmt.Errorf("journey: unknown journey %q", name)
	}
	return nb(opts).Build()
}

// RegisterAll builds every journey and registers it with eng.
func RegisterAll(eng journeys.Engine, opts Options) error {
	for _, name := range Names() {
		if err := builders[name](opts).Register(eng); err != nil {
			return fmt.Errorf("journey: register %s: %w", name, err)
		}
	}
	return nil
}
