package journey

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/dataproduct/journeys"
)

// EventsQueue receives completion events when a Simulator has an Outbox.
const EventsQueue = "journey-events"

// ErrSimulatedFailure is returned by collaborators told to fail.
var ErrSimulatedFailure = journeys.NewTaskError("Simulated.Failure", fmt.Errorf("simulated failure"))

// Simulator provides in-process collaborators for every target of the
// built-in journeys. Results are derived from the data product ID so runs
// are deterministic.
type Simulator struct {
	// CrawlerChecks is how many status checks report RUNNING before a
	// crawler is READY.
	CrawlerChecks int
	// Consumers are returned by the consumer fetch when the input has no
	// "consumers" field.
	Consumers []map[string]any
	// FailTimes makes a target fail that many times before it succeeds.
	FailTimes map[string]int
	// Outbox, when set, receives consumer messages and completion events.
	Outbox journeys.Outbox

	mu    sync.Mutex
	calls map[string]int
}

// Calls returns how often target was invoked.
func (s *Simulator) Calls(target string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[target]
}

// Targets returns the collaborators keyed by target name.
func (s *Simulator) Targets() journeys.Targets {
	t := journeys.Targets{}
	add := func(target string, fn journeys.TaskFunc) {
		t[target] = s.counted(target, fn)
	}

	fetch := func(_ context.Context, in journeys.Payload) (any, error) {
		id, _ := in.String(FieldDataProductID)
		if id == "" {
			return nil, journeys.NewTaskError("InvalidInput", fmt.Errorf("%s is required", FieldDataProductID))
		}
		return map[string]any{"id": id, "name": id, "owner": "data-platform"}, nil
	}
	emit := func(journey string) journeys.TaskFunc {
		if s.Outbox != nil {
			return journeys.QueueTarget(s.Outbox, EventsQueue)
		}
		return func(_ context.Context, in journeys.Payload) (any, error) {
			return map[string]any{"eventId": journey + ":" + productID(in)}, nil
		}
	}

	// producer
	add(TargetProducerFetchInputs, fetch)
	add(TargetProducerRegisterTag, reply(func(in journeys.Payload) any {
		return map[string]any{"key": "dataProduct", "value": productID(in)}
	}))
	add(TargetProducerRegisterDataLocation, reply(func(in journeys.Payload) any {
		return map[string]any{"bucket": "data-products", "prefix": productID(in) + "/"}
	}))
	add(TargetProducerUpdatePolicies, reply(func(journeys.Payload) any {
		return map[string]any{"updated": true}
	}))
	add(TargetProducerComputeDatabaseNames, reply(func(in journeys.Payload) any {
		base := strings.ReplaceAll(productID(in), "-", "_")
		return map[string]any{
			string(ConsumerIAM):           base + "_iam",
			string(ConsumerLakeFormation): base + "_lf",
		}
	}))
	s.addCrawlerPath(add, string(ConsumerIAM), FieldIAMDatabase, FieldIAMCrawler,
		TargetIAMCreateDatabase, TargetIAMCreateCrawler, TargetIAMRunCrawler, TargetIAMCheckCrawler)
	s.addCrawlerPath(add, string(ConsumerLakeFormation), FieldLakeFormationDatabase, FieldLakeFormationCrawler,
		TargetLakeFormationCreateDatabase, TargetLakeFormationCreateCrawler, TargetLakeFormationRunCrawler, TargetLakeFormationCheckCrawler)
	add(TargetLakeFormationAssignDefaultTags, reply(func(in journeys.Payload) any {
		tag, _ := in.String(FieldTag + ".value")
		return map[string]any{"tags": []any{tag}}
	}))
	add(TargetLakeFormationGrantProducerAccess, reply(func(in journeys.Payload) any {
		db, _ := in.String(FieldLakeFormationDatabase + ".name")
		return map[string]any{"database": db, "granted": true}
	}))
	add(TargetProducerRegisterInCatalog, reply(func(in journeys.Payload) any {
		iam, _ := in.String(FieldIAMDatabase + ".name")
		lf, _ := in.String(FieldLakeFormationDatabase + ".name")
		return map[string]any{"entry": productID(in), "databases": []any{iam, lf}}
	}))
	add(TargetProducerEmitCompletionEvent, emit(Producer))

	// consumer
	add(TargetConsumerFetchInputs, fetch)
	add(TargetConsumerFetchConsumers, reply(func(in journeys.Payload) any {
		if v, ok := in.Get("consumers"); ok {
			return map[string]any{"consumers": journeys.CloneValue(v)}
		}
		consumers := s.Consumers
		if consumers == nil {
			consumers = []map[string]any{
				{"id": "analytics", "type": string(ConsumerLakeFormation)},
				{"id": "reporting", "type": string(ConsumerIAM)},
			}
		}
		list := make([]any, 0, len(consumers))
		for _, c := range consumers {
			list = append(list, journeys.CloneValue(c))
		}
		return map[string]any{"consumers": list}
	}))
	add(TargetConsumerCreateLinkedDB, reply(func(in journeys.Payload) any {
		return map[string]any{"name": consumerID(in) + "_" + strings.ReplaceAll(productID(in), "-", "_")}
	}))
	add(TargetConsumerGrantRoleAccess, reply(func(in journeys.Payload) any {
		return map[string]any{"role": consumerID(in) + "-role", "granted": true}
	}))
	add(TargetConsumerGrantConsumerAccess, reply(func(in journeys.Payload) any {
		return map[string]any{"consumer": consumerID(in), "granted": true}
	}))
	add(TargetConsumerUpdateBucketPolicy, reply(func(in journeys.Payload) any {
		return map[string]any{"principal": consumerID(in), "updated": true}
	}))
	if s.Outbox != nil {
		add(TargetConsumerDispatchMessage, journeys.QueueTarget(s.Outbox, ConsumerQueue))
	} else {
		add(TargetConsumerDispatchMessage, reply(func(in journeys.Payload) any {
			return map[string]any{"messageId": consumerID(in) + ":" + productID(in)}
		}))
	}

	// visibility
	add(TargetVisibilityFetchInputs, fetch)
	add(TargetVisibilityAssignTags, reply(func(in journeys.Payload) any {
		return map[string]any{"visibility": "public", "dataProduct": productID(in)}
	}))
	add(TargetVisibilityUpdateCatalogRecord, reply(func(in journeys.Payload) any {
		return map[string]any{"entry": productID(in), "updated": true}
	}))
	add(TargetVisibilityEmitCompletionEvent, emit(Visibility))

	return t
}

func (s *Simulator) addCrawlerPath(add func(string, journeys.TaskFunc), path, dbField, crawlerField, createDB, createCrawler, run, check string) {
	add(createDB, reply(func(in journeys.Payload) any {
		name, _ := in.String(FieldDatabaseNames + "." + path)
		return map[string]any{"name": name}
	}))
	add(createCrawler, reply(func(in journeys.Payload) any {
		db, _ := in.String(dbField + ".name")
		return map[string]any{"name": db + "-crawler"}
	}))
	add(run, reply(func(in journeys.Payload) any {
		name, _ := in.String(crawlerField + ".name")
		return map[string]any{"crawler": name, "started": true}
	}))
	add(check, func(context.Context, journeys.Payload) (any, error) {
		state := CrawlerReady
		// counted has already recorded this call.
		if s.Calls(check) <= s.CrawlerChecks {
			state = "RUNNING"
		}
		return map[string]any{"state": state}, nil
	})
}

func (s *Simulator) counted(target string, fn journeys.TaskFunc) journeys.TaskFunc {
	return func(ctx context.Context, in journeys.Payload) (any, error) {
		s.mu.Lock()
		if s.calls == nil {
			s.calls = map[string]int{}
		}
		s.calls[target]++
		fail := s.FailTimes[target] > 0
		if fail {
			s.FailTimes[target]--
		}
		s.mu.Unlock()

		if fail {
			return nil, ErrSimulatedFailure
		}
		return fn(ctx, in)
	}
}

func reply(fn func(journeys.Payload) any) journeys.TaskFunc {
	return func(_ context.Context, in journeys.Payload) (any, error) {
		return fn(in), nil
	}
}

func productID(in journeys.Payload) string {
	if id, ok := in.String(FieldDataProduct + ".id"); ok {
		return id
	}
	id, _ := in.String(FieldDataProductID)
	return id
}

func consumerID(in journeys.Payload) string {
	id, _ := in.String(FieldCurrentConsumer + ".id")
	return id
}
