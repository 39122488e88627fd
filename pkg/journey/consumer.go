package journey

import (
	"fmt"
	"strings"

	"github.com/dataproduct/journeys"
)

// ConsumerKind is the access path a consumer is granted through.
type ConsumerKind string

const (
	ConsumerLakeFormation ConsumerKind = "lakeformation"
	ConsumerIAM           ConsumerKind = "iam"
)

// ConsumerKinds returns every ConsumerKind.
func ConsumerKinds() []ConsumerKind {
	return []ConsumerKind{ConsumerLakeFormation, ConsumerIAM}
}

// ParseConsumerKind parses s, ignoring case.
func ParseConsumerKind(s string) (ConsumerKind, error) {
	k := ConsumerKind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range ConsumerKinds() {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("journey: unknown consumer kind %q", s)
}

// Consumer collaborators.
const (
	TargetConsumerFetchInputs         = "consumer.fetchInputs"
	TargetConsumerFetchConsumers      = "consumer.fetchConsumers"
	TargetConsumerCreateLinkedDB      = "consumer.lakeformation.createLinkedDatabase"
	TargetConsumerGrantRoleAccess     = "consumer.lakeformation.grantRoleAccess"
	TargetConsumerGrantConsumerAccess = "consumer.lakeformation.grantConsumerAccess"
	TargetConsumerUpdateBucketPolicy  = "consumer.iam.updateBucketPolicy"
	TargetConsumerDispatchMessage     = "consumer.dispatchMessage"
)

// Consumer fields.
const (
	// FieldConsumers holds {"consumers": [...]}; each consumer carries at
	// least a "type" with a ConsumerKind value.
	FieldConsumers = "dataProductConsumersObject"
	// FieldCurrentConsumer is the consumer an iteration works on.
	FieldCurrentConsumer = "currentConsumer"

	FieldLinkedDatabase = "linkedDatabase"
	FieldRoleGrant      = "roleGrant"
	FieldConsumerGrant  = "consumerGrant"
	FieldBucketPolicy   = "bucketPolicy"
	FieldDispatch       = "dispatch"
)

// StepProcessConsumers is the Map step iterating the consumers.
const StepProcessConsumers = "Process Consumers"

// ConsumerQueue is the queue consumer messages are dispatched to when the
// dispatch collaborator is a journeys.QueueTarget.
const ConsumerQueue = "consumer-notifications"

// NewConsumer returns the builder of the consumer journey: it shares a data
// product with each of its consumers, one consumer at a time by default.
func NewConsumer(opts Options) *journeys.JourneyBuilder {
	opts = opts.withDefaults()
	return opts.builder(Consumer).
		Stage(taskStage(opts.task("Fetch Inputs", TargetConsumerFetchInputs).
			Reads(FieldDataProductID).
			Result(FieldDataProduct))).
		Stage(taskStage(opts.task("Fetch Consumers", TargetConsumerFetchConsumers).
			Reads(FieldDataProduct).
			Result(FieldConsumers))).
		Stage(processConsumers(opts))
}

func processConsumers(opts Options) journeys.Stage {
	return journeys.StageFunc(func(failure, success journeys.Chain) journeys.Chain {
		return journeys.Start(journeys.Map(StepProcessConsumers, FieldConsumers+".consumers", consumerIteration(opts)).
			ItemAs(FieldCurrentConsumer).
			Carry(FieldDataProduct).
			MaxConcurrency(opts.ConsumerConcurrency).
			OnSuccess(success).
			OnFailure(failure))
	})
}

// consumerIteration routes on the consumer type. Both paths end in the same
// dispatch step, compiled once.
func consumerIteration(opts Options) journeys.Chain {
	dispatch := journeys.Start(opts.task("Dispatch Consumer Message", TargetConsumerDispatchMessage).
		Reads(FieldCurrentConsumer, FieldDataProduct).
		Result(FieldDispatch))

	lakeFormation := journeys.Start(opts.task("Create Linked Database", TargetConsumerCreateLinkedDB).
		Reads(FieldCurrentConsumer, FieldDataProduct).
		Result(FieldLinkedDatabase)).
		Next(opts.task("Grant Role Access", TargetConsumerGrantRoleAccess).
			Reads(FieldLinkedDatabase).
			Result(FieldRoleGrant)).
		Next(opts.task("Grant Consumer Access", TargetConsumerGrantConsumerAccess).
			Reads(FieldCurrentConsumer, FieldLinkedDatabase).
			Result(FieldConsumerGrant)).
		Then(dispatch)

	iam := journeys.Start(opts.task("Update Bucket Policy", TargetConsumerUpdateBucketPolicy).
		Reads(FieldCurrentConsumer, FieldDataProduct).
		Result(FieldBucketPolicy)).
		Then(dispatch)

	return journeys.Start(journeys.SwitchOn("Consumer Type", FieldCurrentConsumer+".type", ConsumerKinds(),
		map[ConsumerKind]journeys.Chain{
			ConsumerLakeFormation: lakeFormation,
			ConsumerIAM:           iam,
		}))
}
