package journeys_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/dataproduct/journeys"
	"github.com/dataproduct/journeys/pkg/journey"
)

// Example_assemble demonstrates composing a small journey from stages and
// running it on an in-memory engine.
func Example_assemble() {
	ctx := context.Background()

	eng := journeys.NewEngine(journeys.Targets{
		"visibility.fetchInputs": func(ctx context.Context, in journeys.Payload) (any, error) {
			id, _ := in.String("dataProductId")
			return map[string]any{"id": id}, nil
		},
		"visibility.assignTags": func(ctx context.Context, in journeys.Payload) (any, error) {
			return map[string]any{"visibility": "public"}, nil
		},
	})

	task := func(name, target, result string) journeys.Stage {
		return journeys.StageFunc(func(failure, success journeys.Chain) journeys.Chain {
			return journeys.Start(journeys.Task(name, target).
				Result(result).
				Retry(journeys.Retry(1)).
				Catch(failure)).
				Then(success)
		})
	}

	err := journeys.New("visibility").
		Failure(journeys.Start(journeys.Fail("Job Failed", "JobFailed", "visibility journey failed"))).
		Success(journeys.Start(journeys.Succeed("Job Succeeded"))).
		Stage(task("Fetch Inputs", "visibility.fetchInputs", "dataProductObject")).
		Stage(task("Assign Visibility Tags", "visibility.assignTags", "visibilityTags")).
		Register(eng)
	if err != nil {
		log.Fatal(err)
	}

	exec, err := journeys.Run(ctx, eng, "visibility", journeys.Payload{"dataProductId": "dp-7"})
	if err != nil {
		log.Fatal(err)
	}

	visibility, _ := exec.Output.String("visibilityTags.visibility")
	fmt.Println(exec.Status, visibility)

	// Output:
	// SUCCEEDED public
}

// Example_producer runs the producer journey against simulated
// collaborators.
func Example_producer() {
	ctx := context.Background()

	sim := &journey.Simulator{CrawlerChecks: 1}
	eng := journeys.NewEngine(sim.Targets())

	opts := journey.Options{PollInterval: time.Millisecond}
	if err := journey.NewProducer(opts).Register(eng); err != nil {
		log.Fatal(err)
	}

	exec, err := journeys.Run(ctx, eng, journey.Producer, journeys.Payload{journey.FieldDataProductID: "sales-orders"})
	if err != nil {
		log.Fatal(err)
	}

	entry, _ := exec.Output.Get(journey.FieldCatalogEntry + ".databases")
	fmt.Println(exec.Status, entry)

	// Output:
	// SUCCEEDED [sales_orders_iam sales_orders_lf]
}
