package journey

import "github.com/dataproduct/journeys"

// Producer collaborators.
const (
	TargetProducerFetchInputs          = "producer.fetchInputs"
	TargetProducerRegisterTag          = "producer.registerTag"
	TargetProducerRegisterDataLocation = "producer.registerDataLocation"
	TargetProducerUpdatePolicies       = "producer.updatePolicies"
	TargetProducerComputeDatabaseNames = "producer.computeDatabaseNames"

	TargetIAMCreateDatabase = "producer.iam.createDatabase"
	TargetIAMCreateCrawler  = "producer.iam.createCrawler"
	TargetIAMRunCrawler     = "producer.iam.runCrawler"
	TargetIAMCheckCrawler   = "producer.iam.checkCrawler"

	TargetLakeFormationCreateDatabase      = "producer.lakeformation.createDatabase"
	TargetLakeFormationCreateCrawler       = "producer.lakeformation.createCrawler"
	TargetLakeFormationRunCrawler          = "producer.lakeformation.runCrawler"
	TargetLakeFormationCheckCrawler        = "producer.lakeformation.checkCrawler"
	TargetLakeFormationAssignDefaultTags   = "producer.lakeformation.assignDefaultTags"
	TargetLakeFormationGrantProducerAccess = "producer.lakeformation.grantProducerAccess"

	TargetProducerRegisterInCatalog   = "producer.registerInCatalog"
	TargetProducerEmitCompletionEvent = "producer.emitCompletionEvent"
)

// Producer fields.
const (
	FieldTag          = "tag"
	FieldDataLocation = "dataLocation"
	FieldPolicies     = "policies"
	// FieldDatabaseNames holds one database name per access path, keyed
	// "iam" and "lakeformation".
	FieldDatabaseNames = "glueDatabaseName"

	FieldIAMDatabase      = "iamDatabase"
	FieldIAMCrawler       = "iamCrawler"
	FieldIAMCrawlerStatus = "iamCrawlerStatus"

	FieldLakeFormationDatabase      = "lakeFormationDatabase"
	FieldLakeFormationCrawler       = "lakeFormationCrawler"
	FieldLakeFormationCrawlerStatus = "lakeFormationCrawlerStatus"
	FieldDefaultTags                = "defaultTags"
	FieldProducerGrant              = "producerGrant"

	FieldCatalogEntry = "catalogEntry"
)

// CrawlerReady is the crawler state that ends a poll.
const CrawlerReady = "READY"

// StepProvisionAccess is the Parallel step joining both access paths.
const StepProvisionAccess = "Provision Producer Access"

// NewProducer returns the builder of the producer journey: it registers a
// data product, provisions its IAM and Lake Formation access paths in
// parallel and records it in the catalog.
func NewProducer(opts Options) *journeys.JourneyBuilder {
	opts = opts.withDefaults()
	return opts.builder(Producer).
		Stage(taskStage(opts.task("Fetch Inputs", TargetProducerFetchInputs).
			Reads(FieldDataProductID).
			Result(FieldDataProduct))).
		Stage(taskStage(opts.task("Register Tag", TargetProducerRegisterTag).
			Reads(FieldDataProduct).
			Result(FieldTag))).
		Stage(taskStage(opts.task("Register Data Location", TargetProducerRegisterDataLocation).
			Reads(FieldDataProduct).
			Result(FieldDataLocation))).
		Stage(taskStage(opts.task("Update Policies", TargetProducerUpdatePolicies).
			Reads(FieldDataProduct, FieldDataLocation).
			Result(FieldPolicies))).
		Stage(taskStage(opts.task("Compute Database Names", TargetProducerComputeDatabaseNames).
			Reads(FieldDataProduct).
			Result(FieldDatabaseNames))).
		Stage(provisionAccess(opts)).
		Stage(taskStage(opts.task("Register In Catalog", TargetProducerRegisterInCatalog).
			Reads(FieldDataProduct, FieldIAMDatabase, FieldLakeFormationDatabase).
			Result(FieldCatalogEntry))).
		Stage(taskStage(opts.task("Emit Completion Event", TargetProducerEmitCompletionEvent).
			Reads(FieldDataProduct).
			Result(FieldCompletionEvent)))
}

// provisionAccess joins the IAM and Lake Formation branches. Branch tasks
// carry no catch: a branch failure fails the Parallel, which routes to the
// journey's failure chain.
func provisionAccess(opts Options) journeys.Stage {
	return journeys.StageFunc(func(failure, success journeys.Chain) journeys.Chain {
		return journeys.Start(journeys.Parallel(StepProvisionAccess, iamBranch(opts), lakeFormationBranch(opts)).
			OnSuccess(success).
			OnFailure(failure))
	})
}

func iamBranch(opts Options) journeys.Chain {
	crawler := opts.crawlerPoll("IAM", TargetIAMRunCrawler, TargetIAMCheckCrawler, FieldIAMCrawler, FieldIAMCrawlerStatus)

	return journeys.Start(opts.task("Create IAM Database", TargetIAMCreateDatabase).
		Reads(FieldDatabaseNames).
		Result(FieldIAMDatabase)).
		Next(opts.task("Create IAM Crawler", TargetIAMCreateCrawler).
			Reads(FieldIAMDatabase).
			Result(FieldIAMCrawler)).
		Then(journeys.PollUntilReady(crawler, journeys.Start(journeys.Succeed("IAM Access Ready"))))
}

func lakeFormationBranch(opts Options) journeys.Chain {
	crawler := opts.crawlerPoll("Lake Formation", TargetLakeFormationRunCrawler, TargetLakeFormationCheckCrawler,
		FieldLakeFormationCrawler, FieldLakeFormationCrawlerStatus)

	grant := journeys.Start(opts.task("Assign Default Tags", TargetLakeFormationAssignDefaultTags).
		Reads(FieldLakeFormationDatabase, FieldTag).
		Result(FieldDefaultTags)).
		Next(opts.task("Grant Producer Access", TargetLakeFormationGrantProducerAccess).
			Reads(FieldLakeFormationDatabase).
			Result(FieldProducerGrant))

	return journeys.Start(opts.task("Create Lake Formation Database", TargetLakeFormationCreateDatabase).
		Reads(FieldDatabaseNames).
		Result(FieldLakeFormationDatabase)).
		Next(opts.task("Create Lake Formation Crawler", TargetLakeFormationCreateCrawler).
			Reads(FieldLakeFormationDatabase).
			Result(FieldLakeFormationCrawler)).
		Then(journeys.PollUntilReady(crawler, grant))
}

func (o Options) crawlerPoll(path, runTarget, checkTarget, crawlerField, statusField string) journeys.Poll {
	return journeys.Poll{
		Execute:  o.task("Run "+path+" Crawler", runTarget).Reads(crawlerField),
		Check:    o.task("Check "+path+" Crawler", checkTarget).Reads(crawlerField).Result(statusField),
		Ready:    journeys.StringEquals(statusField+".state", CrawlerReady),
		Choice:   path + " Crawler Ready?",
		Wait:     "Wait For " + path + " Crawler",
		Interval: o.PollInterval,
		MaxPolls: o.MaxPolls,
	}
}
