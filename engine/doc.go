// Package engine runs one effect graph at a time against the configured
// devices.
//
// Deploy compiles a graph into a fresh node.EffectContext after tearing the
// previous graph down, so tasks of the old graph never overlap with the new
// one. A graph with compile issues is still deployed: the nodes that could be
// built and bound keep running, and the issues are reported through the
// returned compiler.Result, the engine metrics and a JSON report published
// on DeployedSubject.
//
//	eng, err := engine.New(engine.Deps{
//	    Catalog:   cat,
//	    Devices:   directory,
//	    Scheduler: sched,
//	    Registry:  registry,
//	    Publisher: natsClient,
//	})
//	res, err := eng.DeployFromStore(ctx, store, "main")
//	go eng.Watch(ctx, store, "main") // hot reload when the store can push updates
//	defer eng.Teardown()
//
// Metrics (namespace xywire, subsystem engine): deploys_total{status},
// compile_issues_total{kind}, deploy_duration_seconds and nodes_active.
package engine
