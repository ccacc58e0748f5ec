// Package event provides a pub-sub event bus for workflow progress.
//
// The workflow graph publishes phase changes, per-node completions, track
// results, judgment and replanning decisions. The CLI subscribes to render
// progress and the watcher publishes stray writes, without either knowing
// about the other.
//
// # Thread Safety
//
// The [Bus] type is safe for concurrent use. Handlers are called
// synchronously on the publishing goroutine and are protected against panics.
// The two track subgraphs may publish concurrently in parallel mode, so
// handlers that keep state must lock.
//
// # Basic Usage
//
//	bus := event.NewBus(logger)
//	bus.Subscribe(event.TypePhaseChanged, func(e event.Event) {
//	    pc := e.(event.PhaseChangedEvent)
//	    fmt.Printf("%s -> %s\n", pc.From, pc.To)
//	})
//	bus.Publish(event.NewPhaseChangedEvent("daacs-1a2b3c4d", "", "planning_complete", 1))
package event
