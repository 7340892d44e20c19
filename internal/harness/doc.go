// Package harness runs scenario files against the scan loop.
//
// A scenario names an app description, a number of scan cycles, steps that
// change the running app and assertions on the final state:
//
//	name: counter_reset
//	description: Counter restarts from zero after reset
//	app: ../apps/plant.yaml
//	cycles: 4
//	watch: [f/n.out]
//	steps:
//	  - at: 2
//	    invoke: f/n.reset
//	assertions:
//	  - type: value
//	    slot: f/n.out
//	    equals: 6
//
// The app runs on a manual clock with a platform that yields after every
// cycle, so runs are instantaneous and deterministic. A step scheduled at
// cycle N is applied in the work phase of cycle N, after that cycle's tree
// walk and before the next one. Root actions such as ".quit" and
// ".hibernate" therefore take effect at the end of the cycle they are
// scheduled in.
//
// The trace records platform notifications, applied steps, the watched
// values after every cycle and the final loop result. RunWithGolden
// compares it against testdata/golden/<name>.golden.
package harness
