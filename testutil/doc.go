// Package testutil starts and resets test components.
//
// A TestComponent is a component.Component that can also be reset between
// test cases and snapshotted. T ties a component's lifetime to a test:
//
//	func TestCache(t *testing.T) {
//	    srv := redistest.NewComponent()
//	    testutil.T(t).Setup(srv)
//
//	    ... exercise srv.Registry() ...
//
//	    testutil.T(t).Reset(srv)
//	}
package testutil
