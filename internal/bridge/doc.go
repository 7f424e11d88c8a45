// Package bridge describes the vendor drivers wdpool can run.
//
// A [Bridge] knows how to spawn one vendor's driver binary, how many
// sessions a single driver process can host, and which capabilities a new
// session must request. Chrome runs many sessions per chromedriver, while
// geckodriver and safaridriver serve one at a time. [Remote] wraps a remote
// end managed elsewhere.
//
// Bridges are looked up by name through a [Registry]. [Registry.Default]
// honours an explicit name (usually from WDPOOL_BRIDGE) and otherwise
// picks the first registered bridge whose driver is installed.
package bridge
