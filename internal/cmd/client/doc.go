// Package client provides the `logmux` command-line client.
//
// Every command opens the container it names, does one thing, and closes
// everything again. Commands reach containers through a transport; the
// standalone binary uses a registry that talks to the container driver when
// its socket exists and opens the container in process otherwise.
//
// # Container selection
//
// --container (-c) names the container directory and defaults to
// <data dir>/default. Logical logs are selected with --log (-l) by alias or
// --id by identifier.
//
// Usage
//
//	logmux container create -c ./data/orders --capacity 1GiB
//	logmux log create -c ./data/orders -l orders
//	logmux log append -c ./data/orders -l orders --data 'hello'
//	logmux log read -c ./data/orders -l orders --offset 0
//	logmux log truncate-head -c ./data/orders -l orders --offset 3
//	logmux alias replace -c ./data/orders orders-next orders orders-old
//	logmux alias recover -c ./data/orders orders-next orders orders-old
package client
