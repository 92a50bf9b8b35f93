// Package inference runs backbone and classification graphs through a
// long-lived Python bridge.
//
// A BridgeEngine is an explicit inference context: it owns exactly one
// bridge process, serializes calls into it, and is never shared between
// workers. Requests and responses are msgpack frames on the bridge's stdin
// and stdout; tensors travel as little-endian float32 bytes.
package inference
