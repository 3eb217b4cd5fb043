// Package bridge implements the request/response protocol between the host
// and micro-app content.
//
// A Registry turns typed topic definitions into two artifacts: the
// content-side runtime returned by Script, and the handler table used by
// the Dispatcher. For every topic the runtime exposes
//
//	request<Topic>(data) -> Promise
//	resolve<Topic>(data, requestId)
//	reject<Topic>(error, requestId)
//	get<Topic>()        last resolved value, kept in sessionStorage
//
// on a capability object built by createNativeBridge(channel, options).
//
// Inbound messages are sanitized, origin-checked against the render's
// security policy, then handed to the topic handler with a bounded
// Context. Replies are injected as
//
//	window.nativebridge.<method>(<json>, "<requestId>");
//
// Malformed messages, rejected origins and unknown topics are logged and
// dropped. Handler errors and panics never escape Dispatch.
package bridge
