// Package retry turns an unreliable, possibly blocking call into one with a
// bounded total latency.
//
// CallForDuration keeps invoking an operation until it reports success or
// the time budget runs out. It tracks the slowest call seen so far and
// stops as soon as another call of that length would no longer fit in the
// remaining budget. An in-flight call is never interrupted, so the total
// time can exceed the budget by at most one call.
//
// Calls that fail almost instantly (under 2ms, typically a disconnected
// transport rejecting the request) are followed by a pause so the loop
// does not spin. The pause is at least 20ms and at least timeout divided by
// the call ceiling, so a transport that comes back late in the budget is
// still retried.
//
// # Usage
//
//	resp, ok := retry.CallForDuration(ctx, 1800*time.Millisecond, func() (backend.Response, bool) {
//	    return client.Exchange(ctx, req)
//	})
//	if !ok {
//	    return ErrTimeout
//	}
package retry
