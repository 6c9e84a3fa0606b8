// Package instances is the data modeling instances API built on the batch and
// pagination engines.
//
// Item-level writes and lookups (Upsert, Delete, Retrieve) are split into
// chunks of at most 1000 items, sent concurrently through the client's retry
// executor and folded back into one result. When some chunks fail the call
// returns a *batch.PartialFailureError holding everything that succeeded.
//
// Example usage:
//
//	c, _ := client.New(client.DefaultConfig(baseURL, "my-project"))
//	api := instances.NewAPI(c)
//
//	result, err := api.Upsert(ctx, nodes, instances.UpsertOptions{})
//	var partial *batch.PartialFailureError[instances.InstanceResult, instances.InstanceID]
//	if errors.As(err, &partial) {
//	    // retry only partial.FailedResponses
//	}
//
//	for inst, err := range api.Iterate(ctx, instances.ListRequest{InstanceType: instances.TypeNode}, 5000) {
//	    ...
//	}
//
// Filters, sorts and aggregate specs are opaque JSON; building them is up to
// the caller.
package instances
