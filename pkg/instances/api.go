package instances

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/cognitedata/pygen-sub000/pkg/batch"
	"github.com/cognitedata/pygen-sub000/pkg/client"
	"github.com/cognitedata/pygen-sub000/pkg/pagination"
)

// API endpoints, relative to the project.
const (
	pathUpsert    = "models/instances"
	pathDelete    = "models/instances/delete"
	pathByIDs     = "models/instances/byids"
	pathList      = "models/instances/list"
	pathSearch    = "models/instances/search"
	pathAggregate = "models/instances/aggregate"
)

const maxLimit = 1000

// WriteResult is the folded result of Upsert and Delete.
type WriteResult = batch.Result[InstanceResult, InstanceID]

// API is the instances API of one project.
type API struct {
	client *client.Client
	batch  batch.Config
	logger zerolog.Logger
}

// NewAPI creates an instances API with full chunks and the client's worker count.
func NewAPI(c *client.Client) *API {
	return NewAPIWithConfig(c, batch.Config{
		ChunkSize:  batch.MaxChunkSize,
		MaxWorkers: c.Config().MaxWorkers,
	})
}

// NewAPIWithConfig creates an instances API with an explicit batch configuration.
func NewAPIWithConfig(c *client.Client, cfg batch.Config) *API {
	return &API{
		client: c,
		batch:  cfg,
		logger: c.Logger().With().Str("component", "instances").Logger(),
	}
}

// Upsert creates or updates instances. When some chunks fail the error is a
// *batch.PartialFailureError[InstanceResult, InstanceID].
func (a *API) Upsert(ctx context.Context, items []InstanceApply, opts UpsertOptions) (WriteResult, error) {
	if err := validateOptions(opts); err != nil {
		return WriteResult{}, err
	}
	if err := validateApply(items); err != nil {
		return WriteResult{}, err
	}

	type upsertBody struct {
		Items                     []InstanceApply `json:"items"`
		Replace                   bool            `json:"replace,omitempty"`
		SkipOnVersionConflict     bool            `json:"skipOnVersionConflict,omitempty"`
		AutoCreateDirectRelations *bool           `json:"autoCreateDirectRelations,omitempty"`
	}

	return runChunked(ctx, a, pathUpsert, items, func(chunk []InstanceApply) any {
		return upsertBody{
			Items:                     chunk,
			Replace:                   opts.Replace,
			SkipOnVersionConflict:     opts.SkipOnVersionConflict,
			AutoCreateDirectRelations: opts.AutoCreateDirectRelations,
		}
	}, parseWritten)
}

// Delete deletes instances. Deleted ids are returned in DeletedIDs.
func (a *API) Delete(ctx context.Context, ids []InstanceID) (WriteResult, error) {
	if err := validateIDs(ids); err != nil {
		return WriteResult{}, err
	}

	return runChunked(ctx, a, pathDelete, ids, func(chunk []InstanceID) any {
		return itemsBody[InstanceID]{Items: chunk}
	}, parseDeleted)
}

// Retrieve fetches instances by id. Ids that do not exist are left out.
// When some chunks fail the error is a *batch.PartialFailureError[Instance, InstanceID].
func (a *API) Retrieve(ctx context.Context, ids []InstanceID, sources []SourceSelector) ([]Instance, error) {
	if err := validateIDs(ids); err != nil {
		return nil, err
	}

	type byIDsBody struct {
		Items            []InstanceID     `json:"items"`
		Sources          []SourceSelector `json:"sources,omitempty"`
		IgnoreUnknownIDs bool             `json:"ignoreUnknownIds"`
	}

	result, err := runChunked(ctx, a, pathByIDs, ids, func(chunk []InstanceID) any {
		return byIDsBody{Items: chunk, Sources: sources, IgnoreUnknownIDs: true}
	}, parseInstances)
	return result.Items, err
}

// ListPage fetches one page of a listing. pageSize must be in [1, 1000].
func (a *API) ListPage(ctx context.Context, req ListRequest, cursor string, pageSize int) (*pagination.Page[Instance], error) {
	return a.iterator(req).FetchPage(ctx, cursor, pageSize)
}

// List returns up to limit instances. limit must be positive.
func (a *API) List(ctx context.Context, req ListRequest, limit int) ([]Instance, error) {
	return a.iterator(req).ListLimit(ctx, limit)
}

// ListAll returns every instance matching req.
func (a *API) ListAll(ctx context.Context, req ListRequest) ([]Instance, error) {
	return a.iterator(req).ListAll(ctx)
}

// Iterate lazily yields up to limit instances, fetching pages on demand.
func (a *API) Iterate(ctx context.Context, req ListRequest, limit int) iter.Seq2[Instance, error] {
	return a.iterator(req).Items(ctx, limit)
}

// IterateAll lazily yields every instance matching req.
func (a *API) IterateAll(ctx context.Context, req ListRequest) iter.Seq2[Instance, error] {
	return a.iterator(req).AllItems(ctx)
}

func (a *API) iterator(req ListRequest) *pagination.Iterator[Instance] {
	type listBody struct {
		ListRequest
		Limit  int    `json:"limit"`
		Cursor string `json:"cursor,omitempty"`
	}

	fetch := func(ctx context.Context, cursor string, pageSize int) (*pagination.Page[Instance], error) {
		var resp struct {
			Items      []Instance      `json:"items"`
			Typing     json.RawMessage `json:"typing,omitempty"`
			NextCursor string          `json:"nextCursor,omitempty"`
		}
		body := listBody{ListRequest: req, Limit: pageSize, Cursor: cursor}
		if err := a.post(ctx, pathList, body, &resp); err != nil {
			return nil, err
		}
		return &pagination.Page[Instance]{
			Items:      resp.Items,
			NextCursor: resp.NextCursor,
			Typing:     resp.Typing,
		}, nil
	}
	return pagination.NewIterator(fetch, a.logger)
}

// Search runs a single search request.
func (a *API) Search(ctx context.Context, req SearchRequest) ([]Instance, error) {
	if err := validateLimit(req.Limit); err != nil {
		return nil, err
	}

	var resp itemsBody[Instance]
	if err := a.post(ctx, pathSearch, req, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// Aggregate runs a single aggregate request.
func (a *API) Aggregate(ctx context.Context, req AggregateRequest) ([]AggregateItem, error) {
	if err := validateLimit(req.Limit); err != nil {
		return nil, err
	}

	var resp itemsBody[AggregateItem]
	if err := a.post(ctx, pathAggregate, req, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// post sends one request and decodes a successful response into out.
// Failures are returned as *client.APIError or *client.TransportError.
func (a *API) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", path, err)
	}

	outcome := a.client.Execute(ctx, a.client.NewRequest(http.MethodPost, path, payload))
	success, ok := outcome.(*client.Success)
	if !ok {
		return client.OutcomeError(outcome)
	}

	if err := json.Unmarshal(success.Body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

type itemsBody[T any] struct {
	Items []T `json:"items"`
}

// runChunked sends items in chunks to path and folds the responses.
func runChunked[T, R, D any](
	ctx context.Context,
	a *API,
	path string,
	items []T,
	body func(chunk []T) any,
	parse batch.ParseFunc[R, D],
) (batch.Result[R, D], error) {
	outcomes, err := batch.Run(ctx, items, a.batch, func(ctx context.Context, chunk batch.ChunkOf[T]) client.Outcome {
		payload, err := json.Marshal(body(chunk.Items))
		if err != nil {
			return &client.FailedRequest{Message: fmt.Sprintf("encode chunk %d", chunk.Index), Err: err}
		}
		return a.client.Execute(ctx, a.client.NewRequest(http.MethodPost, path, payload))
	})
	if err != nil {
		return batch.Result[R, D]{}, err
	}

	result, err := batch.Aggregate(outcomes, parse)

	event := a.logger.Debug()
	if err != nil {
		event = a.logger.Warn().Err(err)
	}
	event.
		Str("endpoint", path).
		Int("items", len(items)).
		Int("chunks", len(outcomes)).
		Int("results", result.Len()).
		Msg("Batch call complete")

	return result, err
}

func parseWritten(body []byte) ([]InstanceResult, []InstanceID, error) {
	var resp itemsBody[InstanceResult]
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, nil, err
	}
	return resp.Items, nil, nil
}

func parseDeleted(body []byte) ([]InstanceResult, []InstanceID, error) {
	var resp itemsBody[InstanceID]
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, nil, err
	}
	return nil, resp.Items, nil
}

func parseInstances(body []byte) ([]Instance, []InstanceID, error) {
	var resp itemsBody[Instance]
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, nil, err
	}
	return resp.Items, nil, nil
}
