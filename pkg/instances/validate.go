package instances

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingIdentifier is returned when an item lacks space, externalId or a valid instance type.
	ErrMissingIdentifier = errors.New("instance identifier is incomplete")

	// ErrUpdateModeUnsupported is returned for UpsertOptions{Mode: ModeUpdate}.
	ErrUpdateModeUnsupported = errors.New("write mode \"update\" is not supported")

	// ErrLimitOutOfRange is returned for a search or aggregate limit outside [1, 1000].
	ErrLimitOutOfRange = errors.New("limit out of range [1, 1000]")
)

func validateID(i int, id InstanceID) error {
	switch {
	case !id.InstanceType.Valid():
		return fmt.Errorf("%w: item %d: instance type %q", ErrMissingIdentifier, i, id.InstanceType)
	case id.Space == "":
		return fmt.Errorf("%w: item %d: space is empty", ErrMissingIdentifier, i)
	case id.ExternalID == "":
		return fmt.Errorf("%w: item %d: externalId is empty", ErrMissingIdentifier, i)
	}
	return nil
}

func validateIDs(ids []InstanceID) error {
	for i, id := range ids {
		if err := validateID(i, id); err != nil {
			return err
		}
	}
	return nil
}

func validateApply(items []InstanceApply) error {
	for i, item := range items {
		if err := validateID(i, item.ID()); err != nil {
			return err
		}
		if item.InstanceType == TypeEdge && (item.Type == nil || item.StartNode == nil || item.EndNode == nil) {
			return fmt.Errorf("%w: item %d: edge %s needs type, startNode and endNode",
				ErrMissingIdentifier, i, item.ID())
		}
	}
	return nil
}

func validateOptions(opts UpsertOptions) error {
	switch opts.Mode {
	case "", ModeUpsert:
		return nil
	case ModeUpdate:
		return ErrUpdateModeUnsupported
	default:
		return fmt.Errorf("unknown write mode %q", opts.Mode)
	}
}

func validateLimit(limit int) error {
	if limit < 1 || limit > maxLimit {
		return fmt.Errorf("%w: got %d", ErrLimitOutOfRange, limit)
	}
	return nil
}
