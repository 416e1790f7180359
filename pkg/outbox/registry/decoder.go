package registry

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/kitsuneprints/storefront-backend/pkg/outbox/payloads"
)

// Decoder turns envelope data of one schema version into a typed payload.
type Decoder func(data json.RawMessage) (any, error)

// Decoders maps envelope schema versions to their decoder.
type Decoders map[int]Decoder

// Decode runs the decoder for version. Unknown versions are an error so a
// publisher never forwards a payload its consumers cannot read.
func (d Decoders) Decode(version int, data json.RawMessage) (any, error) {
	decode, ok := d[version]
	if !ok {
		return nil, fmt.Errorf("no decoder for schema v%d", version)
	}
	return decode(data)
}

var orderDecoders = Decoders{1: decodeOrderEventV1}

func decodeOrderEventV1(data json.RawMessage) (any, error) {
	var event payloads.OrderEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	switch {
	case event.OrderNumber == "":
		return nil, errors.New("order event missing orderNumber")
	case event.OrderID == uuid.Nil:
		return nil, errors.New("order event missing orderId")
	}
	return &event, nil
}
