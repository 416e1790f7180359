package registry

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/kitsuneprints/storefront-backend/pkg/enums"
	"github.com/kitsuneprints/storefront-backend/pkg/outbox/payloads"
)

func TestDecodersRejectUnknownVersion(t *testing.T) {
	decoders := Decoders{2: func(data json.RawMessage) (any, error) {
		var decoded map[string]string
		err := json.Unmarshal(data, &decoded)
		return decoded, err
	}}

	out, err := decoders.Decode(2, json.RawMessage(`{"status":"shipped"}`))
	require.NoError(t, err)
	require.Equal(t, map[string]string{"status": "shipped"}, out)

	_, err = decoders.Decode(1, json.RawMessage(`{}`))
	require.ErrorContains(t, err, "schema v1")
}

func TestOrderDecodersV1(t *testing.T) {
	orderID := uuid.New()
	raw := json.RawMessage(`{"orderId":"` + orderID.String() + `","orderNumber":"KP100200-abc","orderStatus":"processing","total":"1200"}`)

	out, err := orderDecoders.Decode(1, raw)
	require.NoError(t, err)
	event, ok := out.(*payloads.OrderEvent)
	require.True(t, ok, "unexpected payload type %T", out)
	require.Equal(t, "KP100200-abc", event.OrderNumber)
	require.Equal(t, enums.OrderStatusProcessing, event.OrderStatus)

	for name, body := range map[string]string{
		"no number": `{"orderId":"` + orderID.String() + `","total":"10"}`,
		"no id":     `{"orderNumber":"KP100200-abc"}`,
		"malformed": `{"orderNumber":`,
	} {
		_, err := orderDecoders.Decode(1, json.RawMessage(body))
		require.Error(t, err, name)
	}
}
