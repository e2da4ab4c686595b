package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testNotice() Notice {
	order := &model.Order{
		ID:            "order-1",
		Buyer:         model.Buyer{Name: "Amina", Email: "amina@example.com"},
		PaymentMethod: model.MethodMpesaPush,
		PaymentStatus: model.StatusPaid,
		Amount:        200,
	}
	tickets := []model.Ticket{{Code: "AAAA1111", VisualRef: "/static/qrs/AAAA1111.png"}, {Code: "BBBB2222"}}
	return NewNotice(order, tickets, "Pool Party", "Regular")
}

func TestNoticeText(t *testing.T) {
	text := testNotice().Text()
	assert.Contains(t, text, "Hi Amina,")
	assert.Contains(t, text, "Payment Method: mpesa_push")
	assert.Contains(t, text, "Payment Status: paid")
	assert.Contains(t, text, "- Event: Pool Party, Type: Regular, Code: AAAA1111")
	assert.Contains(t, text, "- Event: Pool Party, Type: Regular, Code: BBBB2222")
}

type failing struct{ err error }

func (f failing) Notify(context.Context, Notice) error { return f.err }

func TestMultiJoinsErrors(t *testing.T) {
	boom := errors.New("smtp down")
	m := Multi{NewLogNotifier(zap.NewNop()), failing{boom}}
	assert.ErrorIs(t, m.Notify(context.Background(), testNotice()), boom)

	assert.NoError(t, Multi{NewLogNotifier(zap.NewNop())}.Notify(context.Background(), testNotice()))
}

func TestKafkaNotifierPublishes(t *testing.T) {
	producer := mocks.NewAsyncProducer(t, nil)
	producer.ExpectInputWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, _ := msg.Key.Encode()
		if string(key) != "order-1" {
			return errors.New("unexpected key " + string(key))
		}
		value, _ := msg.Value.Encode()
		var n Notice
		if err := json.Unmarshal(value, &n); err != nil {
			return err
		}
		if len(n.Tickets) != 2 {
			return errors.New("expected two tickets")
		}
		return nil
	})

	k := newKafkaNotifier(producer, "tickets-issued", zap.NewNop())
	require.NoError(t, k.Notify(context.Background(), testNotice()))
	require.NoError(t, k.Close())
}
