package rabbitmq

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAddress(t *testing.T) {
	t.Run("plain queue name has no exchange", func(t *testing.T) {
		addr, err := ParseAddress("orders-input")

		assert.NoError(t, err)
		assert.Equal(t, "orders-input", addr.RoutingKey)
		assert.Empty(t, addr.Exchange)
	})

	t.Run("single @ splits routing key and exchange", func(t *testing.T) {
		addr, err := ParseAddress("orders@custom-exchange")

		assert.NoError(t, err)
		assert.Equal(t, "orders", addr.RoutingKey)
		assert.Equal(t, "custom-exchange", addr.Exchange)
	})

	t.Run("routing key may itself contain @", func(t *testing.T) {
		addr, err := ParseAddress("a@b@ex")

		assert.NoError(t, err)
		assert.Equal(t, "a@b", addr.RoutingKey)
		assert.Equal(t, "ex", addr.Exchange)
	})

	t.Run("empty destination is an argument error", func(t *testing.T) {
		_, err := ParseAddress("")
		assert.ErrorIs(t, err, ErrEmptyDestination)
	})

	t.Run("trailing @ yields empty exchange", func(t *testing.T) {
		addr, err := ParseAddress("orders@")

		assert.NoError(t, err)
		assert.Equal(t, "orders", addr.RoutingKey)
		assert.Empty(t, addr.Exchange)
	})
}

func TestAddressString(t *testing.T) {
	t.Run("round-trips addresses with exchange", func(t *testing.T) {
		addr, err := ParseAddress("a@b@ex")
		assert.NoError(t, err)
		assert.Equal(t, "a@b@ex", addr.String())
	})

	t.Run("renders plain routing key without separator", func(t *testing.T) {
		addr := Address{RoutingKey: "orders-input"}
		assert.Equal(t, "orders-input", addr.String())
	})
}
