package checkout

import (
	"errors"
	"fmt"
)

// ErrEmptyCart is returned when paying for a cart with no items.
var ErrEmptyCart = errors.New("cart is empty")

// Item is one line of a cart.
type Item struct {
	SKU      string
	Quantity int
	Cents    int64
}

type (
	// Cart holds the items a shopper intends to buy.
	Cart struct {
		Items []Item
	}

	// Gateway charges a payment method.
	Gateway interface {
		fmt.Stringer
		Charge(cents int64) (string, error)
	}
)

// Total sums the cart in cents.
func (c *Cart) Total() int64 {
	var sum int64
	for _, it := range c.Items {
		sum += int64(it.Quantity) * it.Cents
	}
	return sum
}

// Pay charges the cart total through g.
func Pay(c *Cart, g Gateway) (string, error) {
	if len(c.Items) == 0 {
		return "", ErrEmptyCart
	}
	return g.Charge(c.Total())
}
