package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-backtest/pkg/errors"
)

type PurchaseType string

type OrderStatus string

type PositionType string

const (
	OrderStatusFilled   OrderStatus = "FILLED"
	OrderStatusRejected OrderStatus = "REJECTED"
)

const (
	PositionTypeLong  PositionType = "LONG"
	PositionTypeShort PositionType = "SHORT"
)

const (
	PurchaseTypeBuy  PurchaseType = "BUY"
	PurchaseTypeSell PurchaseType = "SELL"
)

const (
	OrderReasonStrategy        string = "strategy"
	OrderReasonStopLoss        string = "stop_loss"
	OrderReasonTakeProfit      string = "take_profit"
	OrderReasonDrawdownHalt    string = "drawdown_halt"
	OrderReasonEndOfData       string = "end_of_data"
	OrderReasonInvalidQuantity string = "invalid_quantity"
)

// Reason records why an order was created or rejected.
type Reason struct {
	Reason  string `yaml:"reason" json:"reason" csv:"reason" validate:"required"`
	Message string `yaml:"message" json:"message" csv:"message"`
}

// ExecuteOrder is an order intent before execution. The strategy callback and
// the risk governor both emit these; the execution simulator turns them into
// filled Orders.
type ExecuteOrder struct {
	Symbol   string       `yaml:"symbol" json:"symbol" csv:"symbol" validate:"required"`
	Side     PurchaseType `yaml:"side" json:"side" csv:"side" validate:"required,oneof=BUY SELL"`
	Quantity float64      `yaml:"quantity" json:"quantity" csv:"quantity" validate:"required,gt=0"`
	// LimitPrice is the requested price. None means a market order filled at
	// the slippage-adjusted bar close.
	LimitPrice optional.Option[float64] `yaml:"limit_price" json:"limit_price" csv:"limit_price"`
	Reason     Reason                   `yaml:"reason" json:"reason" csv:"reason" validate:"required"`
}

// Order is an immutable record of an executed (or rejected) fill.
type Order struct {
	OrderID  string       `yaml:"order_id" json:"order_id" csv:"order_id"`
	Symbol   string       `yaml:"symbol" json:"symbol" csv:"symbol" validate:"required"`
	Side     PurchaseType `yaml:"side" json:"side" csv:"side" validate:"required,oneof=BUY SELL"`
	Quantity float64      `yaml:"quantity" json:"quantity" csv:"quantity"`
	// RequestedPrice is the limit price of the intent. None means the order
	// was a market order.
	RequestedPrice optional.Option[float64] `yaml:"requested_price" json:"requested_price" csv:"requested_price"`
	FilledPrice    float64                  `yaml:"filled_price" json:"filled_price" csv:"filled_price"`
	Commission     float64                  `yaml:"commission" json:"commission" csv:"commission" validate:"gte=0"`
	Status         OrderStatus              `yaml:"status" json:"status" csv:"status"`
	Timestamp      time.Time                `yaml:"timestamp" json:"timestamp" csv:"timestamp" validate:"required"`
	Reason         Reason                   `yaml:"reason" json:"reason" csv:"reason"`
}

// Validate validates the ExecuteOrder struct.
func (eo *ExecuteOrder) Validate() error {
	validate := validator.New()

	if err := validate.Struct(eo); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidOrder, "invalid execute order", err)
	}

	return nil
}

// PositionTypeForSide maps an order side to the position direction it opens:
// a buy opens a long, a sell opens a short.
func PositionTypeForSide(side PurchaseType) PositionType {
	if side == PurchaseTypeBuy {
		return PositionTypeLong
	}

	return PositionTypeShort
}

// OppositeSide returns the order side that reduces a position of the given
// direction.
func OppositeSide(positionType PositionType) PurchaseType {
	if positionType == PositionTypeLong {
		return PurchaseTypeSell
	}

	return PurchaseTypeBuy
}
