package domain

// Order is a simulated or live order against a position.
type Order struct {
	ID                string
	BotID             string
	PositionID        string
	Side              Side
	Purpose           OrderPurpose
	Status            OrderStatus
	RequestedPrice    float64
	ExecutedPrice     float64
	RequestedQuantity float64
	ExecutedQuantity  float64
	CreatedAtMs       int64
	UpdatedAtMs       int64
}

// Fill is one realized execution. A position closes through one or more fills.
type Fill struct {
	ID         string
	OrderID    string
	PositionID string
	BotID      string
	Reason     FillReason
	Label      string
	Side       Side
	TimeMs     int64
	Price      float64
	Quantity   float64
	GrossPnl   float64
	Fee        float64
	NetPnl     float64
}
