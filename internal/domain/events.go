package domain

import "time"

type OrderCreatedEvent struct {
	OrderID      string      `json:"order_id"`
	CustomerName string      `json:"customer_name"`
	Total        int64       `json:"total"`
	Lines        []OrderLine `json:"lines"`
	Timestamp    time.Time   `json:"timestamp"`
}

type PaymentUpdatedEvent struct {
	OrderID       string        `json:"order_id"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	Timestamp     time.Time     `json:"timestamp"`
}
