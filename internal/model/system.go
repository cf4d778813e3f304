package model

// SystemStats 系统统计数据
type SystemStats struct {
	TotalUsers    int                 `json:"total_users"`
	TotalOrders   int                 `json:"total_orders"`
	PaidRevenue   float64             `json:"paid_revenue"`
	PendingOrders int                 `json:"pending_orders"`
	OrdersBy      map[OrderStatus]int `json:"orders_by_status"`
}
