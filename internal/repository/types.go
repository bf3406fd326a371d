package repository

import "time"

// ProductListFilter 查询商品列表的过滤条件
type ProductListFilter struct {
	Page       int
	PageSize   int
	Brand      string
	Search     string
	OnlyActive bool
	InStock    bool
}

// OrderListFilter 查询订单列表的过滤条件
type OrderListFilter struct {
	Page        int
	PageSize    int
	UserID      uint
	Status      string
	OrderNo     string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// VoucherListFilter 查询优惠券列表的过滤条件
type VoucherListFilter struct {
	Page     int
	PageSize int
	Code     string
	Kind     string
	Status   string
}

// NotificationListFilter 查询通知列表的过滤条件
type NotificationListFilter struct {
	Page       int
	PageSize   int
	UserID     uint
	Type       string
	OnlyUnread bool
}
