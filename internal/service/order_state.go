package service

import "fashion-store-backend/internal/model"

// SideEffect 状态变更附带的副作用
type SideEffect int

const (
	// EffectReserveStock 首次进入 confirmed 时扣减库存
	EffectReserveStock SideEffect = iota + 1
	// EffectRestoreStock 已扣减库存的订单取消时恢复库存
	EffectRestoreStock
	// EffectSettleCOD 货到付款订单签收即视为已付款
	EffectSettleCOD
	// EffectAwardLoyalty 事务提交后发放积分
	EffectAwardLoyalty
	// EffectIssueInvoice 事务提交后生成发票
	EffectIssueInvoice
)

// afterCommit 只能在事务提交后执行的副作用
func (e SideEffect) afterCommit() bool {
	return e == EffectAwardLoyalty || e == EffectIssueInvoice
}

type transition struct {
	from, to model.OrderStatus
}

// orderTransitions 合法的状态变更及其副作用，未列出的组合一律拒绝
var orderTransitions = map[transition][]SideEffect{
	{model.OrderStatusPending, model.OrderStatusConfirmed}:    {EffectReserveStock, EffectIssueInvoice},
	{model.OrderStatusPending, model.OrderStatusCancelled}:    {},
	{model.OrderStatusConfirmed, model.OrderStatusProcessing}: {},
	{model.OrderStatusConfirmed, model.OrderStatusShipped}:    {},
	{model.OrderStatusConfirmed, model.OrderStatusCancelled}:  {EffectRestoreStock},
	{model.OrderStatusProcessing, model.OrderStatusShipped}:   {},
	{model.OrderStatusProcessing, model.OrderStatusCancelled}: {EffectRestoreStock},
	{model.OrderStatusShipped, model.OrderStatusDelivered}:    {EffectSettleCOD, EffectAwardLoyalty},
}

// customerCancellable 顾客可自助取消的状态
var customerCancellable = map[model.OrderStatus]bool{
	model.OrderStatusPending:   true,
	model.OrderStatusConfirmed: true,
}

// CanTransition 判断状态变更是否合法
func CanTransition(from, to model.OrderStatus) bool {
	_, ok := orderTransitions[transition{from, to}]
	return ok
}

// SideEffectsFor 返回状态变更的副作用，非法变更返回 nil
func SideEffectsFor(from, to model.OrderStatus) []SideEffect {
	effects := orderTransitions[transition{from, to}]
	out := make([]SideEffect, len(effects))
	copy(out, effects)
	return out
}

// NextStatuses 返回当前状态可变更到的状态
func NextStatuses(from model.OrderStatus) []model.OrderStatus {
	var next []model.OrderStatus
	for _, to := range []model.OrderStatus{
		model.OrderStatusConfirmed, model.OrderStatusProcessing, model.OrderStatusShipped,
		model.OrderStatusDelivered, model.OrderStatusCancelled,
	} {
		if CanTransition(from, to) {
			next = append(next, to)
		}
	}
	return next
}
