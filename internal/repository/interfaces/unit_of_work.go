package interfaces

import "context"

// UnitOfWork 将一组仓库操作放在同一个数据库事务中执行
// fn 返回 nil 时提交，否则回滚；嵌套调用加入外层事务
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
