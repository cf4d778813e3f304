// opsctl 运维命令行：清理超时订单、补发与核对积分、查看通知发件箱
package main

import (
	"context"
	"database/sql"
	"flag"
	"fashion-store-backend/config"
	"fashion-store-backend/internal/model"
	"fashion-store-backend/internal/repository/mysql"
	"fashion-store-backend/internal/service"
	"fashion-store-backend/internal/util"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strconv"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/olekukonko/tablewriter"
)

const usage = `用法: opsctl <command> [flags]

commands:
  expire-orders              取消超过付款时限的在线订单
  backfill-loyalty [-limit]  为已付款但漏发积分的订单补发
  reconcile-loyalty [-fix]   核对积分账户与流水
  outbox                     各状态通知数量
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	config.Init()
	util.InitLogger(config.AppConfig.LogLevel)
	defer util.Logger.Sync()

	db, err := sql.Open("mysql", config.AppConfig.DSN())
	if err != nil {
		log.Fatalf("failed to open MySQL: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to connect to MySQL: %v", err)
	}

	admin := newAdminService(db)
	if err := run(ctx, admin, os.Args[1], os.Args[2:], os.Stdout); err != nil {
		log.Fatal(err)
	}
}

// newAdminService 只装配维护任务需要的依赖，不发送通知
func newAdminService(db *sql.DB) *service.AdminService {
	cfg := config.AppConfig
	orderRepo := mysql.NewOrderRepository(db)
	productRepo := mysql.NewProductRepository(db)
	userRepo := mysql.NewUserRepository(db)
	outboxRepo := mysql.NewOutboxRepository(db)
	uow := mysql.NewUnitOfWork(db)

	inventory := service.NewInventoryService(orderRepo, productRepo, uow)
	loyalty := service.NewLoyaltyService(mysql.NewLoyaltyRepository(db), orderRepo, uow, cfg.LoyaltyRate)
	notifier := service.NewNotificationService(outboxRepo, userRepo, nil, nil, cfg.StoreName, cfg.FrontendURL)
	orders := service.NewOrderService(service.OrderServiceDeps{
		Orders:        orderRepo,
		Products:      productRepo,
		Users:         userRepo,
		UnitOfWork:    uow,
		Inventory:     inventory,
		Loyalty:       loyalty,
		Notifier:      notifier,
		PaymentWindow: cfg.PaymentWindow,
	})
	stats := service.NewStatsService(userRepo, orderRepo)
	return service.NewAdminService(orders, loyalty, inventory, stats, outboxRepo)
}

// maintenance opsctl 用到的维护操作
type maintenance interface {
	ExpireOrders(ctx context.Context) (int, error)
	BackfillLoyalty(ctx context.Context, limit int) (int, error)
	ReconcileLoyalty(ctx context.Context, fix bool) ([]model.LoyaltyDrift, error)
	OutboxSummary(ctx context.Context) (map[model.OutboxStatus]int, error)
}

func run(ctx context.Context, svc maintenance, cmd string, args []string, out io.Writer) error {
	switch cmd {
	case "expire-orders":
		n, err := svc.ExpireOrders(ctx)
		if err != nil {
			return fmt.Errorf("expire orders: %w", err)
		}
		fmt.Fprintf(out, "cancelled %d expired orders\n", n)
		return nil

	case "backfill-loyalty":
		fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
		limit := fs.Int("limit", 200, "max orders to process")
		if err := fs.Parse(args); err != nil {
			return err
		}
		n, err := svc.BackfillLoyalty(ctx, *limit)
		if err != nil {
			return fmt.Errorf("backfill loyalty: %w", err)
		}
		fmt.Fprintf(out, "awarded points for %d orders\n", n)
		return nil

	case "reconcile-loyalty":
		fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
		fix := fs.Bool("fix", false, "rewrite account balances from the ledger")
		if err := fs.Parse(args); err != nil {
			return err
		}
		drifts, err := svc.ReconcileLoyalty(ctx, *fix)
		if err != nil {
			return fmt.Errorf("reconcile loyalty: %w", err)
		}
		return renderDrifts(out, drifts)

	case "outbox":
		counts, err := svc.OutboxSummary(ctx)
		if err != nil {
			return fmt.Errorf("outbox summary: %w", err)
		}
		return renderOutbox(out, counts)

	default:
		fmt.Fprint(out, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func renderDrifts(out io.Writer, drifts []model.LoyaltyDrift) error {
	if len(drifts) == 0 {
		fmt.Fprintln(out, "all loyalty accounts match the ledger")
		return nil
	}
	table := tablewriter.NewWriter(out)
	table.Header("User", "Account points", "Ledger points", "Account earned", "Ledger earned", "Missing", "Repaired")
	for _, d := range drifts {
		if err := table.Append([]string{
			strconv.Itoa(d.UserID),
			strconv.Itoa(d.AccountPoints),
			strconv.Itoa(d.LedgerPoints),
			strconv.Itoa(d.AccountEarned),
			strconv.Itoa(d.LedgerEarned),
			strconv.FormatBool(d.MissingAccount),
			strconv.FormatBool(d.Repaired),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

func renderOutbox(out io.Writer, counts map[model.OutboxStatus]int) error {
	statuses := make([]string, 0, len(counts))
	for s := range counts {
		statuses = append(statuses, string(s))
	}
	sort.Strings(statuses)

	table := tablewriter.NewWriter(out)
	table.Header("Status", "Messages")
	for _, s := range statuses {
		if err := table.Append([]string{s, strconv.Itoa(counts[model.OutboxStatus(s)])}); err != nil {
			return err
		}
	}
	return table.Render()
}
