package util

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// InvoiceObjectPath 生成发票对象路径：invoices/2024/05/ORD-2024-0001.html
func InvoiceObjectPath(orderNumber string, at time.Time) string {
	name := strings.ReplaceAll(orderNumber, "/", "-")
	return path.Join("invoices", fmt.Sprintf("%04d", at.Year()), fmt.Sprintf("%02d", int(at.Month())), name+".html")
}
