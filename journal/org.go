package journal

import (
	"fmt"
	"strings"
	"time"
)

// FormatAuditOrg renders an AuditRecord as an Org-mode block with the
// structured facts in a PROPERTIES drawer.
func FormatAuditOrg(r AuditRecord) string {
	heading := fmt.Sprintf("** Order: %s %s %s (%s)", r.Symbol, strings.ToUpper(r.Side), r.Status, shortID(r.OrderID))

	var b strings.Builder
	b.WriteString(heading)
	b.WriteString("\n")
	b.WriteString(":PROPERTIES:\n")
	b.WriteString(fmt.Sprintf(":ORDER_ID: %s\n", r.OrderID))
	b.WriteString(fmt.Sprintf(":CLIENT_ORDER_ID: %s\n", r.ClientOrderID))
	b.WriteString(fmt.Sprintf(":TIME: %s\n", r.Time.UTC().Format(time.RFC3339)))
	b.WriteString(fmt.Sprintf(":SYMBOL: %s\n", r.Symbol))
	b.WriteString(fmt.Sprintf(":SIDE: %s\n", r.Side))
	b.WriteString(fmt.Sprintf(":QTY: %s\n", f(r.Qty)))
	b.WriteString(fmt.Sprintf(":TYPE: %s\n", r.Type))
	b.WriteString(fmt.Sprintf(":TIF: %s\n", r.TimeInForce))
	b.WriteString(fmt.Sprintf(":STATUS: %s\n", r.Status))
	b.WriteString(fmt.Sprintf(":FILLED_QTY: %s\n", f(r.FilledQty)))
	if r.AvgFillPrice != nil {
		b.WriteString(fmt.Sprintf(":AVG_FILL_PRICE: %.4f\n", *r.AvgFillPrice))
	}
	if r.OrderClass != "" {
		b.WriteString(fmt.Sprintf(":ORDER_CLASS: %s\n", r.OrderClass))
	}
	if r.StopPrice != nil {
		b.WriteString(fmt.Sprintf(":STOP_PRICE: %.4f\n", *r.StopPrice))
	}
	if r.TakeProfitPrice != nil {
		b.WriteString(fmt.Sprintf(":TAKE_PROFIT_PRICE: %.4f\n", *r.TakeProfitPrice))
	}
	b.WriteString(":END:\n")
	b.WriteString("\n")
	b.WriteString("*** Review\n- \n")

	return b.String()
}

// FormatAuditsOrg renders multiple records separated by blank lines.
func FormatAuditsOrg(recs []AuditRecord) string {
	var b strings.Builder
	for i, r := range recs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(FormatAuditOrg(r))
	}
	return b.String()
}

func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[:8]
}
