package ledgerdelivery

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/beevik/etree"
	"github.com/gin-gonic/gin"
	"github.com/go-petr/mini-bank/internal/domain"
	"github.com/go-petr/mini-bank/internal/middleware"
	"github.com/go-petr/mini-bank/pkg/moneypkg"
)

// Statement formats.
const (
	FormatCSV = "csv"
	FormatXML = "xml"
)

// exportLimit is the number of records exported when no limit is given.
const exportLimit = 100

var statementHeader = []string{
	"date", "reference", "type", "amount", "balance_before", "balance_after",
	"counterparty", "description",
}

func statementRow(t domain.Transaction) []string {
	return []string{
		t.CreatedAt.Format(DateLayout),
		t.Reference,
		t.Type,
		moneypkg.String(t.Amount),
		moneypkg.String(t.BalanceBefore),
		moneypkg.String(t.BalanceAfter),
		t.Counterparty,
		t.Description,
	}
}

// WriteCSV writes the records as a CSV statement with a header row.
func WriteCSV(buf *bytes.Buffer, txs []domain.Transaction) error {
	w := csv.NewWriter(buf)

	if err := w.Write(statementHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, t := range txs {
		if err := w.Write(statementRow(t)); err != nil {
			return fmt.Errorf("write %s: %w", t.Reference, err)
		}
	}

	w.Flush()

	return w.Error()
}

// WriteXML writes the records as an XML statement of the account.
func WriteXML(buf *bytes.Buffer, acc domain.Account, txs []domain.Transaction, generated time.Time) error {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("statement")
	root.CreateAttr("account_number", acc.Number)
	root.CreateAttr("generated_at", generated.UTC().Format(time.RFC3339))
	root.CreateElement("balance").SetText(moneypkg.String(acc.Balance))

	list := root.CreateElement("transactions")
	list.CreateAttr("count", strconv.Itoa(len(txs)))

	for _, t := range txs {
		el := list.CreateElement("transaction")
		el.CreateAttr("reference", t.Reference)
		el.CreateAttr("type", t.Type)

		el.CreateElement("date").SetText(t.CreatedAt.Format(DateLayout))
		el.CreateElement("amount").SetText(moneypkg.String(t.Amount))
		el.CreateElement("balance_before").SetText(moneypkg.String(t.BalanceBefore))
		el.CreateElement("balance_after").SetText(moneypkg.String(t.BalanceAfter))

		if t.Counterparty != "" {
			el.CreateElement("counterparty").SetText(t.Counterparty)
		}

		el.CreateElement("description").SetText(t.Description)
	}

	doc.Indent(2)

	if _, err := doc.WriteTo(buf); err != nil {
		return fmt.Errorf("write statement: %w", err)
	}

	return nil
}

type exportRequest struct {
	Format        string `form:"format" binding:"omitempty,oneof=csv xml"`
	AccountNumber string `form:"account_number" binding:"omitempty,accountnumber"`
	Limit         int32  `form:"limit" binding:"min=0"`
}

// Export handles http request to download the account's statement as CSV or XML.
func (h *Handler) Export(gctx *gin.Context) {
	ctx := gctx.Request.Context()

	req := exportRequest{Format: FormatCSV}
	if err := gctx.ShouldBindQuery(&req); err != nil {
		middleware.RespondBindError(gctx, err)
		return
	}

	if req.Limit == 0 {
		req.Limit = exportLimit
	}

	p, _ := middleware.Principal(gctx)

	page, err := h.service.History(ctx, p, req.AccountNumber, req.Limit, 0, 0)
	if err != nil {
		middleware.RespondError(gctx, err)
		return
	}

	var (
		buf         bytes.Buffer
		contentType string
	)

	switch req.Format {
	case FormatXML:
		contentType = "application/xml; charset=utf-8"
		err = WriteXML(&buf, page.Account, page.Transactions, time.Now())
	default:
		req.Format = FormatCSV
		contentType = "text/csv; charset=utf-8"
		err = WriteCSV(&buf, page.Transactions)
	}

	if err != nil {
		middleware.RespondError(gctx, err)
		return
	}

	filename := fmt.Sprintf("statement-%s.%s", page.Account.Number, req.Format)
	gctx.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	gctx.Data(http.StatusOK, contentType, buf.Bytes())
}
