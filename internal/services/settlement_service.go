package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/moov-io/iso20022/pkg/common"
	"github.com/moov-io/iso20022/pkg/pacs_v08"

	"github.com/gridbill/backend/internal/audit"
	"github.com/gridbill/backend/internal/config"
	"github.com/gridbill/backend/internal/metrics"
	"github.com/gridbill/backend/internal/models"
	"github.com/gridbill/backend/internal/notify"
)

// A processing batch settles once every line is paid to the biller and the
// client's payment for it has been approved.
const sweepSQL = `UPDATE batches b SET batch_status = 'settled', updated_at = NOW()
	WHERE b.batch_status = 'processing'
	AND EXISTS (SELECT 1 FROM client_payments cp WHERE cp.batch_id = b.id)
	AND NOT EXISTS (SELECT 1 FROM client_payments cp WHERE cp.batch_id = b.id AND cp.status <> 'paid')
	AND EXISTS (SELECT 1 FROM payment_gateway_transactions t WHERE t.batch_id = b.id AND t.payment_status = 'approved')
	RETURNING b.id, b.organization_id, b.total_amount`

// Transaction review outcome to pacs.002 status code.
var statusCodes = map[string]string{
	models.TransactionApproved: "ACCP",
	models.TransactionRejected: "RJCT",
	models.TransactionPending:  "PDNG",
}

type SettlementService struct {
	db       *sql.DB
	batches  *BatchService
	audit    *audit.Logger
	notifier *notify.Notifier
	payment  config.PaymentConfig
	newID    IDGenerator
	now      func() time.Time
}

func NewSettlementService(db *sql.DB, batches *BatchService, auditLogger *audit.Logger, notifier *notify.Notifier, payment config.PaymentConfig) *SettlementService {
	return &SettlementService{
		db:       db,
		batches:  batches,
		audit:    auditLogger,
		notifier: notifier,
		payment:  payment,
		newID:    newUUID,
		now:      time.Now,
	}
}

// SettledBatch is a batch moved to settled by a sweep.
type SettledBatch struct {
	BatchID        string `json:"batchId"`
	OrganizationID string `json:"organizationId"`
	TotalAmount    string `json:"totalAmount"`
}

// Sweep settles every eligible processing batch.
func (s *SettlementService) Sweep(ctx context.Context) ([]SettledBatch, error) {
	rows, err := s.db.QueryContext(ctx, sweepSQL)
	if err != nil {
		return nil, fmt.Errorf("settle batches: %w", err)
	}
	defer rows.Close()

	settled := []SettledBatch{}
	for rows.Next() {
		var b SettledBatch
		if err := rows.Scan(&b.BatchID, &b.OrganizationID, &b.TotalAmount); err != nil {
			return nil, fmt.Errorf("scan settled batch: %w", err)
		}
		settled = append(settled, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, b := range settled {
		metrics.BatchesSettled.Inc()
		s.audit.LogOperation(audit.EventSettlement, b.BatchID, b.OrganizationID, "system", "SETTLED",
			map[string]string{"total_amount": b.TotalAmount})
		s.notifier.PublishEvent(ctx, notify.Event{
			Type:           "batch.settled",
			OrganizationID: b.OrganizationID,
			EntityID:       b.BatchID,
			Data:           map[string]string{"amount": b.TotalAmount},
		})
	}
	if len(settled) > 0 {
		slog.InfoContext(ctx, "[SETTLEMENT] batches settled", "count", len(settled))
	}
	return settled, nil
}

func ref[T any](v T) *T { return &v }

// CreditTransfers renders one pacs.008 message per client payment line,
// wrapped in a BatchSettlement element.
func (s *SettlementService) CreditTransfers(ctx context.Context, orgID, batchID string) ([]byte, error) {
	lines, err := s.batches.lineDetails(ctx, orgID, batchID)
	if err != nil {
		return nil, err
	}

	var orgName string
	if err := s.db.QueryRowContext(ctx, "SELECT name FROM organizations WHERE id = $1", orgID).Scan(&orgName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("organization")
		}
		return nil, fmt.Errorf("load organization: %w", err)
	}

	docs := make([]any, 0, len(lines))
	for _, l := range lines {
		docs = append(docs, s.creditTransfer(batchID, orgName, l))
	}
	return encodeBatchDocument(batchID, "FIToFICstmrCdtTrf", docs)
}

func (s *SettlementService) creditTransfer(batchID, debtorName string, l LineDetail) *pacs_v08.FIToFICustomerCreditTransferV08 {
	now := s.now()
	settlementDate := now
	amount := pacs_v08.ActiveCurrencyAndAmount{
		Ccy:   common.ActiveCurrencyCode(s.payment.Currency),
		Value: l.ApprovedAmount.InexactFloat64(),
	}

	creditorMember := l.BillerCode
	if creditorMember == "" {
		creditorMember = s.payment.CreditorMember
	}

	return &pacs_v08.FIToFICustomerCreditTransferV08{
		GrpHdr: pacs_v08.GroupHeader93{
			MsgId:             common.Max35Text(s.newID()),
			CreDtTm:           common.ISODateTime(now),
			NbOfTxs:           "1",
			TtlIntrBkSttlmAmt: &amount,
			IntrBkSttlmDt:     (*common.ISODate)(&settlementDate),
			SttlmInf: pacs_v08.SettlementInstruction7{
				SttlmMtd: "CLRG",
			},
		},
		CdtTrfTxInf: []pacs_v08.CreditTransferTransaction39{
			{
				PmtId: pacs_v08.PaymentIdentification7{
					InstrId:    ref(common.Max35Text(batchID)),
					EndToEndId: common.Max35Text(l.ID),
					TxId:       ref(common.Max35Text(l.ID)),
				},
				IntrBkSttlmAmt: amount,
				IntrBkSttlmDt:  (*common.ISODate)(&settlementDate),
				ChrgBr:         "SLEV",
				DbtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						BICFI: ref(common.BICFIDec2014Identifier(s.payment.DebtorBIC)),
					},
				},
				Dbtr: pacs_v08.PartyIdentification135{
					Nm: ref(common.Max140Text(debtorName)),
				},
				CdtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						ClrSysMmbId: &pacs_v08.ClearingSystemMemberIdentification2{
							MmbId: common.Max35Text(creditorMember),
						},
					},
				},
				Cdtr: pacs_v08.PartyIdentification135{
					Nm: ref(common.Max140Text(l.SiteName + " " + l.ConnectionNumber)),
				},
			},
		},
	}
}

// StatusReport renders a pacs.002 covering every transaction of the batch.
func (s *SettlementService) StatusReport(ctx context.Context, orgID, batchID string) ([]byte, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, transaction_reference, payment_status FROM payment_gateway_transactions
		WHERE batch_id = $1 AND organization_id = $2 ORDER BY created_at, id`, batchID, orgID)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	defer rows.Close()

	var entries []pacs_v08.PaymentTransaction80
	for rows.Next() {
		var id, reference, status string
		if err := rows.Scan(&id, &reference, &status); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		entries = append(entries, pacs_v08.PaymentTransaction80{
			OrgnlInstrId:    ref(common.Max35Text(batchID)),
			OrgnlEndToEndId: ref(common.Max35Text(reference)),
			OrgnlTxId:       ref(common.Max35Text(id)),
			TxSts:           ref(pacs_v08.ExternalPaymentTransactionStatus1Code(statusCodes[status])),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, notFound("batch transactions")
	}

	doc := &pacs_v08.FIToFIPaymentStatusReportV08{
		GrpHdr: pacs_v08.GroupHeader53{
			MsgId:   common.Max35Text(s.newID()),
			CreDtTm: common.ISODateTime(s.now()),
		},
		TxInfAndSts: entries,
	}
	return encodeBatchDocument(batchID, "FIToFIPmtStsRpt", []any{doc})
}

func encodeBatchDocument(batchID, element string, docs []any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)

	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	root := xml.StartElement{
		Name: xml.Name{Local: "BatchSettlement"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "BatchId"}, Value: batchID}},
	}
	if err := enc.EncodeToken(root); err != nil {
		return nil, fmt.Errorf("failed to marshal XML: %w", err)
	}
	for _, doc := range docs {
		if err := enc.EncodeElement(doc, xml.StartElement{Name: xml.Name{Local: element}}); err != nil {
			return nil, fmt.Errorf("failed to marshal XML: %w", err)
		}
	}
	if err := enc.EncodeToken(root.End()); err != nil {
		return nil, fmt.Errorf("failed to marshal XML: %w", err)
	}
	if err := enc.Flush(); err != nil {
		return nil, fmt.Errorf("failed to marshal XML: %w", err)
	}
	return buf.Bytes(), nil
}
