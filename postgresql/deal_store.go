package postgresql

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/satswap/swapd/swap"
)

// PostgresDealStore persists deals. Every transition is a conditional write
// guarded by the expected prior status so a row that already moved is never
// overwritten.
type PostgresDealStore struct {
	pool *pgxpool.Pool
}

func NewPostgresDealStore(pool *pgxpool.Pool) *PostgresDealStore {
	return &PostgresDealStore{pool: pool}
}

const dealColumns = `id
 ,  offer_id
 ,  seller
 ,  buyer
 ,  amount_sat
 ,  status
 ,  stage
 ,  stage_deadline
 ,  txid
 ,  confirmations
 ,  payout_address
 ,  invoice
 ,  payment_hash
 ,  payout_reference
 ,  cancel_reason
 ,  created_at
 ,  updated_at
 ,  completed_at`

func (s *PostgresDealStore) CreateDeal(ctx context.Context, deal *swap.Deal) (int64, error) {
	var id int64
	err := s.pool.QueryRow(
		ctx,
		`INSERT INTO public.deals (
			offer_id
		 ,  seller
		 ,  buyer
		 ,  amount_sat
		 ,  status
		 ,  stage
		 ,  stage_deadline
		 ,  confirmations
		 ,  created_at
		 ,  updated_at
		 )
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		deal.OfferId,
		deal.Seller,
		deal.Buyer,
		deal.AmountSat,
		string(deal.Status),
		string(deal.Stage),
		deal.StageDeadline,
		deal.Confirmations,
		deal.CreatedAt,
		deal.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return 0, err
	}

	return id, nil
}

func (s *PostgresDealStore) GetDeal(ctx context.Context, id int64) (*swap.Deal, error) {
	row := s.pool.QueryRow(
		ctx,
		`SELECT `+dealColumns+`
		 FROM public.deals
		 WHERE id = $1`,
		id,
	)

	deal, err := scanDeal(row)
	if err == pgx.ErrNoRows {
		return nil, swap.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return deal, nil
}

func (s *PostgresDealStore) BuyerDealInStatus(
	ctx context.Context,
	buyer int64,
	statuses ...swap.Status,
) (*swap.Deal, error) {
	return s.dealInStatus(ctx, "buyer", buyer, statuses)
}

func (s *PostgresDealStore) SellerDealInStatus(
	ctx context.Context,
	seller int64,
	statuses ...swap.Status,
) (*swap.Deal, error) {
	return s.dealInStatus(ctx, "seller", seller, statuses)
}

func (s *PostgresDealStore) dealInStatus(
	ctx context.Context,
	party string,
	user int64,
	statuses []swap.Status,
) (*swap.Deal, error) {
	row := s.pool.QueryRow(
		ctx,
		`SELECT `+dealColumns+`
		 FROM public.deals
		 WHERE `+party+` = $1 AND status = ANY($2)
		 ORDER BY created_at DESC
		 LIMIT 1`,
		user,
		statusStrings(statuses),
	)

	deal, err := scanDeal(row)
	if err == pgx.ErrNoRows {
		return nil, swap.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return deal, nil
}

func (s *PostgresDealStore) MarkAccepted(ctx context.Context, id int64, deadline time.Time) (bool, error) {
	res, err := s.pool.Exec(
		ctx,
		`UPDATE public.deals
		 SET status = $2, stage = $3, stage_deadline = $4, updated_at = now()
		 WHERE id = $1 AND status = $5`,
		id,
		string(swap.StatusAccepted),
		string(swap.StageTxidRequired),
		deadline,
		string(swap.StatusPending),
	)
	if err != nil {
		return false, err
	}

	return res.RowsAffected() > 0, nil
}

func (s *PostgresDealStore) MarkBitcoinSent(
	ctx context.Context,
	id int64,
	txid string,
	confirmations int32,
	deadline time.Time,
) (bool, error) {
	res, err := s.pool.Exec(
		ctx,
		`UPDATE public.deals
		 SET status = $2, stage = $3, stage_deadline = $4, txid = $5, confirmations = $6, updated_at = now()
		 WHERE id = $1 AND status = ANY($7)`,
		id,
		string(swap.StatusBitcoinSent),
		string(swap.StageConfirmingBitcoin),
		deadline,
		txid,
		confirmations,
		statusStrings([]swap.Status{swap.StatusAccepted, swap.StatusBitcoinSent}),
	)
	if err != nil {
		return false, err
	}

	return res.RowsAffected() > 0, nil
}

func (s *PostgresDealStore) MarkBitcoinConfirmed(
	ctx context.Context,
	id int64,
	confirmations int32,
	deadline time.Time,
) (bool, error) {
	res, err := s.pool.Exec(
		ctx,
		`UPDATE public.deals
		 SET status = $2, stage = $3, stage_deadline = $4, confirmations = $5, updated_at = now()
		 WHERE id = $1 AND status = $6`,
		id,
		string(swap.StatusBitcoinConfirmed),
		string(swap.StageInvoiceRequired),
		deadline,
		confirmations,
		string(swap.StatusBitcoinSent),
	)
	if err != nil {
		return false, err
	}

	return res.RowsAffected() > 0, nil
}

// MarkAwaitingPrivacyDecision keeps the stage and deadline of the invoice
// window: the privacy decision has to land inside it.
func (s *PostgresDealStore) MarkAwaitingPrivacyDecision(
	ctx context.Context,
	id int64,
	invoice string,
	paymentHash string,
) (bool, error) {
	res, err := s.pool.Exec(
		ctx,
		`UPDATE public.deals
		 SET status = $2, invoice = $3, payment_hash = $4, updated_at = now()
		 WHERE id = $1 AND status = $5`,
		id,
		string(swap.StatusAwaitingPrivacyDecision),
		invoice,
		paymentHash,
		string(swap.StatusBitcoinConfirmed),
	)
	if err != nil {
		return false, err
	}

	return res.RowsAffected() > 0, nil
}

func (s *PostgresDealStore) MarkPrivacyRetry(ctx context.Context, id int64, deadline time.Time) (bool, error) {
	res, err := s.pool.Exec(
		ctx,
		`UPDATE public.deals
		 SET status = $2, stage = $3, stage_deadline = $4, updated_at = now()
		 WHERE id = $1 AND status = $5`,
		id,
		string(swap.StatusPrivacyRetry),
		string(swap.StagePrivacyRetry),
		deadline,
		string(swap.StatusAwaitingPrivacyDecision),
	)
	if err != nil {
		return false, err
	}

	return res.RowsAffected() > 0, nil
}

func (s *PostgresDealStore) MarkInvoiceReceived(
	ctx context.Context,
	id int64,
	invoice string,
	paymentHash string,
	deadline time.Time,
	from ...swap.Status,
) (bool, error) {
	res, err := s.pool.Exec(
		ctx,
		`UPDATE public.deals
		 SET status = $2, stage = $3, stage_deadline = $4, invoice = $5, payment_hash = $6, updated_at = now()
		 WHERE id = $1 AND status = ANY($7)`,
		id,
		string(swap.StatusInvoiceReceived),
		string(swap.StagePaymentRequired),
		deadline,
		invoice,
		paymentHash,
		statusStrings(from),
	)
	if err != nil {
		return false, err
	}

	return res.RowsAffected() > 0, nil
}

func (s *PostgresDealStore) MarkAwaitingAddress(ctx context.Context, id int64, deadline time.Time) (bool, error) {
	res, err := s.pool.Exec(
		ctx,
		`UPDATE public.deals
		 SET status = $2, stage = $3, stage_deadline = $4, updated_at = now()
		 WHERE id = $1 AND status = $5`,
		id,
		string(swap.StatusAwaitingAddress),
		string(swap.StageAddressRequired),
		deadline,
		string(swap.StatusInvoiceReceived),
	)
	if err != nil {
		return false, err
	}

	return res.RowsAffected() > 0, nil
}

func (s *PostgresDealStore) MarkPaymentPending(
	ctx context.Context,
	id int64,
	payoutAddress string,
	deadline time.Time,
) (bool, error) {
	res, err := s.pool.Exec(
		ctx,
		`UPDATE public.deals
		 SET status = $2, stage = $3, stage_deadline = $4, payout_address = $5, updated_at = now()
		 WHERE id = $1 AND status = ANY($6) AND payout_address IS NULL`,
		id,
		string(swap.StatusPaymentPending),
		string(swap.StagePaymentRequired),
		deadline,
		payoutAddress,
		statusStrings([]swap.Status{swap.StatusInvoiceReceived, swap.StatusAwaitingAddress}),
	)
	if err != nil {
		return false, err
	}

	return res.RowsAffected() > 0, nil
}

func (s *PostgresDealStore) MarkReadyForBatch(ctx context.Context, id int64) (bool, error) {
	res, err := s.pool.Exec(
		ctx,
		`UPDATE public.deals
		 SET status = $2, stage = '', stage_deadline = NULL, updated_at = now()
		 WHERE id = $1 AND status = $3`,
		id,
		string(swap.StatusReadyForBatch),
		string(swap.StatusPaymentPending),
	)
	if err != nil {
		return false, err
	}

	return res.RowsAffected() > 0, nil
}

func (s *PostgresDealStore) MarkCancelled(
	ctx context.Context,
	id int64,
	reason string,
	from ...swap.Status,
) (bool, error) {
	if len(from) == 0 {
		from = swap.NonTerminalStatuses()
	}

	res, err := s.pool.Exec(
		ctx,
		`UPDATE public.deals
		 SET status = $2, stage = '', stage_deadline = NULL, cancel_reason = $3, updated_at = now()
		 WHERE id = $1 AND status = ANY($4)`,
		id,
		string(swap.StatusCancelled),
		reason,
		statusStrings(from),
	)
	if err != nil {
		return false, err
	}

	return res.RowsAffected() > 0, nil
}

func (s *PostgresDealStore) MarkCompleted(
	ctx context.Context,
	ids []int64,
	payoutReference string,
	completedAt time.Time,
) (int64, error) {
	res, err := s.pool.Exec(
		ctx,
		`UPDATE public.deals
		 SET status = $2, stage = '', stage_deadline = NULL, payout_reference = $3, completed_at = $4, updated_at = now()
		 WHERE id = ANY($1) AND status = $5`,
		ids,
		string(swap.StatusCompleted),
		payoutReference,
		completedAt,
		string(swap.StatusReadyForBatch),
	)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected(), nil
}

func (s *PostgresDealStore) UpdateConfirmations(ctx context.Context, id int64, confirmations int32) error {
	_, err := s.pool.Exec(
		ctx,
		`UPDATE public.deals
		 SET confirmations = $2, updated_at = now()
		 WHERE id = $1 AND status = $3`,
		id,
		confirmations,
		string(swap.StatusBitcoinSent),
	)

	return err
}

func (s *PostgresDealStore) RequeueDeadline(ctx context.Context, id int64, deadline time.Time) (bool, error) {
	res, err := s.pool.Exec(
		ctx,
		`UPDATE public.deals
		 SET stage_deadline = $2, updated_at = now()
		 WHERE id = $1 AND status = ANY($3) AND stage_deadline IS NOT NULL`,
		id,
		deadline,
		statusStrings(swap.NonTerminalStatuses()),
	)
	if err != nil {
		return false, err
	}

	return res.RowsAffected() > 0, nil
}

func (s *PostgresDealStore) ListExpiredStages(ctx context.Context, now time.Time) ([]*swap.Deal, error) {
	return s.listDeals(
		ctx,
		`SELECT `+dealColumns+`
		 FROM public.deals
		 WHERE status = ANY($2) AND stage_deadline IS NOT NULL AND stage_deadline <= $1
		 ORDER BY stage_deadline`,
		now,
		statusStrings(swap.NonTerminalStatuses()),
	)
}

func (s *PostgresDealStore) ListConfirming(ctx context.Context, now time.Time) ([]*swap.Deal, error) {
	return s.listDeals(
		ctx,
		`SELECT `+dealColumns+`
		 FROM public.deals
		 WHERE status = $2 AND txid IS NOT NULL AND stage_deadline > $1
		 ORDER BY created_at`,
		now,
		string(swap.StatusBitcoinSent),
	)
}

func (s *PostgresDealStore) ListAwaitingSettlement(ctx context.Context) ([]*swap.Deal, error) {
	return s.listDeals(
		ctx,
		`SELECT `+dealColumns+`
		 FROM public.deals
		 WHERE status = $1 AND payment_hash IS NOT NULL AND payment_hash <> $2
		 ORDER BY created_at`,
		string(swap.StatusPaymentPending),
		swap.PlaceholderPaymentHash,
	)
}

func (s *PostgresDealStore) ListPrivacyRetry(ctx context.Context, now time.Time) ([]*swap.Deal, error) {
	return s.listDeals(
		ctx,
		`SELECT `+dealColumns+`
		 FROM public.deals
		 WHERE status = $2 AND stage_deadline > $1
		 ORDER BY created_at`,
		now,
		string(swap.StatusPrivacyRetry),
	)
}

func (s *PostgresDealStore) ListReadyForBatch(ctx context.Context) ([]*swap.Deal, error) {
	return s.listDeals(
		ctx,
		`SELECT `+dealColumns+`
		 FROM public.deals
		 WHERE status = $1 AND payout_address IS NOT NULL
		 ORDER BY created_at`,
		string(swap.StatusReadyForBatch),
	)
}

func (s *PostgresDealStore) ListUserDeals(ctx context.Context, user int64) ([]*swap.Deal, error) {
	return s.listDeals(
		ctx,
		`SELECT `+dealColumns+`
		 FROM public.deals
		 WHERE buyer = $1 OR seller = $1
		 ORDER BY created_at DESC`,
		user,
	)
}

func (s *PostgresDealStore) listDeals(ctx context.Context, sql string, args ...interface{}) ([]*swap.Deal, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deals []*swap.Deal
	for rows.Next() {
		deal, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}

		deals = append(deals, deal)
	}

	return deals, rows.Err()
}

func scanDeal(row pgx.Row) (*swap.Deal, error) {
	var deal swap.Deal
	var status, stage string
	err := row.Scan(
		&deal.Id,
		&deal.OfferId,
		&deal.Seller,
		&deal.Buyer,
		&deal.AmountSat,
		&status,
		&stage,
		&deal.StageDeadline,
		&deal.Txid,
		&deal.Confirmations,
		&deal.PayoutAddress,
		&deal.Invoice,
		&deal.PaymentHash,
		&deal.PayoutReference,
		&deal.CancelReason,
		&deal.CreatedAt,
		&deal.UpdatedAt,
		&deal.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	deal.Status = swap.Status(status)
	deal.Stage = swap.Stage(stage)
	return &deal, nil
}

func statusStrings(statuses []swap.Status) []string {
	result := make([]string, 0, len(statuses))
	for _, status := range statuses {
		result = append(result, string(status))
	}

	return result
}
