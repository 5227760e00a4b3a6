package postgresql

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/satswap/swapd/swap"
)

type PostgresOfferStore struct {
	pool *pgxpool.Pool
}

func NewPostgresOfferStore(pool *pgxpool.Pool) *PostgresOfferStore {
	return &PostgresOfferStore{pool: pool}
}

const offerColumns = `id
 ,  creator
 ,  kind
 ,  amount_sat
 ,  status
 ,  visible_until
 ,  taken_by
 ,  taken_at
 ,  created_at`

func (s *PostgresOfferStore) CreateOffer(ctx context.Context, offer *swap.Offer) (int64, error) {
	var id int64
	err := s.pool.QueryRow(
		ctx,
		`INSERT INTO public.offers (creator, kind, amount_sat, status, visible_until, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		offer.Creator,
		string(offer.Kind),
		offer.AmountSat,
		string(offer.Status),
		offer.VisibleUntil,
		offer.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, err
	}

	return id, nil
}

func (s *PostgresOfferStore) GetOffer(ctx context.Context, id int64) (*swap.Offer, error) {
	row := s.pool.QueryRow(
		ctx,
		`SELECT `+offerColumns+`
		 FROM public.offers
		 WHERE id = $1`,
		id,
	)

	offer, err := scanOffer(row)
	if err == pgx.ErrNoRows {
		return nil, swap.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return offer, nil
}

func (s *PostgresOfferStore) MarkTaken(
	ctx context.Context,
	id int64,
	takenBy int64,
	takenAt time.Time,
) (bool, error) {
	res, err := s.pool.Exec(
		ctx,
		`UPDATE public.offers
		 SET status = $2, taken_by = $3, taken_at = $4
		 WHERE id = $1 AND status = $5`,
		id,
		string(swap.OfferTaken),
		takenBy,
		takenAt,
		string(swap.OfferActive),
	)
	if err != nil {
		return false, err
	}

	return res.RowsAffected() > 0, nil
}

func (s *PostgresOfferStore) Reactivate(ctx context.Context, id int64, now time.Time) error {
	_, err := s.pool.Exec(
		ctx,
		`UPDATE public.offers
		 SET status = CASE WHEN visible_until > $2 THEN $3 ELSE $4 END
		 ,   taken_by = NULL
		 ,   taken_at = NULL
		 WHERE id = $1 AND status = $5`,
		id,
		now,
		string(swap.OfferActive),
		string(swap.OfferExpired),
		string(swap.OfferTaken),
	)

	return err
}

func (s *PostgresOfferStore) ExpireVisible(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.pool.Exec(
		ctx,
		`UPDATE public.offers
		 SET status = $2
		 WHERE status = $3 AND visible_until <= $1`,
		now,
		string(swap.OfferExpired),
		string(swap.OfferActive),
	)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected(), nil
}

func (s *PostgresOfferStore) ListUserOffers(ctx context.Context, creator int64) ([]*swap.Offer, error) {
	rows, err := s.pool.Query(
		ctx,
		`SELECT `+offerColumns+`
		 FROM public.offers
		 WHERE creator = $1
		 ORDER BY created_at DESC`,
		creator,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var offers []*swap.Offer
	for rows.Next() {
		offer, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}

		offers = append(offers, offer)
	}

	return offers, rows.Err()
}

func scanOffer(row pgx.Row) (*swap.Offer, error) {
	var offer swap.Offer
	var kind, status string
	err := row.Scan(
		&offer.Id,
		&offer.Creator,
		&kind,
		&offer.AmountSat,
		&status,
		&offer.VisibleUntil,
		&offer.TakenBy,
		&offer.TakenAt,
		&offer.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	offer.Kind = swap.OfferKind(kind)
	offer.Status = swap.OfferStatus(status)
	return &offer, nil
}
