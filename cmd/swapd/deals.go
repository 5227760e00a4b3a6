package main

import (
	"context"
	"fmt"
	"time"

	"github.com/satswap/swapd/postgresql"
	"github.com/urfave/cli"
)

var databaseUrlFlag = cli.StringFlag{
	Name:     "database-url",
	Usage:    "Postgres database url.",
	Required: true,
}

var dealsCommand = cli.Command{
	Name:  "deals",
	Usage: "Inspect and repair deals directly in the database.",
	Subcommands: []cli.Command{
		{
			Name:   "list-stuck",
			Usage:  "List non-terminal deals whose stage deadline has elapsed.",
			Action: listStuckDeals,
			Flags:  []cli.Flag{databaseUrlFlag},
		},
		{
			Name:   "requeue",
			Usage:  "Push a deal's stage deadline forward so its owner gets more time.",
			Action: requeueDeal,
			Flags: []cli.Flag{
				databaseUrlFlag,
				cli.Int64Flag{
					Name:     "deal-id",
					Usage:    "Id of the deal to requeue.",
					Required: true,
				},
				cli.DurationFlag{
					Name:  "extend",
					Usage: "How far from now the new deadline lies.",
					Value: time.Hour * 2,
				},
			},
		},
		{
			Name:   "cancel",
			Usage:  "Cancel a deal, optionally putting its offer back in the channel.",
			Action: cancelDeal,
			Flags: []cli.Flag{
				databaseUrlFlag,
				cli.Int64Flag{
					Name:     "deal-id",
					Usage:    "Id of the deal to cancel.",
					Required: true,
				},
				cli.StringFlag{
					Name:  "reason",
					Usage: "Cancel reason recorded on the deal.",
					Value: "manual_cancel",
				},
				cli.BoolFlag{
					Name:  "reactivate-offer",
					Usage: "Return the originating offer to the active state.",
				},
			},
		},
		{
			Name:   "list",
			Usage:  "List a user's deals.",
			Action: listUserDeals,
			Flags: []cli.Flag{
				databaseUrlFlag,
				cli.Int64Flag{
					Name:     "user",
					Usage:    "User id to list deals for.",
					Required: true,
				},
			},
		},
		{
			Name:   "offers",
			Usage:  "List a user's offers.",
			Action: listUserOffers,
			Flags: []cli.Flag{
				databaseUrlFlag,
				cli.Int64Flag{
					Name:     "user",
					Usage:    "User id to list offers for.",
					Required: true,
				},
			},
		},
	},
}

func listStuckDeals(cliCtx *cli.Context) error {
	pool, err := postgresql.PgConnect(cliCtx.String("database-url"))
	if err != nil {
		return err
	}
	defer pool.Close()

	deals, err := postgresql.NewPostgresDealStore(pool).ListExpiredStages(context.Background(), time.Now())
	if err != nil {
		return err
	}

	if len(deals) == 0 {
		fmt.Println("no stuck deals")
		return nil
	}

	for _, deal := range deals {
		fmt.Printf("deal %d\tstatus=%s\tstage=%s\tdeadline=%s\tbuyer=%d\tseller=%d\tamount=%d\n",
			deal.Id, deal.Status, deal.Stage, deal.StageDeadline.Format(time.RFC3339),
			deal.Buyer, deal.Seller, deal.AmountSat)
	}
	return nil
}

func requeueDeal(cliCtx *cli.Context) error {
	pool, err := postgresql.PgConnect(cliCtx.String("database-url"))
	if err != nil {
		return err
	}
	defer pool.Close()

	dealId := cliCtx.Int64("deal-id")
	deadline := time.Now().Add(cliCtx.Duration("extend"))
	requeued, err := postgresql.NewPostgresDealStore(pool).RequeueDeadline(context.Background(), dealId, deadline)
	if err != nil {
		return err
	}
	if !requeued {
		return fmt.Errorf("deal %d was not requeued: terminal or without a deadline", dealId)
	}

	fmt.Printf("deal %d deadline moved to %s\n", dealId, deadline.Format(time.RFC3339))
	return nil
}

func cancelDeal(cliCtx *cli.Context) error {
	pool, err := postgresql.PgConnect(cliCtx.String("database-url"))
	if err != nil {
		return err
	}
	defer pool.Close()

	ctx := context.Background()
	dealStore := postgresql.NewPostgresDealStore(pool)
	dealId := cliCtx.Int64("deal-id")

	deal, err := dealStore.GetDeal(ctx, dealId)
	if err != nil {
		return err
	}

	cancelled, err := dealStore.MarkCancelled(ctx, dealId, cliCtx.String("reason"))
	if err != nil {
		return err
	}
	if !cancelled {
		return fmt.Errorf("deal %d was not cancelled: already terminal", dealId)
	}

	fmt.Printf("deal %d cancelled\n", dealId)
	if cliCtx.Bool("reactivate-offer") {
		offerStore := postgresql.NewPostgresOfferStore(pool)
		if err := offerStore.Reactivate(ctx, deal.OfferId, time.Now()); err != nil {
			return err
		}
		fmt.Printf("offer %d reactivated\n", deal.OfferId)
	}
	return nil
}

func listUserDeals(cliCtx *cli.Context) error {
	pool, err := postgresql.PgConnect(cliCtx.String("database-url"))
	if err != nil {
		return err
	}
	defer pool.Close()

	deals, err := postgresql.NewPostgresDealStore(pool).ListUserDeals(context.Background(), cliCtx.Int64("user"))
	if err != nil {
		return err
	}

	for _, deal := range deals {
		reference := ""
		if deal.PayoutReference != nil {
			reference = *deal.PayoutReference
		}
		fmt.Printf("deal %d\tstatus=%s\tamount=%d\tbuyer=%d\tseller=%d\tcreated=%s\t%s\n",
			deal.Id, deal.Status, deal.AmountSat, deal.Buyer, deal.Seller,
			deal.CreatedAt.Format(time.RFC3339), reference)
	}
	return nil
}

func listUserOffers(cliCtx *cli.Context) error {
	pool, err := postgresql.PgConnect(cliCtx.String("database-url"))
	if err != nil {
		return err
	}
	defer pool.Close()

	offers, err := postgresql.NewPostgresOfferStore(pool).ListUserOffers(context.Background(), cliCtx.Int64("user"))
	if err != nil {
		return err
	}

	for _, offer := range offers {
		fmt.Printf("offer %d\t%s\tstatus=%s\tamount=%d\tvisible_until=%s\n",
			offer.Id, offer.Kind, offer.Status, offer.AmountSat,
			offer.VisibleUntil.Format(time.RFC3339))
	}
	return nil
}
